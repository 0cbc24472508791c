package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"prism-todo/todo-api/domain"
	"prism-todo/todo-board/board"
	"prism-todo/todo-board/client"
	"prism-todo/todo-board/config"
	"prism-todo/todo-board/tui"
)

type app struct {
	configPath string
	apiURL     string
	token      string
	debug      bool

	cfg    config.Config
	api    *client.Client
	logger *log.Logger
	logOut io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "todo-board",
		Short: "Terminal board for prism todo",
		Long: `todo-board shows your tasks as columns. Drag cards between columns with the
mouse, or use the keyboard. Settings are read from config.toml and can be overridden
with flags.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return a.setup(cmd) },
		PersistentPostRun: func(*cobra.Command, []string) { a.close() },
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runBoard(cmd.Context())
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&a.configPath, "config", config.DefaultPath(), "path to config.toml")
	f.StringVar(&a.apiURL, "api", "", "todo API base URL (overrides api.url)")
	f.StringVar(&a.token, "token", "", "bearer token (overrides api.token)")
	f.BoolVar(&a.debug, "debug", false, "log at debug level")

	cmd.AddCommand(newListCmd(a), newWhoamiCmd(a))
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the board as text",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.API.Timeout.Duration)
			defer cancel()
			p, err := board.NewManager(a.api, a.api, domain.States(), a.logger).Reload(ctx)
			if err != nil {
				return err
			}
			return printProjection(cmd.OutOrStdout(), p)
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the identity behind the configured token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.API.Timeout.Duration)
			defer cancel()
			id, err := a.api.Me(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> (%s)\n", id.Name, id.Email, id.UserID)
			return err
		},
	}
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath, config.Default())
	if err != nil {
		return err
	}
	if a.apiURL != "" {
		cfg.API.URL = a.apiURL
	}
	if a.token != "" {
		cfg.API.Token = a.token
	}
	a.cfg = cfg

	a.logger = log.New()
	a.logger.SetOutput(io.Discard)
	if level, err := log.ParseLevel(cfg.Log.Level); err == nil {
		a.logger.SetLevel(level)
	}
	if a.debug {
		a.logger.SetLevel(log.DebugLevel)
	}
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		a.logger.SetOutput(f)
		a.logOut = f
	} else if cmd.Name() != "todo-board" {
		a.logger.SetOutput(cmd.ErrOrStderr())
	}

	token := cfg.ResolveToken()
	if token == "" {
		return errors.New("no token configured: set api.token, --token or " + cfg.API.TokenEnv)
	}
	a.api = client.New(cfg.API.URL, token)
	a.api.HTTP.Timeout = cfg.API.Timeout.Duration
	return nil
}

func (a *app) close() {
	if a.logOut != nil {
		_ = a.logOut.Close()
	}
}

func (a *app) runBoard(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := tui.Options{
		SamplePeriod:       a.cfg.Board.SamplePeriod.Duration,
		EdgeMargin:         a.cfg.Board.EdgeMargin,
		EdgeCooldown:       a.cfg.Board.EdgeCooldown.Duration,
		CarouselBreakpoint: a.cfg.Board.CarouselBreakpoint,
		ToastDuration:      a.cfg.Board.ToastDuration.Duration,
		RequestTimeout:     a.cfg.API.Timeout.Duration,
	}
	meCtx, meCancel := context.WithTimeout(ctx, a.cfg.API.Timeout.Duration)
	if id, err := a.api.Me(meCtx); err == nil {
		opts.User = id.Name
		if opts.User == "" {
			opts.User = id.Email
		}
	} else if errors.Is(err, client.ErrUnauthorized) {
		meCancel()
		return err
	} else {
		a.logger.WithError(err).Warn("identity lookup failed")
	}
	meCancel()

	model := tui.New(a.api, opts, a.logger)
	if a.cfg.API.Live {
		go func() {
			if err := a.api.Stream(ctx, a.logger, model.LiveUpdates(ctx)); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.WithError(err).Warn("live updates stopped")
			}
		}()
	}

	start := time.Now()
	_, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx)).Run()
	a.logger.WithField("duration", time.Since(start).Round(time.Second)).Debug("board closed")
	return err
}

func printProjection(w io.Writer, p board.Projection) error {
	var b strings.Builder
	for _, s := range p.States() {
		tasks := p.Column(s)
		fmt.Fprintf(&b, "%s (%d)\n", s.Title(), len(tasks))
		for _, t := range tasks {
			line := "  - " + t.Title
			if t.DueDate > 0 {
				line += " (due " + time.UnixMilli(t.DueDate).Format("2006-01-02") + ")"
			}
			b.WriteString(line + "\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
