package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"

	"prism-todo/todo-api/domain"
	"prism-todo/todo-board/board"
	"prism-todo/todo-board/dnd"
)

// TaskAPI is the subset of the todo API the board uses.
type TaskAPI interface {
	board.StateUpdater
	board.TaskLoader
	CreateTask(ctx context.Context, req domain.CreateTaskRequest) (domain.Task, error)
	CheckTask(ctx context.Context, id string, checked bool) error
	DeleteTask(ctx context.Context, id string) error
}

// Options tunes board behaviour.
type Options struct {
	User               string
	SamplePeriod       time.Duration
	EdgeMargin         int
	EdgeCooldown       time.Duration
	CarouselBreakpoint int
	ToastDuration      time.Duration
	RequestTimeout     time.Duration
}

func (o Options) withDefaults() Options {
	if o.SamplePeriod <= 0 {
		o.SamplePeriod = dnd.DefaultSamplePeriod
	}
	if o.ToastDuration <= 0 {
		o.ToastDuration = 4 * time.Second
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 15 * time.Second
	}
	return o
}

// Model is the board program state.
type Model struct {
	api      TaskAPI
	manager  *board.Manager
	coord    *dnd.Coordinator
	carousel *board.Carousel
	scroller *board.EdgeScroller
	events   chan tea.Msg
	opts     Options
	log      *log.Logger

	proj     board.Projection
	scroll   map[domain.State]int
	focusCol int
	focusRow int
	width    int
	height   int
	loading  bool

	adding bool
	input  textinput.Model

	toast   string
	toastID int

	keys keyMap
	help help.Model
}

// New builds a board model. Call Init through tea.NewProgram.
func New(api TaskAPI, opts Options, logger *log.Logger) Model {
	if logger == nil {
		logger = log.StandardLogger()
	}
	opts = opts.withDefaults()
	states := domain.States()
	events := make(chan tea.Msg, 16)

	coord := dnd.NewCoordinator(
		dnd.WithSamplePeriod(opts.SamplePeriod),
		dnd.WithLogger(logger),
		dnd.WithDraggingObserver(func(p dnd.Point) {
			select {
			case events <- draggingMsg{point: p}:
			default:
			}
		}),
	)
	carousel := board.NewCarousel(len(states))

	input := textinput.New()
	input.Placeholder = "task title"
	input.CharLimit = 100
	input.Prompt = "new task: "

	return Model{
		api:      api,
		manager:  board.NewManager(api, api, states, logger),
		coord:    coord,
		carousel: carousel,
		scroller: board.NewEdgeScroller(carousel, opts.EdgeMargin, opts.EdgeCooldown),
		events:   events,
		opts:     opts,
		log:      logger,
		proj:     board.Project(nil, states),
		scroll:   make(map[domain.State]int),
		loading:  true,
		input:    input,
		keys:     newKeyMap(),
		help:     help.New(),
	}
}

// LiveUpdates returns a callback that feeds pushed task lists into the program.
func (m Model) LiveUpdates(ctx context.Context) func([]domain.Task) {
	return func(tasks []domain.Task) {
		select {
		case m.events <- tasksPushedMsg{tasks: tasks}:
		case <-ctx.Done():
		}
	}
}

// Init loads the board and starts listening for background events.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadCmd(), m.listen())
}

func (m Model) listen() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		return <-events
	}
}

func (m Model) currentState() (domain.State, bool) {
	states := m.proj.States()
	if m.focusCol < 0 || m.focusCol >= len(states) {
		return "", false
	}
	return states[m.focusCol], true
}

func (m Model) currentTask() (domain.Task, bool) {
	state, ok := m.currentState()
	if !ok {
		return domain.Task{}, false
	}
	tasks := m.proj.Column(state)
	if m.focusRow < 0 || m.focusRow >= len(tasks) {
		return domain.Task{}, false
	}
	return tasks[m.focusRow], true
}

func (m *Model) clampFocus() {
	n := m.proj.Len()
	m.focusCol = min(max(m.focusCol, 0), max(n-1, 0))
	state, ok := m.currentState()
	if !ok {
		m.focusRow = 0
		return
	}
	m.focusRow = min(max(m.focusRow, 0), max(len(m.proj.Column(state))-1, 0))
	m.ensureVisible()
}

// setProjection swaps in freshly loaded data. An active drag keeps running.
func (m *Model) setProjection(p board.Projection, focusID string) {
	m.proj = p
	m.carousel.SetCount(p.Len())
	if focusID != "" {
		if state, row, ok := p.Find(focusID); ok {
			for i, s := range p.States() {
				if s == state {
					m.focusCol, m.focusRow = i, row
				}
			}
			if m.narrow() {
				m.carousel.SlideTo(m.focusCol)
			}
		}
	}
	m.clampFocus()
	m.syncZones()
}

// focusColumn moves focus to column i, keeping the carousel on the focused column.
func (m *Model) focusColumn(i int) {
	if i < 0 || i >= m.proj.Len() {
		return
	}
	m.focusCol = i
	m.focusRow = 0
	m.carousel.SlideTo(i)
	m.clampFocus()
	m.syncZones()
}
