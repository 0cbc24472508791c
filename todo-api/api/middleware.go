package api

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequestBodyMiddleware transparently inflates gzip-encoded request bodies and caps
// the number of bytes a handler may read. Invalid gzip payloads are rejected with 400.
func RequestBodyMiddleware(maxBytes int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}

			if acceptsGzip(req.Header.Get(echo.HeaderContentEncoding)) {
				gr, err := gzip.NewReader(req.Body)
				if err != nil {
					_ = req.Body.Close()
					return echo.NewHTTPError(http.StatusBadRequest, "invalid gzip body")
				}
				req.Body = &inflatedBody{Reader: gr, raw: req.Body}
				req.ContentLength = -1
				req.Header.Del(echo.HeaderContentEncoding)
				req.Header.Del(echo.HeaderContentLength)
			}

			if maxBytes > 0 {
				req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBytes)
			}
			return next(c)
		}
	}
}

func acceptsGzip(header string) bool {
	for _, enc := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			return true
		}
	}
	return false
}

type inflatedBody struct {
	*gzip.Reader
	raw io.Closer
}

func (b *inflatedBody) Close() error {
	err := b.Reader.Close()
	if cerr := b.raw.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
