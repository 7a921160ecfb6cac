package middleware

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// BodyLimit returns middleware that rejects request bodies larger than
// the given limit. The limit is a human-readable size such as "1M" or
// "512K"; a bare number means bytes. Oversized requests receive 413.
//
// Event payloads for this API are small, so the limit mainly guards
// against a misbehaving upstream streaming garbage at the gateway.
func BodyLimit(limit string) echo.MiddlewareFunc {
	max := parseLimit(limit)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}

			// A declared Content-Length lets us reject before reading.
			if req.ContentLength > max {
				return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
					fmt.Sprintf("request body exceeds maximum allowed size of %d bytes", max))
			}

			// Cap the reader anyway; Content-Length can be absent or lie.
			req.Body = &cappedBody{inner: req.Body, left: max}
			return next(c)
		}
	}
}

// cappedBody fails reads once more than left bytes have been consumed.
type cappedBody struct {
	inner io.ReadCloser
	left  int64
	blown bool
}

func (b *cappedBody) Read(p []byte) (int, error) {
	if b.blown {
		return 0, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
	}

	// Allow one byte past the cap so overflow is observable.
	if int64(len(p)) > b.left+1 {
		p = p[:b.left+1]
	}

	n, err := b.inner.Read(p)
	b.left -= int64(n)
	if b.left < 0 {
		b.blown = true
		return 0, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
	}
	return n, err
}

func (b *cappedBody) Close() error { return b.inner.Close() }

var sizeSuffixes = []struct {
	suffix string
	factor int64
}{
	{"GB", 1 << 30}, {"G", 1 << 30},
	{"MB", 1 << 20}, {"M", 1 << 20},
	{"KB", 1 << 10}, {"K", 1 << 10},
}

// parseLimit converts "1M", "512K", "2048" etc. to bytes. Anything
// unparseable falls back to 1 MB.
func parseLimit(s string) int64 {
	const fallback = 1 << 20

	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return fallback
	}

	var factor int64 = 1
	for _, sz := range sizeSuffixes {
		if strings.HasSuffix(s, sz.suffix) {
			factor = sz.factor
			s = strings.TrimSuffix(s, sz.suffix)
			break
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return fallback
	}
	return n * factor
}
