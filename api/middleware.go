package api

import (
	"compress/gzip"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// MaxInflatedBody bounds how many bytes a compressed request may expand to.
const MaxInflatedBody = maxBodySize

var errBodyTooLarge = errors.New("request body too large")

// GzipRequestMiddleware inflates gzip request bodies, reading at most limit
// bytes of inflated data. Invalid gzip is rejected with 400, any other
// content encoding with 415, and handlers see errBodyTooLarge once the
// limit is passed.
func GzipRequestMiddleware(limit int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			switch enc := strings.TrimSpace(req.Header.Get(echo.HeaderContentEncoding)); {
			case enc == "", strings.EqualFold(enc, "identity"):
				return next(c)
			case !strings.EqualFold(enc, "gzip"):
				return c.JSON(http.StatusUnsupportedMediaType, errorResponse{Message: "unsupported content encoding"})
			}

			zr, err := gzip.NewReader(req.Body)
			if err != nil {
				_ = req.Body.Close()
				return c.JSON(http.StatusBadRequest, errorResponse{Message: "invalid gzip body"})
			}
			req.Body = &inflatedBody{zr: zr, raw: req.Body, remaining: limit}
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)
			return next(c)
		}
	}
}

// inflatedBody is a gzip request body that stops after remaining bytes.
type inflatedBody struct {
	zr        *gzip.Reader
	raw       io.Closer
	remaining int64
	exceeded  bool
}

func (b *inflatedBody) Read(p []byte) (int, error) {
	if b.exceeded {
		return 0, errBodyTooLarge
	}
	if b.remaining <= 0 {
		var one [1]byte
		n, err := b.zr.Read(one[:])
		if n > 0 {
			b.exceeded = true
			return 0, errBodyTooLarge
		}
		return 0, err
	}
	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.zr.Read(p)
	b.remaining -= int64(n)
	return n, err
}

func (b *inflatedBody) Close() error {
	err := b.zr.Close()
	if cerr := b.raw.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// bodyTooLarge reports whether the request body was cut off by
// GzipRequestMiddleware.
func bodyTooLarge(req *http.Request) bool {
	b, ok := req.Body.(*inflatedBody)
	return ok && b.exceeded
}
