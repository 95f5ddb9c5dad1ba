package api

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/azzy787/task-board-mvp/board"
)

const streamHeartbeat = 25 * time.Second

type streamError struct {
	Error string `json:"error"`
}

// streamBoard pushes the rendered board as server-sent events, one event per
// snapshot. EventSource cannot set headers, so ?token= is accepted too.
func streamBoard(svc Board, live Subscriber, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if token := c.QueryParam("token"); authHeader == "" && token != "" {
			authHeader = bearerPrefix + token
		}
		ctx := c.Request().Context()
		if _, err := auth.PrincipalFromAuthHeader(ctx, authHeader); err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Message: err.Error()})
		}
		f, err := filterFromQuery(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Message: err.Error()})
		}

		res := c.Response()
		res.Header().Set(echo.HeaderContentType, "text/event-stream")
		res.Header().Set(echo.HeaderCacheControl, "no-cache")
		res.Header().Set(echo.HeaderConnection, "keep-alive")
		res.Header().Set("X-Accel-Buffering", "no")
		flusher, ok := res.Writer.(http.Flusher)
		if !ok {
			return c.JSON(http.StatusInternalServerError, errorResponse{Message: "stream unsupported"})
		}
		res.WriteHeader(http.StatusOK)
		flusher.Flush()

		sub := live.Subscribe(ctx)
		defer sub.Cancel()
		heartbeat := time.NewTicker(streamHeartbeat)
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-heartbeat.C:
				if _, err := res.Write([]byte(": ping\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			case snap, ok := <-sub.C:
				if !ok {
					return nil
				}
				var payload any
				if snap.Err != nil {
					log.WithError(snap.Err).Warn("board snapshot failed")
					payload = streamError{Error: board.RefreshFailedMessage}
				} else {
					payload = svc.RenderView(ctx, snap.Records, f).Snapshot()
				}
				if err := writeEvent(res, payload); err != nil {
					log.WithError(err).Debug("stream closed")
					return nil
				}
				flusher.Flush()
			}
		}
	}
}

func writeEvent(res *echo.Response, payload any) error {
	data, err := sonic.Marshal(payload)
	if err != nil {
		return err
	}
	buf := make([]byte, 0, len(data)+8)
	buf = append(buf, "data: "...)
	buf = append(buf, data...)
	buf = append(buf, '\n', '\n')
	_, err = res.Write(buf)
	return err
}
