package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func postSession(sessions Sessions, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		m, ctx := newRequestMetrics(c.Request().Context(), logger, "session.sign_in", c.Path())
		defer func() {
			m.Log(c.Response().Status, err)
		}()

		var req signInRequest
		if decodeErr := decodeBody(c, &req); decodeErr != nil {
			return writeError(c, m, decodeErr)
		}
		start := time.Now()
		session, signErr := sessions.SignIn(ctx, req.Email, req.Password)
		m.ObserveAuth(time.Since(start))
		if signErr != nil {
			return writeError(c, m, signErr)
		}
		return c.JSON(http.StatusOK, session)
	}
}

func getSession(sessions Sessions, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		return authorized(c, "session.current", auth, logger, func(ctx context.Context, p Principal, m *requestMetrics) error {
			user, err := sessions.CurrentUser(ctx, p.Token)
			if err != nil {
				return writeError(c, m, err)
			}
			return c.JSON(http.StatusOK, user)
		})
	}
}

func deleteSession(sessions Sessions, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		return authorized(c, "session.sign_out", auth, logger, func(ctx context.Context, p Principal, m *requestMetrics) error {
			if err := sessions.SignOut(ctx, p.Token); err != nil {
				return writeError(c, m, err)
			}
			return c.NoContent(http.StatusNoContent)
		})
	}
}
