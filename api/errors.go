package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/azzy787/task-board-mvp/board"
	"github.com/azzy787/task-board-mvp/domain"
	"github.com/azzy787/task-board-mvp/identity"
)

type errorResponse struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// writeError maps a service error to a status and a user-facing body.
func writeError(c echo.Context, m *requestMetrics, err error) error {
	var (
		ve *domain.ValidationError
		pe *domain.PersistenceError
		ie *identity.Error
	)
	switch {
	case errors.As(err, &ve):
		m.SetErrorStage("validation")
		return c.JSON(http.StatusBadRequest, errorResponse{Message: ve.Message})
	case errors.As(err, &ie):
		m.SetErrorStage("auth")
		status := http.StatusUnauthorized
		if ie.Code == identity.CodeTooManyRequests {
			status = http.StatusTooManyRequests
		}
		return c.JSON(status, errorResponse{Code: string(ie.Code), Message: ie.Message()})
	case errors.Is(err, domain.ErrNotFound):
		m.SetErrorStage("not_found")
		return c.JSON(http.StatusNotFound, errorResponse{Message: "Task not found"})
	case errors.Is(err, board.ErrDragState), errors.Is(err, domain.ErrConcurrencyConflict):
		m.SetErrorStage("conflict")
		return c.JSON(http.StatusConflict, errorResponse{Message: err.Error()})
	case errors.As(err, &pe):
		m.SetErrorStage("storage")
		log.WithError(err).WithField("op", pe.Op).Error("board operation failed")
		return c.JSON(http.StatusBadGateway, errorResponse{Message: pe.Message})
	case errors.Is(err, errBodyTooLarge):
		m.SetErrorStage("decode")
		return c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Message: "request body too large"})
	case errors.Is(err, errInvalidBody):
		m.SetErrorStage("decode")
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "invalid body"})
	}
	m.SetErrorStage("internal")
	log.WithError(err).Error("unhandled api error")
	return c.JSON(http.StatusInternalServerError, errorResponse{Message: "internal error"})
}

func unauthorized(c echo.Context, m *requestMetrics) error {
	m.SetErrorStage("auth")
	return c.JSON(http.StatusUnauthorized, errorResponse{
		Code:    string(identity.CodeInvalidToken),
		Message: identity.Humanize(identity.CodeInvalidToken),
	})
}
