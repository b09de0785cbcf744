package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"prism-board/domain"
)

// fail maps a service error onto the HTTP status and writes the error body.
// Client errors carry their reason; server failures stay generic.
func fail(c echo.Context, logger *log.Logger, stage string, err error) error {
	setErrorStage(c, stage)
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		msg, _ := he.Message.(string)
		return c.JSON(he.Code, errorResponse{Error: msg})
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrValidation):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	logger.WithError(err).WithField("stage", stage).Error("request failed")
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: "persistence failure"})
}
