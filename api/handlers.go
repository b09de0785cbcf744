package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"prism-board/domain"
)

// Register wires up all API routes on the provided Echo instance. A nil
// deduper disables idempotency keys.
func Register(e *echo.Echo, svc BoardService, health Pinger, auth Authenticator, deduper Deduper, logger *log.Logger) {
	e.JSONSerializer = SonicSerializer{}
	e.GET("/healthz", healthz(health, logger))

	g := e.Group("/api",
		observe(logger),
		middleware.BodyLimit("64K"),
		decompressRequests(),
		requireAuth(auth),
		idempotency(deduper, logger),
	)
	g.GET("/boards", getBoards(svc, logger))
	g.POST("/boards", createBoard(svc, logger))
	g.PUT("/boards/:boardId", renameBoard(svc, logger))
	g.DELETE("/boards/:boardId", deleteBoard(svc, logger))
	g.PUT("/active-board", setActiveBoard(svc, logger))

	g.POST("/boards/:boardId/sections", createSection(svc, logger))
	g.PUT("/boards/:boardId/sections/:sectionId", renameSection(svc, logger))
	g.DELETE("/boards/:boardId/sections/:sectionId", deleteSection(svc, logger))
	g.POST("/boards/:boardId/sections/:sectionId/move", moveSection(svc, logger))

	g.POST("/boards/:boardId/sections/:sectionId/tasks", createTask(svc, logger))
	g.PUT("/boards/:boardId/tasks/:taskId", updateTask(svc, logger))
	g.DELETE("/boards/:boardId/tasks/:taskId", deleteTask(svc, logger))
	g.POST("/boards/:boardId/tasks/:taskId/move", moveTask(svc, logger))
}

func healthz(health Pinger, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := health.Ping(c.Request().Context()); err != nil {
			logger.WithError(err).Warn("health check failed")
			return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "store unavailable"})
		}
		return c.NoContent(http.StatusOK)
	}
}

func getBoards(svc BoardService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		snap, err := svc.Snapshot(c.Request().Context())
		if err != nil {
			return fail(c, logger, "storage", err)
		}
		return c.JSON(http.StatusOK, snap)
	}
}

func createBoard(svc BoardService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req nameRequest
		if err := decodeStrict(c.Request().Body, &req); err != nil {
			return fail(c, logger, "decode", err)
		}
		b, err := svc.CreateBoard(c.Request().Context(), req.Name)
		if err != nil {
			return fail(c, logger, "storage", err)
		}
		return c.JSON(http.StatusCreated, b)
	}
}

func renameBoard(svc BoardService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req nameRequest
		if err := decodeStrict(c.Request().Body, &req); err != nil {
			return fail(c, logger, "decode", err)
		}
		b, err := svc.RenameBoard(c.Request().Context(), c.Param("boardId"), req.Name)
		if err != nil {
			return fail(c, logger, "storage", err)
		}
		return c.JSON(http.StatusOK, b)
	}
}

func deleteBoard(svc BoardService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := svc.DeleteBoard(c.Request().Context(), c.Param("boardId")); err != nil {
			return fail(c, logger, "storage", err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func setActiveBoard(svc BoardService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req activeBoardRequest
		if err := decodeStrict(c.Request().Body, &req); err != nil {
			return fail(c, logger, "decode", err)
		}
		id, err := svc.SetActiveBoard(c.Request().Context(), req.BoardID)
		if err != nil {
			return fail(c, logger, "storage", err)
		}
		return c.JSON(http.StatusOK, activeBoardResponse{ActiveBoard: id})
	}
}

func createSection(svc BoardService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req nameRequest
		if err := decodeStrict(c.Request().Body, &req); err != nil {
			return fail(c, logger, "decode", err)
		}
		sec, err := svc.CreateSection(c.Request().Context(), c.Param("boardId"), req.Name)
		if err != nil {
			return fail(c, logger, "storage", err)
		}
		return c.JSON(http.StatusCreated, sec)
	}
}

func renameSection(svc BoardService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req nameRequest
		if err := decodeStrict(c.Request().Body, &req); err != nil {
			return fail(c, logger, "decode", err)
		}
		sec, err := svc.RenameSection(c.Request().Context(), c.Param("boardId"), c.Param("sectionId"), req.Name)
		if err != nil {
			return fail(c, logger, "storage", err)
		}
		return c.JSON(http.StatusOK, sec)
	}
}

func deleteSection(svc BoardService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := svc.DeleteSection(c.Request().Context(), c.Param("boardId"), c.Param("sectionId")); err != nil {
			return fail(c, logger, "storage", err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func moveSection(svc BoardService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req moveSectionRequest
		if err := decodeStrict(c.Request().Body, &req); err != nil {
			return fail(c, logger, "decode", err)
		}
		if req.NewIndex == nil {
			return fail(c, logger, "decode", &domain.ValidationError{Field: "newIndex", Reason: "is required"})
		}
		b, err := svc.MoveSection(c.Request().Context(), c.Param("boardId"), c.Param("sectionId"), *req.NewIndex)
		if err != nil {
			return fail(c, logger, "storage", err)
		}
		return c.JSON(http.StatusOK, moveSectionResponse{Success: true, SectionOrder: b.SectionOrder})
	}
}

func createTask(svc BoardService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req domain.TaskInput
		if err := decodeStrict(c.Request().Body, &req); err != nil {
			return fail(c, logger, "decode", err)
		}
		t, err := svc.CreateTask(c.Request().Context(), c.Param("boardId"), c.Param("sectionId"), req)
		if err != nil {
			return fail(c, logger, "storage", err)
		}
		return c.JSON(http.StatusCreated, t)
	}
}

func updateTask(svc BoardService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req domain.TaskPatch
		if err := decodeStrict(c.Request().Body, &req); err != nil {
			return fail(c, logger, "decode", err)
		}
		t, err := svc.UpdateTask(c.Request().Context(), c.Param("boardId"), c.Param("taskId"), req)
		if err != nil {
			return fail(c, logger, "storage", err)
		}
		return c.JSON(http.StatusOK, t)
	}
}

func deleteTask(svc BoardService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := svc.DeleteTask(c.Request().Context(), c.Param("boardId"), c.Param("taskId")); err != nil {
			return fail(c, logger, "storage", err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func moveTask(svc BoardService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req domain.MoveTaskInput
		if err := decodeStrict(c.Request().Body, &req); err != nil {
			return fail(c, logger, "decode", err)
		}
		req.TaskID = c.Param("taskId")
		res, err := svc.MoveTask(c.Request().Context(), c.Param("boardId"), req)
		if err != nil {
			return fail(c, logger, "storage", err)
		}
		return c.JSON(http.StatusOK, res)
	}
}
