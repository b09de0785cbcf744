package api

import (
	"context"

	"prism-board/domain"
)

// BoardService is the domain surface the handlers drive.
type BoardService interface {
	Snapshot(ctx context.Context) (domain.Snapshot, error)
	CreateBoard(ctx context.Context, name string) (domain.Board, error)
	RenameBoard(ctx context.Context, boardID, name string) (domain.Board, error)
	DeleteBoard(ctx context.Context, boardID string) error
	SetActiveBoard(ctx context.Context, boardID string) (string, error)
	CreateSection(ctx context.Context, boardID, name string) (domain.Section, error)
	RenameSection(ctx context.Context, boardID, sectionID, name string) (domain.Section, error)
	DeleteSection(ctx context.Context, boardID, sectionID string) error
	CreateTask(ctx context.Context, boardID, sectionID string, in domain.TaskInput) (domain.Task, error)
	UpdateTask(ctx context.Context, boardID, taskID string, p domain.TaskPatch) (domain.Task, error)
	DeleteTask(ctx context.Context, boardID, taskID string) error
	MoveTask(ctx context.Context, boardID string, in domain.MoveTaskInput) (domain.MoveTaskResult, error)
	MoveSection(ctx context.Context, boardID, sectionID string, newIndex int) (domain.Board, error)
}

// Pinger reports whether the document store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents processing of duplicate requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when processing fails.
	Remove(ctx context.Context, userID, key string) error
}

type errorResponse struct {
	Error        string `json:"error"`
	AuthRequired bool   `json:"authRequired,omitempty"`
}

type nameRequest struct {
	Name string `json:"name"`
}

type activeBoardRequest struct {
	BoardID string `json:"boardId"`
}

type activeBoardResponse struct {
	ActiveBoard string `json:"activeBoard"`
}

type moveSectionRequest struct {
	NewIndex *int `json:"newIndex"`
}

type moveSectionResponse struct {
	Success      bool     `json:"success"`
	SectionOrder []string `json:"sectionOrder"`
}
