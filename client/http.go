package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"prism-board/domain"
)

var (
	// ErrAuthRequired means the server wants fresh credentials. It is never
	// a reason to retry the same request.
	ErrAuthRequired = errors.New("client: authentication required")
	// ErrMalformedResponse means a 2xx body could not be understood.
	ErrMalformedResponse = errors.New("client: malformed response")
)

// StatusError is a non-2xx response other than 401.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("client: server returned %d", e.Status)
	}
	return fmt.Sprintf("client: server returned %d: %s", e.Status, e.Message)
}

// BoardAPI is the part of the server the Reconciler talks to.
type BoardAPI interface {
	Snapshot(ctx context.Context) (domain.Snapshot, error)
	MoveTask(ctx context.Context, boardID string, in domain.MoveTaskInput) (domain.MoveTaskResult, error)
	MoveSection(ctx context.Context, boardID, sectionID string, newIndex int) ([]string, error)
}

// HTTPClient calls the board API over HTTP.
type HTTPClient struct {
	BaseURL string
	Bearer  string
	HTTP    *http.Client
}

// NewHTTPClient creates a client for the API rooted at baseURL.
func NewHTTPClient(baseURL, bearer string) *HTTPClient {
	return &HTTPClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Bearer:  bearer,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Snapshot fetches the whole document.
func (c *HTTPClient) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	var snap domain.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/boards", nil, &snap); err != nil {
		return domain.Snapshot{}, err
	}
	return snap, nil
}

// MoveTask moves a task and returns the authoritative task and sections.
func (c *HTTPClient) MoveTask(ctx context.Context, boardID string, in domain.MoveTaskInput) (domain.MoveTaskResult, error) {
	path := "/api/boards/" + url.PathEscape(boardID) + "/tasks/" + url.PathEscape(in.TaskID) + "/move"
	var res domain.MoveTaskResult
	if err := c.do(ctx, http.MethodPost, path, in, &res); err != nil {
		return domain.MoveTaskResult{}, err
	}
	if res.Task.ID != in.TaskID {
		return domain.MoveTaskResult{}, fmt.Errorf("%w: move returned task %q", ErrMalformedResponse, res.Task.ID)
	}
	return res, nil
}

type moveSectionBody struct {
	NewIndex int `json:"newIndex"`
}

type moveSectionReply struct {
	Success      bool     `json:"success"`
	SectionOrder []string `json:"sectionOrder"`
}

// MoveSection repositions a section and returns the board's new order.
func (c *HTTPClient) MoveSection(ctx context.Context, boardID, sectionID string, newIndex int) ([]string, error) {
	path := "/api/boards/" + url.PathEscape(boardID) + "/sections/" + url.PathEscape(sectionID) + "/move"
	var res moveSectionReply
	if err := c.do(ctx, http.MethodPost, path, moveSectionBody{NewIndex: newIndex}, &res); err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, fmt.Errorf("%w: section move not acknowledged", ErrMalformedResponse)
	}
	return res.SectionOrder, nil
}

type errorBody struct {
	Error        string `json:"error"`
	AuthRequired bool   `json:"authRequired"`
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := sonic.ConfigStd.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}
	if c.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.Bearer)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return ErrAuthRequired
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		_ = sonic.ConfigStd.Unmarshal(raw, &eb)
		if eb.AuthRequired {
			return ErrAuthRequired
		}
		return &StatusError{Status: resp.StatusCode, Message: eb.Error}
	}
	if out == nil {
		return nil
	}
	if err := sonic.ConfigStd.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
