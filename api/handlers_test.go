package api

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"prism-board/domain"
	"prism-board/storage"
)

type mockAuth struct{}

func (mockAuth) UserIDFromAuthHeader(string) (string, error) { return "user", nil }

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// failingService embeds a real service and overrides MoveTask.
type failingService struct {
	BoardService
	err   error
	calls int
}

func (f *failingService) MoveTask(context.Context, string, domain.MoveTaskInput) (domain.MoveTaskResult, error) {
	f.calls++
	return domain.MoveTaskResult{}, f.err
}

type testServer struct {
	e     *echo.Echo
	store *storage.Store
	svc   *domain.BoardService
}

func newTestServer(t *testing.T, auth Authenticator, deduper Deduper, wrap func(BoardService) BoardService) *testServer {
	t.Helper()
	logger, _ := test.NewNullLogger()
	store := storage.NewStore(storage.NewMemoryBackend(), storage.Options{Logger: logger})
	t.Cleanup(store.Close)
	svc := domain.NewBoardService(store)
	var api BoardService = svc
	if wrap != nil {
		api = wrap(svc)
	}
	e := echo.New()
	Register(e, api, store, auth, deduper, logger)
	return &testServer{e: e, store: store, svc: svc}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, "Bearer a.b.c")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := sonic.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func createBoardViaAPI(t *testing.T, s *testServer) domain.Board {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/boards", `{"name":"Work"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create board: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var b domain.Board
	decodeInto(t, rec, &b)
	return b
}

func TestMoveTaskFlow(t *testing.T) {
	s := newTestServer(t, mockAuth{}, nil, nil)
	b := createBoardViaAPI(t, s)
	todo, doing := b.SectionOrder[0], b.SectionOrder[1]

	rec := s.do(t, http.MethodPost, "/api/boards/"+b.ID+"/sections/"+todo+"/tasks", `{"title":"Write tests","priority":"high","dueDate":"2024-07-01"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create task: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var task domain.Task
	decodeInto(t, rec, &task)
	if task.SectionID != todo || task.Status != "To Do" {
		t.Fatalf("unexpected task: %#v", task)
	}

	rec = s.do(t, http.MethodPost, "/api/boards/"+b.ID+"/tasks/"+task.ID+"/move", `{"fromSectionId":"`+todo+`","toSectionId":"`+doing+`","newIndex":0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("move task: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res domain.MoveTaskResult
	decodeInto(t, rec, &res)
	if res.Task.SectionID != doing {
		t.Fatalf("expected task in %s, got %s", doing, res.Task.SectionID)
	}
	if len(res.Sections[todo].TaskIDs) != 0 || len(res.Sections[doing].TaskIDs) != 1 {
		t.Fatalf("unexpected sections: %#v", res.Sections)
	}

	rec = s.do(t, http.MethodGet, "/api/boards", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get boards: expected 200, got %d", rec.Code)
	}
	var snap domain.Snapshot
	decodeInto(t, rec, &snap)
	if snap.ActiveBoard == nil || *snap.ActiveBoard != b.ID {
		t.Fatalf("expected active board %s, got %v", b.ID, snap.ActiveBoard)
	}
	if got := snap.Sections[doing].TaskIDs; len(got) != 1 || got[0] != task.ID {
		t.Fatalf("snapshot does not reflect the move: %v", got)
	}
}

func TestMoveTaskErrors(t *testing.T) {
	s := newTestServer(t, mockAuth{}, nil, nil)
	b := createBoardViaAPI(t, s)
	path := "/api/boards/" + b.ID + "/tasks/nonexistent/move"

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "unknownTask", body: `{"fromSectionId":"` + b.SectionOrder[0] + `","toSectionId":"` + b.SectionOrder[1] + `","newIndex":0}`, want: http.StatusNotFound},
		{name: "unknownSection", body: `{"fromSectionId":"nope","toSectionId":"` + b.SectionOrder[1] + `"}`, want: http.StatusNotFound},
		{name: "missingSection", body: `{"toSectionId":"` + b.SectionOrder[1] + `"}`, want: http.StatusBadRequest},
		{name: "unknownField", body: `{"fromSectionId":"a","toSectionId":"b","position":3}`, want: http.StatusBadRequest},
		{name: "malformed", body: `{"fromSectionId":`, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, path, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
			var body errorResponse
			decodeInto(t, rec, &body)
			if body.Error == "" {
				t.Fatalf("expected an error reason")
			}
		})
	}
}

func TestMoveSectionRoute(t *testing.T) {
	s := newTestServer(t, mockAuth{}, nil, nil)
	b := createBoardViaAPI(t, s)
	s1, s2, s3 := b.SectionOrder[0], b.SectionOrder[1], b.SectionOrder[2]

	rec := s.do(t, http.MethodPost, "/api/boards/"+b.ID+"/sections/"+s3+"/move", `{"newIndex":0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res moveSectionResponse
	decodeInto(t, rec, &res)
	if !res.Success {
		t.Fatalf("expected success flag")
	}
	if want := []string{s3, s1, s2}; strings.Join(res.SectionOrder, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, res.SectionOrder)
	}

	rec = s.do(t, http.MethodPost, "/api/boards/"+b.ID+"/sections/"+s3+"/move", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without newIndex, got %d", rec.Code)
	}
}

func TestBoardAndSectionCRUD(t *testing.T) {
	s := newTestServer(t, mockAuth{}, nil, nil)
	b := createBoardViaAPI(t, s)

	rec := s.do(t, http.MethodPut, "/api/boards/"+b.ID, `{"name":"Home"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("rename board: %d", rec.Code)
	}
	rec = s.do(t, http.MethodPost, "/api/boards/"+b.ID+"/sections", `{"name":"Later"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create section: %d", rec.Code)
	}
	var sec domain.Section
	decodeInto(t, rec, &sec)
	rec = s.do(t, http.MethodPut, "/api/boards/"+b.ID+"/sections/"+sec.ID, `{"name":"Someday"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("rename section: %d", rec.Code)
	}
	rec = s.do(t, http.MethodPost, "/api/boards/"+b.ID+"/sections/"+sec.ID+"/tasks", `{"title":"x"}`)
	var task domain.Task
	decodeInto(t, rec, &task)
	rec = s.do(t, http.MethodPut, "/api/boards/"+b.ID+"/tasks/"+task.ID, `{"description":"more"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update task: %d", rec.Code)
	}
	rec = s.do(t, http.MethodPost, "/api/boards/"+b.ID+"/sections/"+sec.ID+"/tasks", `{"title":"gone"}`)
	var doomed domain.Task
	decodeInto(t, rec, &doomed)
	rec = s.do(t, http.MethodDelete, "/api/boards/"+b.ID+"/tasks/"+doomed.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete task: %d", rec.Code)
	}
	snap, _ := s.store.Read(context.Background())
	if _, ok := snap.Tasks[doomed.ID]; ok {
		t.Fatalf("deleted task still stored")
	}
	if ids := snap.Sections[sec.ID].TaskIDs; len(ids) != 1 || ids[0] != task.ID {
		t.Fatalf("expected taskIds [%s], got %v", task.ID, ids)
	}
	rec = s.do(t, http.MethodDelete, "/api/boards/"+b.ID+"/tasks/"+doomed.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for deleted task, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodDelete, "/api/boards/"+b.ID+"/sections/"+sec.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete section: %d", rec.Code)
	}
	snap, _ = s.store.Read(context.Background())
	if _, ok := snap.Tasks[task.ID]; ok {
		t.Fatalf("task survived section delete")
	}
	if snap.Boards[b.ID].Name != "Home" {
		t.Fatalf("rename not persisted")
	}

	other := createBoardViaAPI(t, s)
	rec = s.do(t, http.MethodPut, "/api/active-board", `{"boardId":"`+other.ID+`"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), other.ID) {
		t.Fatalf("set active board: %d %s", rec.Code, rec.Body.String())
	}
	rec = s.do(t, http.MethodDelete, "/api/boards/"+other.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete board: %d", rec.Code)
	}
	snap, _ = s.store.Read(context.Background())
	if snap.ActiveBoard == nil || *snap.ActiveBoard != b.ID {
		t.Fatalf("expected the remaining board to become active")
	}
	rec = s.do(t, http.MethodDelete, "/api/boards/"+other.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for deleted board, got %d", rec.Code)
	}
}

func TestUnauthenticatedRequestAsksForCredentials(t *testing.T) {
	s := newTestServer(t, NewAuth(AuthConfig{Secret: []byte("secret")}), nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/boards", nil)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var body errorResponse
	decodeInto(t, rec, &body)
	if !body.AuthRequired || body.Error == "" {
		t.Fatalf("expected authRequired signal, got %#v", body)
	}
}

func TestPersistenceFailureIs500(t *testing.T) {
	svcErr := &domain.PersistenceError{Op: "save", Err: errors.New("disk full")}
	s := newTestServer(t, mockAuth{}, nil, func(svc BoardService) BoardService {
		return &failingService{BoardService: svc, err: svcErr}
	})
	rec := s.do(t, http.MethodPost, "/api/boards/b/tasks/t/move", `{"fromSectionId":"a","toSectionId":"b"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "disk full") {
		t.Fatalf("server error leaked internals: %s", rec.Body.String())
	}
}

func TestIdempotencyKey(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	deduper := NewRedisDeduper(client, time.Minute)

	var failing *failingService
	s := newTestServer(t, mockAuth{}, deduper, func(svc BoardService) BoardService {
		failing = &failingService{BoardService: svc, err: errors.New("boom")}
		return failing
	})

	rec := s.do(t, http.MethodPost, "/api/boards", `{"name":"A"}`, HeaderIdempotencyKey, "k1")
	if rec.Code != http.StatusCreated {
		t.Fatalf("first request: %d", rec.Code)
	}
	rec = s.do(t, http.MethodPost, "/api/boards", `{"name":"A"}`, HeaderIdempotencyKey, "k1")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on replay, got %d", rec.Code)
	}
	snap, _ := s.store.Read(context.Background())
	if len(snap.Boards) != 1 {
		t.Fatalf("replay created a second board")
	}

	for i := 0; i < 2; i++ {
		rec = s.do(t, http.MethodPost, "/api/boards/b/tasks/t/move", `{"fromSectionId":"a","toSectionId":"b"}`, HeaderIdempotencyKey, "k2")
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("attempt %d: expected 500, got %d", i, rec.Code)
		}
	}
	if failing.calls != 2 {
		t.Fatalf("expected the key to be released after a 5xx, got %d calls", failing.calls)
	}
}

func TestGzipRequestBody(t *testing.T) {
	s := newTestServer(t, mockAuth{}, nil, nil)
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write([]byte(`{"name":"Zipped"}`))
	_ = zw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/boards", &buf)
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/boards", strings.NewReader("plain"))
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec = httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad gzip body, got %d", rec.Code)
	}

	var inner, outer bytes.Buffer
	zw = gzip.NewWriter(&inner)
	_, _ = zw.Write([]byte(`{"name":"Twice"}`))
	_ = zw.Close()
	zw = gzip.NewWriter(&outer)
	_, _ = zw.Write(inner.Bytes())
	_ = zw.Close()
	req = httptest.NewRequest(http.MethodPost, "/api/boards", &outer)
	req.Header.Set(echo.HeaderContentEncoding, "gzip, identity, gzip")
	rec = httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated || !strings.Contains(rec.Body.String(), "Twice") {
		t.Fatalf("expected stacked gzip to decode, got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/boards", strings.NewReader(`{"name":"B"}`))
	req.Header.Set(echo.HeaderContentEncoding, "br")
	rec = httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415 for an unknown coding, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	logger, hook := test.NewNullLogger()
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/healthz", nil), httptest.NewRecorder())
	if err := healthz(pingFunc(func(context.Context) error { return nil }), logger)(c); err != nil {
		t.Fatalf("healthz: %v", err)
	}
	if c.Response().Status != http.StatusOK {
		t.Fatalf("expected 200, got %d", c.Response().Status)
	}

	rec := httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/healthz", nil), rec)
	_ = healthz(pingFunc(func(context.Context) error { return errors.New("down") }), logger)(c)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if hook.LastEntry() == nil || hook.LastEntry().Level != log.WarnLevel {
		t.Fatalf("expected a warning to be logged")
	}
}
