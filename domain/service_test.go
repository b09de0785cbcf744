package domain

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
)

type memStorage struct {
	mu      sync.Mutex
	snap    Snapshot
	updates int
}

func newMemStorage() *memStorage {
	return &memStorage{snap: NewSnapshot()}
}

func (m *memStorage) Read(context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.Clone(), nil
}

func (m *memStorage) Update(_ context.Context, fn func(*Snapshot) error) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.snap.Clone()
	if err := fn(&next); err != nil {
		return Snapshot{}, err
	}
	if err := next.Check(); err != nil {
		return Snapshot{}, err
	}
	m.snap = next
	m.updates++
	return next.Clone(), nil
}

func newTestService(t *testing.T) (*BoardService, *memStorage) {
	t.Helper()
	store := newMemStorage()
	svc := NewBoardService(store)
	var n int
	svc.newID = func() string {
		n++
		return fmt.Sprintf("id-%02d", n)
	}
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	var tick int
	svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return svc, store
}

// seedBoard creates board B with sections S1..S3 and returns their ids.
func seedBoard(t *testing.T, svc *BoardService) (string, []string) {
	t.Helper()
	b, err := svc.CreateBoard(context.Background(), "B")
	if err != nil {
		t.Fatalf("create board: %v", err)
	}
	return b.ID, b.SectionOrder
}

func TestCreateBoardAddsDefaultSectionsAndBecomesActive(t *testing.T) {
	svc, store := newTestService(t)
	boardID, sections := seedBoard(t, svc)

	snap, _ := store.Read(context.Background())
	if snap.ActiveBoard == nil || *snap.ActiveBoard != boardID {
		t.Fatalf("expected active board %s, got %v", boardID, snap.ActiveBoard)
	}
	if len(sections) != 3 {
		t.Fatalf("expected 3 default sections, got %d", len(sections))
	}
	for i, sid := range sections {
		if got := snap.Sections[sid].Name; got != DefaultSectionNames[i] {
			t.Fatalf("section %d: expected %q, got %q", i, DefaultSectionNames[i], got)
		}
	}

	second, err := svc.CreateBoard(context.Background(), "Second")
	if err != nil {
		t.Fatalf("create second board: %v", err)
	}
	snap, _ = store.Read(context.Background())
	if *snap.ActiveBoard != boardID {
		t.Fatalf("second board %s must not steal the active pointer", second.ID)
	}
}

func TestCreateTaskAppendsToSection(t *testing.T) {
	svc, store := newTestService(t)
	boardID, sections := seedBoard(t, svc)
	ctx := context.Background()

	t1, err := svc.CreateTask(ctx, boardID, sections[0], TaskInput{Title: "T1"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	snap, _ := store.Read(ctx)
	if got := snap.Sections[sections[0]].TaskIDs; !reflect.DeepEqual(got, []string{t1.ID}) {
		t.Fatalf("expected [%s], got %v", t1.ID, got)
	}
	if t1.Status != "To Do" {
		t.Fatalf("expected status to default to section name, got %q", t1.Status)
	}
	if t1.Priority != PriorityMedium {
		t.Fatalf("expected medium priority, got %q", t1.Priority)
	}
	if !t1.CreatedAt.Equal(t1.UpdatedAt) {
		t.Fatalf("expected createdAt == updatedAt, got %v and %v", t1.CreatedAt, t1.UpdatedAt)
	}

	t2, _ := svc.CreateTask(ctx, boardID, sections[0], TaskInput{Title: "T2", Priority: "HIGH", DueDate: "2024-06-01"})
	snap, _ = store.Read(ctx)
	if got := snap.Sections[sections[0]].TaskIDs; !reflect.DeepEqual(got, []string{t1.ID, t2.ID}) {
		t.Fatalf("expected append order, got %v", got)
	}
	if t2.Priority != PriorityHigh || t2.DueDate == nil || t2.DueDate.Format(dateOnly) != "2024-06-01" {
		t.Fatalf("unexpected task fields: %#v", t2)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	svc, store := newTestService(t)
	boardID, sections := seedBoard(t, svc)
	before := store.updates

	tests := []struct {
		name  string
		in    TaskInput
		field string
	}{
		{name: "missingTitle", in: TaskInput{Title: "   "}, field: "title"},
		{name: "priority", in: TaskInput{Title: "x", Priority: "someday"}, field: "priority"},
		{name: "dueDate", in: TaskInput{Title: "x", DueDate: "tomorrow"}, field: "dueDate"},
		{name: "startDate", in: TaskInput{Title: "x", StartDate: "01/02/2024"}, field: "startDate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateTask(context.Background(), boardID, sections[0], tt.in)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if vErr.Field != tt.field {
				t.Fatalf("expected field %q, got %q", tt.field, vErr.Field)
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected errors.Is ErrValidation")
			}
		})
	}
	if store.updates != before {
		t.Fatalf("validation failures must not persist")
	}
}

func TestMoveTaskScenarios(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	boardID, s := seedBoard(t, svc)
	t1, err := svc.CreateTask(ctx, boardID, s[0], TaskInput{Title: "T1"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	zero := 0
	res, err := svc.MoveTask(ctx, boardID, MoveTaskInput{TaskID: t1.ID, FromSectionID: s[0], ToSectionID: s[1], NewIndex: &zero})
	if err != nil {
		t.Fatalf("move task: %v", err)
	}
	if res.Task.SectionID != s[1] {
		t.Fatalf("expected task in %s, got %s", s[1], res.Task.SectionID)
	}
	if !res.Task.UpdatedAt.After(t1.UpdatedAt) {
		t.Fatalf("expected updatedAt to advance")
	}
	if len(res.Sections) != 2 {
		t.Fatalf("expected both sections in result, got %v", res.Sections)
	}
	if got := res.Sections[s[0]].TaskIDs; len(got) != 0 {
		t.Fatalf("expected source empty, got %v", got)
	}
	if got := res.Sections[s[1]].TaskIDs; !reflect.DeepEqual(got, []string{t1.ID}) {
		t.Fatalf("expected target [%s], got %v", t1.ID, got)
	}

	before, _ := store.Read(ctx)
	_, err = svc.MoveTask(ctx, boardID, MoveTaskInput{TaskID: "nonexistent", FromSectionID: s[0], ToSectionID: s[1], NewIndex: &zero})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	after, _ := store.Read(ctx)
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("failed move must leave the store unchanged")
	}
}

func TestMoveTaskNotFoundCases(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	boardID, s := seedBoard(t, svc)
	task, _ := svc.CreateTask(ctx, boardID, s[0], TaskInput{Title: "T"})
	other, os := seedBoard(t, svc)

	tests := []struct {
		name  string
		board string
		in    MoveTaskInput
	}{
		{name: "unknownFrom", board: boardID, in: MoveTaskInput{TaskID: task.ID, FromSectionID: "nope", ToSectionID: s[1]}},
		{name: "unknownTo", board: boardID, in: MoveTaskInput{TaskID: task.ID, FromSectionID: s[0], ToSectionID: "nope"}},
		{name: "notInFrom", board: boardID, in: MoveTaskInput{TaskID: task.ID, FromSectionID: s[2], ToSectionID: s[1]}},
		{name: "foreignSection", board: boardID, in: MoveTaskInput{TaskID: task.ID, FromSectionID: s[0], ToSectionID: os[0]}},
		{name: "unknownBoard", board: "nope", in: MoveTaskInput{TaskID: task.ID, FromSectionID: s[0], ToSectionID: s[1]}},
		{name: "wrongBoard", board: other, in: MoveTaskInput{TaskID: task.ID, FromSectionID: s[0], ToSectionID: s[1]}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.MoveTask(ctx, tt.board, tt.in)
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected not found, got %v", err)
			}
		})
	}
}

func TestMoveTaskRoundTripRestoresOrder(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	boardID, s := seedBoard(t, svc)
	var ids []string
	for i := 0; i < 3; i++ {
		task, _ := svc.CreateTask(ctx, boardID, s[0], TaskInput{Title: fmt.Sprintf("A%d", i)})
		ids = append(ids, task.ID)
	}
	b1, _ := svc.CreateTask(ctx, boardID, s[1], TaskInput{Title: "B1"})
	before, _ := store.Read(ctx)

	one, original := 1, 1
	if _, err := svc.MoveTask(ctx, boardID, MoveTaskInput{TaskID: ids[1], FromSectionID: s[0], ToSectionID: s[1], NewIndex: &one}); err != nil {
		t.Fatalf("move out: %v", err)
	}
	mid, _ := store.Read(ctx)
	if got := mid.Sections[s[1]].TaskIDs; !reflect.DeepEqual(got, []string{b1.ID, ids[1]}) {
		t.Fatalf("unexpected target order %v", got)
	}
	if _, err := svc.MoveTask(ctx, boardID, MoveTaskInput{TaskID: ids[1], FromSectionID: s[1], ToSectionID: s[0], NewIndex: &original}); err != nil {
		t.Fatalf("move back: %v", err)
	}
	after, _ := store.Read(ctx)
	for _, sid := range []string{s[0], s[1]} {
		if !reflect.DeepEqual(before.Sections[sid].TaskIDs, after.Sections[sid].TaskIDs) {
			t.Fatalf("section %s: expected %v, got %v", sid, before.Sections[sid].TaskIDs, after.Sections[sid].TaskIDs)
		}
	}
}

func TestMoveTaskWithinSectionUsesIndexAfterRemoval(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	boardID, s := seedBoard(t, svc)
	var ids []string
	for i := 0; i < 4; i++ {
		task, _ := svc.CreateTask(ctx, boardID, s[0], TaskInput{Title: fmt.Sprintf("T%d", i)})
		ids = append(ids, task.ID)
	}

	tests := []struct {
		name  string
		index *int
		want  []string
	}{
		{name: "samePosition", index: intPtr(1), want: []string{ids[0], ids[1], ids[2], ids[3]}},
		{name: "toFront", index: intPtr(0), want: []string{ids[1], ids[0], ids[2], ids[3]}},
		{name: "afterRemoval", index: intPtr(2), want: []string{ids[0], ids[2], ids[1], ids[3]}},
		{name: "beyondEnd", index: intPtr(99), want: []string{ids[0], ids[2], ids[3], ids[1]}},
		{name: "negative", index: intPtr(-5), want: []string{ids[1], ids[0], ids[2], ids[3]}},
		{name: "append", index: nil, want: []string{ids[0], ids[2], ids[3], ids[1]}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// restore the starting order first
			for i, id := range ids {
				if _, err := svc.MoveTask(ctx, boardID, MoveTaskInput{TaskID: id, FromSectionID: s[0], ToSectionID: s[0], NewIndex: intPtr(i)}); err != nil {
					t.Fatalf("reset: %v", err)
				}
			}
			res, err := svc.MoveTask(ctx, boardID, MoveTaskInput{TaskID: ids[1], FromSectionID: s[0], ToSectionID: s[0], NewIndex: tt.index})
			if err != nil {
				t.Fatalf("move: %v", err)
			}
			if len(res.Sections) != 1 {
				t.Fatalf("expected one affected section, got %d", len(res.Sections))
			}
			if got := res.Sections[s[0]].TaskIDs; !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestMoveTaskSamePositionStillPersists(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	boardID, s := seedBoard(t, svc)
	task, _ := svc.CreateTask(ctx, boardID, s[0], TaskInput{Title: "T"})
	before := store.updates

	res, err := svc.MoveTask(ctx, boardID, MoveTaskInput{TaskID: task.ID, FromSectionID: s[0], ToSectionID: s[0], NewIndex: intPtr(0)})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if store.updates != before+1 {
		t.Fatalf("expected a persist for a same-position move")
	}
	if !res.Task.UpdatedAt.After(task.UpdatedAt) {
		t.Fatalf("expected updatedAt to be bumped")
	}
}

func TestMoveSection(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	boardID, s := seedBoard(t, svc)

	b, err := svc.MoveSection(ctx, boardID, s[2], 0)
	if err != nil {
		t.Fatalf("move section: %v", err)
	}
	if want := []string{s[2], s[0], s[1]}; !reflect.DeepEqual(b.SectionOrder, want) {
		t.Fatalf("expected %v, got %v", want, b.SectionOrder)
	}

	// no-op: current index
	b, err = svc.MoveSection(ctx, boardID, s[0], 1)
	if err != nil {
		t.Fatalf("no-op move: %v", err)
	}
	if want := []string{s[2], s[0], s[1]}; !reflect.DeepEqual(b.SectionOrder, want) {
		t.Fatalf("no-op changed order: %v", b.SectionOrder)
	}

	b, _ = svc.MoveSection(ctx, boardID, s[2], 42)
	if want := []string{s[0], s[1], s[2]}; !reflect.DeepEqual(b.SectionOrder, want) {
		t.Fatalf("expected clamp to append, got %v", b.SectionOrder)
	}

	other, os := seedBoard(t, svc)
	if _, err := svc.MoveSection(ctx, boardID, os[0], 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for a foreign section, got %v", err)
	}
	if _, err := svc.MoveSection(ctx, "missing", s[0], 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown board, got %v", err)
	}
	snap, _ := store.Read(ctx)
	if err := snap.Check(); err != nil {
		t.Fatalf("invariants broken: %v", err)
	}
	_ = other
}

func TestDeleteSectionCascades(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	boardID, s := seedBoard(t, svc)
	a, _ := svc.CreateTask(ctx, boardID, s[0], TaskInput{Title: "a"})
	b, _ := svc.CreateTask(ctx, boardID, s[0], TaskInput{Title: "b"})
	keep, _ := svc.CreateTask(ctx, boardID, s[1], TaskInput{Title: "keep"})

	if err := svc.DeleteSection(ctx, boardID, s[0]); err != nil {
		t.Fatalf("delete section: %v", err)
	}
	snap, _ := store.Read(ctx)
	for _, id := range []string{a.ID, b.ID} {
		if _, ok := snap.Tasks[id]; ok {
			t.Fatalf("task %s survived its section", id)
		}
	}
	if _, ok := snap.Tasks[keep.ID]; !ok {
		t.Fatalf("unrelated task was removed")
	}
	if want := []string{s[1], s[2]}; !reflect.DeepEqual(snap.Boards[boardID].SectionOrder, want) {
		t.Fatalf("expected order %v, got %v", want, snap.Boards[boardID].SectionOrder)
	}
}

func TestDeleteTaskRemovesPosition(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	boardID, s := seedBoard(t, svc)
	a, _ := svc.CreateTask(ctx, boardID, s[0], TaskInput{Title: "a"})
	b, _ := svc.CreateTask(ctx, boardID, s[0], TaskInput{Title: "b"})
	c, _ := svc.CreateTask(ctx, boardID, s[0], TaskInput{Title: "c"})

	if err := svc.DeleteTask(ctx, boardID, b.ID); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	snap, _ := store.Read(ctx)
	if _, ok := snap.Tasks[b.ID]; ok {
		t.Fatalf("task %s still stored", b.ID)
	}
	if want := []string{a.ID, c.ID}; !reflect.DeepEqual(snap.Sections[s[0]].TaskIDs, want) {
		t.Fatalf("expected taskIds %v, got %v", want, snap.Sections[s[0]].TaskIDs)
	}
	if err := snap.Check(); err != nil {
		t.Fatalf("invariants broken: %v", err)
	}

	updates := store.updates
	if err := svc.DeleteTask(ctx, boardID, b.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	if err := svc.DeleteTask(ctx, "other-board", a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for a foreign board, got %v", err)
	}
	if store.updates != updates {
		t.Fatalf("failed deletes must not persist")
	}
}

func TestDeleteBoardCascadesAndReassignsActive(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	first, s := seedBoard(t, svc)
	_, _ = svc.CreateTask(ctx, first, s[0], TaskInput{Title: "gone"})
	third, _ := seedBoard(t, svc)
	second, _ := seedBoard(t, svc)

	if err := svc.DeleteBoard(ctx, first); err != nil {
		t.Fatalf("delete board: %v", err)
	}
	snap, _ := store.Read(ctx)
	for _, sec := range snap.Sections {
		if sec.BoardID == first {
			t.Fatalf("section %s of deleted board survived", sec.ID)
		}
	}
	for _, task := range snap.Tasks {
		t.Fatalf("task %s of deleted board survived", task.ID)
	}
	want := third
	if second < third {
		want = second
	}
	if snap.ActiveBoard == nil || *snap.ActiveBoard != want {
		t.Fatalf("expected active board %s, got %v", want, snap.ActiveBoard)
	}

	_ = svc.DeleteBoard(ctx, second)
	_ = svc.DeleteBoard(ctx, third)
	snap, _ = store.Read(ctx)
	if snap.ActiveBoard != nil {
		t.Fatalf("expected nil active board, got %q", *snap.ActiveBoard)
	}
}

func TestUpdateTaskPatch(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	boardID, s := seedBoard(t, svc)
	task, _ := svc.CreateTask(ctx, boardID, s[0], TaskInput{Title: "T", Description: "keep", DueDate: "2024-06-01"})

	title, empty, priority := " Renamed ", "", "urgent"
	updated, err := svc.UpdateTask(ctx, boardID, task.ID, TaskPatch{Title: &title, DueDate: &empty, Priority: &priority})
	if err != nil {
		t.Fatalf("update task: %v", err)
	}
	if updated.Title != "Renamed" || updated.Description != "keep" || updated.DueDate != nil || updated.Priority != PriorityUrgent {
		t.Fatalf("unexpected patch result: %#v", updated)
	}
	if updated.SectionID != s[0] || !updated.CreatedAt.Equal(task.CreatedAt) {
		t.Fatalf("patch must not touch ownership or createdAt")
	}

	blank := ""
	if _, err := svc.UpdateTask(ctx, boardID, task.ID, TaskPatch{Title: &blank}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.UpdateTask(ctx, boardID, "missing", TaskPatch{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRenameAndActiveBoard(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	boardID, s := seedBoard(t, svc)
	other, _ := seedBoard(t, svc)

	if _, err := svc.RenameBoard(ctx, boardID, strings.Repeat("x", 201)); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected length validation, got %v", err)
	}
	b, err := svc.RenameBoard(ctx, boardID, "Work")
	if err != nil || b.Name != "Work" {
		t.Fatalf("rename board: %v %#v", err, b)
	}
	sec, err := svc.RenameSection(ctx, boardID, s[1], "Review")
	if err != nil || sec.Name != "Review" {
		t.Fatalf("rename section: %v %#v", err, sec)
	}
	if _, err := svc.SetActiveBoard(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.SetActiveBoard(ctx, other); err != nil {
		t.Fatalf("set active: %v", err)
	}
	snap, _ := store.Read(ctx)
	if *snap.ActiveBoard != other {
		t.Fatalf("expected active %s, got %s", other, *snap.ActiveBoard)
	}
}

func intPtr(i int) *int { return &i }
