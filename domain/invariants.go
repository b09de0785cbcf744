package domain

import "fmt"

// Check verifies the ordering invariants of the document:
// every section's taskIds lists exactly its tasks once, every board's
// sectionOrder lists exactly its sections once, and activeBoard is nil only
// when no boards exist.
func (s Snapshot) Check() error {
	tasksBySection := make(map[string]int, len(s.Sections))
	for id, t := range s.Tasks {
		if t.ID != id {
			return corrupt("task key %q holds id %q", id, t.ID)
		}
		sec, ok := s.Sections[t.SectionID]
		if !ok {
			return corrupt("task %q references missing section %q", id, t.SectionID)
		}
		if sec.BoardID != t.BoardID {
			return corrupt("task %q board %q differs from section board %q", id, t.BoardID, sec.BoardID)
		}
		tasksBySection[t.SectionID]++
	}

	sectionsByBoard := make(map[string]int, len(s.Boards))
	for id, sec := range s.Sections {
		if sec.ID != id {
			return corrupt("section key %q holds id %q", id, sec.ID)
		}
		if _, ok := s.Boards[sec.BoardID]; !ok {
			return corrupt("section %q references missing board %q", id, sec.BoardID)
		}
		sectionsByBoard[sec.BoardID]++
		seen := make(map[string]struct{}, len(sec.TaskIDs))
		for _, tid := range sec.TaskIDs {
			if _, dup := seen[tid]; dup {
				return corrupt("section %q lists task %q twice", id, tid)
			}
			seen[tid] = struct{}{}
			t, ok := s.Tasks[tid]
			if !ok || t.SectionID != id {
				return corrupt("section %q lists task %q it does not own", id, tid)
			}
		}
		if len(sec.TaskIDs) != tasksBySection[id] {
			return corrupt("section %q lists %d of %d tasks", id, len(sec.TaskIDs), tasksBySection[id])
		}
	}

	for id, b := range s.Boards {
		if b.ID != id {
			return corrupt("board key %q holds id %q", id, b.ID)
		}
		seen := make(map[string]struct{}, len(b.SectionOrder))
		for _, sid := range b.SectionOrder {
			if _, dup := seen[sid]; dup {
				return corrupt("board %q lists section %q twice", id, sid)
			}
			seen[sid] = struct{}{}
			sec, ok := s.Sections[sid]
			if !ok || sec.BoardID != id {
				return corrupt("board %q lists section %q it does not own", id, sid)
			}
		}
		if len(b.SectionOrder) != sectionsByBoard[id] {
			return corrupt("board %q lists %d of %d sections", id, len(b.SectionOrder), sectionsByBoard[id])
		}
	}

	switch {
	case s.ActiveBoard == nil && len(s.Boards) > 0:
		return corrupt("no active board while %d boards exist", len(s.Boards))
	case s.ActiveBoard != nil:
		if _, ok := s.Boards[*s.ActiveBoard]; !ok {
			return corrupt("active board %q does not exist", *s.ActiveBoard)
		}
	}
	return nil
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))
}
