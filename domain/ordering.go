package domain

// ClampIndex maps any requested index onto [0, n]. Out of range values never
// fail: anything past the end appends.
func ClampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

// removeID returns a new slice without id and whether id was present.
func removeID(ids []string, id string) ([]string, bool) {
	idx := indexOf(ids, id)
	if idx < 0 {
		return ids, false
	}
	out := make([]string, 0, len(ids)-1)
	out = append(out, ids[:idx]...)
	return append(out, ids[idx+1:]...), true
}

// insertAt returns a new slice with id placed at the clamped index.
func insertAt(ids []string, id string, i int) []string {
	i = ClampIndex(i, len(ids))
	out := make([]string, 0, len(ids)+1)
	out = append(out, ids[:i]...)
	out = append(out, id)
	return append(out, ids[i:]...)
}

// Reposition removes id from ids and re-inserts it at index, interpreted
// against the sequence after removal. A nil index appends.
func Reposition(ids []string, id string, index *int) ([]string, bool) {
	rest, ok := removeID(ids, id)
	if !ok {
		return ids, false
	}
	at := len(rest)
	if index != nil {
		at = *index
	}
	return insertAt(rest, id, at), true
}
