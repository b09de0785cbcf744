package storage

import (
	"context"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"

	"prism-board/domain"
)

// Version identifies one stored revision of the document. The zero value
// means nothing has been written yet. Versions start with the decimal commit
// revision; backends may append ";" and an opaque token.
type Version string

// revisionOf returns the commit revision in v, or 0 when v carries none.
func revisionOf(v Version) int64 {
	head, _, _ := strings.Cut(string(v), ";")
	n, err := strconv.ParseInt(head, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Backend persists the whole document with an optimistic version check.
type Backend interface {
	// Load returns the stored snapshot and its version, or an empty snapshot
	// and the zero version when nothing was written yet.
	Load(ctx context.Context) (domain.Snapshot, Version, error)
	// Save writes snap only when the stored version still equals expected
	// and returns the new version. A mismatch yields
	// domain.ErrConcurrencyConflict.
	Save(ctx context.Context, snap domain.Snapshot, expected Version) (Version, error)
}

// codec sorts map keys so identical snapshots encode to identical bytes.
var codec = sonic.ConfigStd

type document struct {
	Version int64 `json:"version"`
	domain.Snapshot
}

func encodeDocument(snap domain.Snapshot, version int64) ([]byte, error) {
	return codec.Marshal(document{Version: version, Snapshot: snap})
}

func decodeDocument(data []byte) (domain.Snapshot, int64, error) {
	var doc document
	if err := codec.Unmarshal(data, &doc); err != nil {
		return domain.Snapshot{}, 0, err
	}
	doc.Snapshot.Normalize()
	return doc.Snapshot, doc.Version, nil
}

func encodeSnapshot(snap domain.Snapshot) ([]byte, error) {
	return codec.Marshal(snap)
}

func decodeSnapshot(data []byte) (domain.Snapshot, error) {
	var snap domain.Snapshot
	if err := codec.Unmarshal(data, &snap); err != nil {
		return domain.Snapshot{}, err
	}
	snap.Normalize()
	return snap, nil
}

func intVersion(v int64) Version {
	if v == 0 {
		return ""
	}
	return Version(strconv.FormatInt(v, 10))
}

func parseIntVersion(v Version) (int64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(string(v), 10, 64)
}
