package storage

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"prism-board/domain"
)

// A string property holds at most 64 KiB of UTF-16; chunks stay well below.
const tableChunkSize = 30000

type tableClient interface {
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	AddEntity(ctx context.Context, entity []byte, options *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	UpdateEntity(ctx context.Context, entity []byte, options *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
}

// TablesBackend stores the document in a single Azure Table entity. The
// version pairs the entity's Revision property with its ETag, which guards
// the write.
type TablesBackend struct {
	client tableClient
}

// NewTablesBackend connects to table using the storage connection string.
func NewTablesBackend(connStr, table string) (*TablesBackend, error) {
	c, err := NewTableClient(connStr, table)
	if err != nil {
		return nil, err
	}
	return &TablesBackend{client: c}, nil
}

func (t *TablesBackend) Load(ctx context.Context) (domain.Snapshot, Version, error) {
	resp, err := t.client.GetEntity(ctx, documentID, documentID, nil)
	if err != nil {
		if responseStatus(err) == http.StatusNotFound {
			return domain.NewSnapshot(), "", nil
		}
		return domain.Snapshot{}, "", err
	}
	body, rev, err := joinChunks(resp.Value)
	if err != nil {
		return domain.Snapshot{}, "", err
	}
	snap, err := decodeSnapshot(body)
	if err != nil {
		return domain.Snapshot{}, "", fmt.Errorf("decode document: %w", err)
	}
	return snap, tableVersion(rev, resp.ETag), nil
}

func (t *TablesBackend) Save(ctx context.Context, snap domain.Snapshot, expected Version) (Version, error) {
	body, err := encodeSnapshot(snap)
	if err != nil {
		return "", err
	}
	rev := revisionOf(expected) + 1
	entity, err := codec.Marshal(documentEntity(body, rev))
	if err != nil {
		return "", err
	}

	var etag azcore.ETag
	if expected == "" {
		resp, err := t.client.AddEntity(ctx, entity, nil)
		if err != nil {
			return "", tableWriteError(err)
		}
		etag = resp.ETag
	} else {
		_, tag, _ := strings.Cut(string(expected), ";")
		match := azcore.ETag(tag)
		resp, err := t.client.UpdateEntity(ctx, entity, &aztables.UpdateEntityOptions{
			IfMatch:    &match,
			UpdateMode: aztables.UpdateModeReplace,
		})
		if err != nil {
			return "", tableWriteError(err)
		}
		etag = resp.ETag
	}
	return tableVersion(rev, etag), nil
}

func tableVersion(rev int64, etag azcore.ETag) Version {
	return Version(strconv.FormatInt(rev, 10) + ";" + string(etag))
}

func tableWriteError(err error) error {
	switch status := responseStatus(err); status {
	case http.StatusConflict, http.StatusPreconditionFailed, http.StatusNotFound:
		return fmt.Errorf("%w: table write rejected with status %d", domain.ErrConcurrencyConflict, status)
	}
	return err
}

func documentEntity(body []byte, rev int64) map[string]any {
	chunks := splitChunks(string(body), tableChunkSize)
	ent := map[string]any{
		"PartitionKey": documentID,
		"RowKey":       documentID,
		"Revision":     rev,
		"Chunks":       len(chunks),
	}
	for i, c := range chunks {
		ent["Document"+strconv.Itoa(i)] = c
	}
	return ent
}

// joinChunks reassembles the document body and returns the stored revision,
// 0 for entities written without one.
func joinChunks(raw []byte) ([]byte, int64, error) {
	var ent map[string]any
	if err := codec.Unmarshal(raw, &ent); err != nil {
		return nil, 0, err
	}
	n, ok := ent["Chunks"].(float64)
	if !ok {
		return nil, 0, fmt.Errorf("document entity has no chunk count")
	}
	var out []byte
	for i := 0; i < int(n); i++ {
		part, ok := ent["Document"+strconv.Itoa(i)].(string)
		if !ok {
			return nil, 0, fmt.Errorf("document entity misses chunk %d", i)
		}
		out = append(out, part...)
	}
	rev, _ := ent["Revision"].(float64)
	return out, int64(rev), nil
}

// splitChunks cuts s into pieces of at most size bytes without splitting a
// UTF-8 sequence.
func splitChunks(s string, size int) []string {
	if s == "" {
		return []string{""}
	}
	var out []string
	for len(s) > size {
		cut := size
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		out = append(out, s[:cut])
		s = s[cut:]
	}
	return append(out, s)
}
