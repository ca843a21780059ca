package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotFound = errors.New("record not found")

// Table names of the object store.
const (
	TableChats       = "chats"
	TableStreams     = "streams"
	TableDocuments   = "documents"
	TableVersions    = "document_versions"
	TableSuggestions = "suggestions"
	TableFiles       = "files"
)

// Record is one JSON-serialized row of an object table. ParentID is the
// secondary key (chat id for streams, document id for versions and suggestions).
type Record struct {
	Table     string
	Owner     string
	ID        string
	ParentID  string
	CreatedAt time.Time
	UpdatedAt time.Time
	Data      []byte
}

type Order int

const (
	OrderCreatedAsc Order = iota
	OrderUpdatedDesc
)

type Query struct {
	ParentID     string
	UpdatedAfter time.Time
	Order        Order
	Limit        int
}

// Store is the persisted key-value and object-table substrate. Every item is
// scoped by owner; the empty owner is the global scope.
type Store interface {
	GetItem(ctx context.Context, owner, key string) (string, error)
	SetItem(ctx context.Context, owner, key, value string) error
	RemoveItem(ctx context.Context, owner, key string) error

	Put(ctx context.Context, recs ...Record) error
	Get(ctx context.Context, table, owner, id string) (*Record, error)
	List(ctx context.Context, table, owner string, q Query) ([]Record, error)
	Delete(ctx context.Context, table, owner string, ids ...string) error
	DeleteByParent(ctx context.Context, table, owner, parentID string) (int64, error)
	DeleteBefore(ctx context.Context, table string, before time.Time) (int64, error)

	// Blobs hold raw file contents next to their metadata records.
	PutBlob(ctx context.Context, owner, id string, data []byte) error
	GetBlob(ctx context.Context, owner, id string) ([]byte, error)
	DeleteBlobs(ctx context.Context, owner string, ids ...string) error

	// Clear removes every item, record and blob of one owner.
	Clear(ctx context.Context, owner string) error
	// ClearAll wipes the whole store.
	ClearAll(ctx context.Context) error

	Ping(ctx context.Context) error
	Close() error
}

// Open connects to the backend selected by the URL scheme and applies migrations.
// postgres:// and postgresql:// select Postgres; sqlite:// or a bare path select SQLite.
func Open(ctx context.Context, databaseURL string) (Store, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return OpenPostgres(ctx, databaseURL)
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return OpenSQLite(ctx, strings.TrimPrefix(databaseURL, "sqlite://"))
	case databaseURL == "":
		return nil, fmt.Errorf("open store: empty database url")
	default:
		return OpenSQLite(ctx, databaseURL)
	}
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func orderClause(o Order) string {
	if o == OrderUpdatedDesc {
		return " ORDER BY updated_at DESC, id ASC"
	}
	return " ORDER BY created_at ASC, id ASC"
}
