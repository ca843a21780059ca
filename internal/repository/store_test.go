package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	store, err := Open(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestItems(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	_, err := store.GetItem(ctx, "did:nuwa:alice", "settings")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.SetItem(ctx, "did:nuwa:alice", "settings", `{"language":"en"}`))
	require.NoError(t, store.SetItem(ctx, "did:nuwa:alice", "settings", `{"language":"cn"}`))
	v, err := store.GetItem(ctx, "did:nuwa:alice", "settings")
	require.NoError(t, err)
	assert.Equal(t, `{"language":"cn"}`, v)

	_, err = store.GetItem(ctx, "did:nuwa:bob", "settings")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.RemoveItem(ctx, "did:nuwa:alice", "settings"))
	_, err = store.GetItem(ctx, "did:nuwa:alice", "settings")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordsUpsertAndList(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	base := time.UnixMilli(1_700_000_000_000).UTC()

	require.NoError(t, store.Put(ctx,
		Record{Table: TableChats, Owner: "o", ID: "a", CreatedAt: base, UpdatedAt: base, Data: []byte(`{"v":1}`)},
		Record{Table: TableChats, Owner: "o", ID: "b", CreatedAt: base.Add(time.Second), UpdatedAt: base.Add(time.Second), Data: []byte(`{"v":2}`)},
	))
	require.NoError(t, store.Put(ctx,
		Record{Table: TableChats, Owner: "o", ID: "a", CreatedAt: base, UpdatedAt: base.Add(time.Minute), Data: []byte(`{"v":3}`)},
	))

	rec, err := store.Get(ctx, TableChats, "o", "a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":3}`, string(rec.Data))
	assert.Equal(t, base, rec.CreatedAt)

	recs, err := store.List(ctx, TableChats, "o", Query{Order: OrderUpdatedDesc})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].ID)

	recs, err = store.List(ctx, TableChats, "o", Query{Order: OrderCreatedAsc, Limit: 1})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "a", recs[0].ID)

	recs, err = store.List(ctx, TableChats, "o", Query{UpdatedAfter: base.Add(30 * time.Second)})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "a", recs[0].ID)

	_, err = store.Get(ctx, TableChats, "other", "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteByParentAndBefore(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	old := time.Now().Add(-48 * time.Hour)
	now := time.Now()

	require.NoError(t, store.Put(ctx,
		Record{Table: TableStreams, Owner: "o", ID: "s1", ParentID: "c1", CreatedAt: old, UpdatedAt: old, Data: []byte(`{}`)},
		Record{Table: TableStreams, Owner: "o", ID: "s2", ParentID: "c1", CreatedAt: now, UpdatedAt: now, Data: []byte(`{}`)},
		Record{Table: TableStreams, Owner: "o", ID: "s3", ParentID: "c2", CreatedAt: now, UpdatedAt: now, Data: []byte(`{}`)},
	))

	n, err := store.DeleteBefore(ctx, TableStreams, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = store.DeleteByParent(ctx, TableStreams, "o", "c1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	recs, err := store.List(ctx, TableStreams, "o", Query{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "s3", recs[0].ID)

	require.NoError(t, store.Delete(ctx, TableStreams, "o", "s3", "missing"))
	recs, err = store.List(ctx, TableStreams, "o", Query{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestClearScopesToOwner(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	now := time.Now()

	for _, owner := range []string{"alice", "bob"} {
		require.NoError(t, store.SetItem(ctx, owner, "k", "v"))
		require.NoError(t, store.Put(ctx, Record{Table: TableDocuments, Owner: owner, ID: "d", CreatedAt: now, UpdatedAt: now, Data: []byte(`{}`)}))
		require.NoError(t, store.PutBlob(ctx, owner, "f", []byte("blob")))
	}

	require.NoError(t, store.Clear(ctx, "alice"))
	_, err := store.GetItem(ctx, "alice", "k")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(ctx, TableDocuments, "alice", "d")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetBlob(ctx, "alice", "f")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(ctx, TableDocuments, "bob", "d")
	assert.NoError(t, err)

	require.NoError(t, store.ClearAll(ctx))
	_, err = store.GetItem(ctx, "bob", "k")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetBlob(ctx, "bob", "f")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBlobs(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	data := []byte{0x89, 'P', 'N', 'G', 0x00, 0xff}

	_, err := store.GetBlob(ctx, "alice", "img")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.PutBlob(ctx, "alice", "img", data))
	got, err := store.GetBlob(ctx, "alice", "img")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = store.GetBlob(ctx, "bob", "img")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.PutBlob(ctx, "alice", "txt", []byte("hi")))
	require.NoError(t, store.DeleteBlobs(ctx, "alice", "img", "txt"))
	_, err = store.GetBlob(ctx, "alice", "txt")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, store.DeleteBlobs(ctx, "alice"))
}

func TestOpenRejectsEmptyURL(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}
