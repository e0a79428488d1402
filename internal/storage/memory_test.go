package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryInsertRejectsDuplicateNonce(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	meta := &MessageMeta{MessageID: "m1", SessionID: "s1", NonceHash: "n1", Sender: "alice", Receiver: "bob"}
	require.NoError(t, store.Insert(ctx, meta))

	dup := &MessageMeta{MessageID: "m2", SessionID: "s1", NonceHash: "n1", Sender: "alice", Receiver: "bob"}
	err := store.Insert(ctx, dup)
	assert.ErrorIs(t, err, ErrNonceConflict)
}

func TestInMemoryPendingForUserExcludesDelivered(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, &MessageMeta{MessageID: "m1", SessionID: "s1", NonceHash: "n1", Receiver: "bob"}))
	require.NoError(t, store.Insert(ctx, &MessageMeta{MessageID: "m2", SessionID: "s1", NonceHash: "n2", Receiver: "bob"}))
	require.NoError(t, store.MarkDelivered(ctx, "m1"))

	pending, err := store.PendingForUser(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "m2", pending[0].MessageID)
}

func TestInMemoryHighestSeqPerSender(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, &MessageMeta{MessageID: "m1", SessionID: "s1", NonceHash: "n1", Sender: "alice", Seq: 3}))
	require.NoError(t, store.Insert(ctx, &MessageMeta{MessageID: "m2", SessionID: "s1", NonceHash: "n2", Sender: "alice", Seq: 7}))

	seq, err := store.HighestSeq(ctx, "s1", "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 7, seq)
}

func TestInMemorySessionCreateIsSingletonPerPair(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &SessionRow{SessionID: "s1", ParticipantA: "alice", ParticipantB: "bob"}))

	err := store.Create(ctx, &SessionRow{SessionID: "s2", ParticipantA: "bob", ParticipantB: "alice"})
	assert.ErrorIs(t, err, ErrPairConflict)

	row, err := store.FindByPair(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, "s1", row.SessionID)
}

func TestInMemoryDeleteForUserCascadesAcrossPairs(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &SessionRow{SessionID: "s1", ParticipantA: "alice", ParticipantB: "bob"}))
	require.NoError(t, store.Create(ctx, &SessionRow{SessionID: "s2", ParticipantA: "alice", ParticipantB: "carol"}))
	require.NoError(t, store.Create(ctx, &SessionRow{SessionID: "s3", ParticipantA: "bob", ParticipantB: "carol"}))
	require.NoError(t, store.Insert(ctx, &MessageMeta{MessageID: "m1", SessionID: "s1", Sender: "alice", Receiver: "bob", NonceHash: "n1"}))

	removed, err := store.DeleteForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = store.FindByPair(ctx, "alice", "bob")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.FindByPair(ctx, "alice", "carol")
	assert.ErrorIs(t, err, ErrNotFound)

	row, err := store.FindByPair(ctx, "bob", "carol")
	require.NoError(t, err)
	assert.Equal(t, "s3", row.SessionID)

	used, err := store.NonceExists(ctx, "s1", "n1")
	require.NoError(t, err)
	assert.False(t, used, "deleting a user's sessions must also clear their recorded nonces")
}

func TestInMemoryKeyUploadRoundTrip(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	require.NoError(t, store.Upload(ctx, "alice", []byte(`{"kty":"EC"}`), "hash123"))

	jwk, hash, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "hash123", hash)
	assert.JSONEq(t, `{"kty":"EC"}`, string(jwk))
}
