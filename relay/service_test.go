package relay

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e2ee-core/relay/envelope"
	"github.com/e2ee-core/relay/internal/storage"
	"github.com/e2ee-core/relay/replay"
	"github.com/e2ee-core/relay/transport"
)

type fakeConn struct {
	received []*envelope.Envelope
	fail     bool
}

func (c *fakeConn) Push(ctx context.Context, env *envelope.Envelope) error {
	if c.fail {
		return assert.AnError
	}
	c.received = append(c.received, env)
	return nil
}

func newTestService(t *testing.T) (*Service, storage.MessageStore) {
	t.Helper()
	store := storage.NewInMemory()
	hub := transport.NewHub()
	return NewService(store, store, store, nil, NewLimiter(100, 1000), hub), store
}

func validEnvelope(sessionID, sender, receiver string, seq uint64) *envelope.Envelope {
	nonce := make([]byte, 12)
	for i := range nonce {
		nonce[i] = byte(seq + uint64(i))
	}
	return &envelope.Envelope{
		Type:       envelope.TypeMSG,
		SessionID:  sessionID,
		Sender:     sender,
		Receiver:   receiver,
		Ciphertext: base64.StdEncoding.EncodeToString([]byte("ciphertext")),
		IV:         base64.StdEncoding.EncodeToString(make([]byte, 12)),
		AuthTag:    base64.StdEncoding.EncodeToString(make([]byte, 16)),
		Timestamp:  replay.NowMs(),
		Seq:        seq,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
	}
}

func TestHandleEnvelopeAcceptsAndPersists(t *testing.T) {
	svc, store := newTestService(t)
	env := validEnvelope("s1", "alice", "bob", 1)

	ack, err := svc.HandleEnvelope(context.Background(), "alice", env)
	require.NoError(t, err)
	assert.False(t, ack.Delivered)

	pending, err := store.PendingForUser(context.Background(), "bob")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, ack.MessageID, pending[0].MessageID)
}

func TestHandleEnvelopeRejectsSenderMismatch(t *testing.T) {
	svc, _ := newTestService(t)
	env := validEnvelope("s1", "alice", "bob", 1)

	_, err := svc.HandleEnvelope(context.Background(), "mallory", env)
	assert.ErrorIs(t, err, ErrSenderMismatch)
}

func TestHandleEnvelopeRejectsReplayedNonce(t *testing.T) {
	svc, _ := newTestService(t)
	env := validEnvelope("s1", "alice", "bob", 1)

	_, err := svc.HandleEnvelope(context.Background(), "alice", env)
	require.NoError(t, err)

	replayed := validEnvelope("s1", "alice", "bob", 2)
	replayed.Nonce = env.Nonce
	_, err = svc.HandleEnvelope(context.Background(), "alice", replayed)
	assert.ErrorIs(t, err, ErrDuplicateNonce)
}

func TestHandleEnvelopeRejectsNonMonotonicSeq(t *testing.T) {
	svc, _ := newTestService(t)
	first := validEnvelope("s1", "alice", "bob", 5)
	_, err := svc.HandleEnvelope(context.Background(), "alice", first)
	require.NoError(t, err)

	second := validEnvelope("s1", "alice", "bob", 5)
	_, err = svc.HandleEnvelope(context.Background(), "alice", second)
	assert.ErrorIs(t, err, ErrSeqNotMonotonic)
}

func TestHandleEnvelopeRejectsStaleTimestamp(t *testing.T) {
	svc, _ := newTestService(t)
	env := validEnvelope("s1", "alice", "bob", 1)
	env.Timestamp = replay.NowMs() - (replay.FreshnessWindowMs + replay.ClockSkewMs + 5000)

	_, err := svc.HandleEnvelope(context.Background(), "alice", env)
	assert.ErrorIs(t, err, ErrTimestampOutOfWindow)
}

func TestHandleEnvelopeForwardsToLiveTransportAndMarksDelivered(t *testing.T) {
	svc, store := newTestService(t)
	conn := &fakeConn{}
	svc.Hub.Register("bob", conn)

	env := validEnvelope("s1", "alice", "bob", 1)
	ack, err := svc.HandleEnvelope(context.Background(), "alice", env)
	require.NoError(t, err)
	assert.True(t, ack.Delivered)
	require.Len(t, conn.received, 1)

	pending, err := store.PendingForUser(context.Background(), "bob")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestHandleEnvelopeRateLimited(t *testing.T) {
	store := storage.NewInMemory()
	svc := NewService(store, store, store, nil, NewLimiter(100, 1), transport.NewHub())

	first := validEnvelope("s1", "alice", "bob", 1)
	_, err := svc.HandleEnvelope(context.Background(), "alice", first)
	require.NoError(t, err)

	second := validEnvelope("s1", "alice", "bob", 2)
	_, err = svc.HandleEnvelope(context.Background(), "alice", second)
	var rl *RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, ClassData, rl.Class)
}

func TestCreateSessionIsSingletonPerPair(t *testing.T) {
	svc, _ := newTestService(t)
	row1, err := svc.CreateSession(context.Background(), "alice", "bob")
	require.NoError(t, err)
	row2, err := svc.CreateSession(context.Background(), "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, row1.SessionID, row2.SessionID)
}

func TestDeactivateUserCascadesSessionsOnly(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreateSession(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = svc.CreateSession(ctx, "alice", "carol")
	require.NoError(t, err)
	_, err = svc.CreateSession(ctx, "bob", "carol")
	require.NoError(t, err)

	removed, err := svc.DeactivateUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	row, err := svc.Sessions.FindByPair(ctx, "bob", "carol")
	require.NoError(t, err, "a pair not involving the deactivated user must survive")
	assert.Equal(t, "bob", row.ParticipantA)
}

func TestUploadAndGetKeyRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	jwk := []byte(`{"kty":"EC","crv":"P-256","x":"abc","y":"def"}`)

	keyHash, err := svc.UploadKey(context.Background(), "alice", jwk)
	require.NoError(t, err)
	assert.NotEmpty(t, keyHash)

	got, gotHash, err := svc.GetKey(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, keyHash, gotHash)
	assert.JSONEq(t, string(jwk), string(got))
}

func TestPendingForUserExcludesTamperedRows(t *testing.T) {
	svc, store := newTestService(t)

	clean := &storage.MessageMeta{MessageID: "m1", SessionID: "s1", Sender: "alice", Receiver: "bob", NonceHash: "n1"}
	clean.MetadataHash, _ = computeMetadataHash(clean)
	require.NoError(t, store.Insert(context.Background(), clean))

	tampered := &storage.MessageMeta{MessageID: "m2", SessionID: "s1", Sender: "alice", Receiver: "bob", NonceHash: "n2"}
	tampered.MetadataHash = "not-the-real-hash"
	require.NoError(t, store.Insert(context.Background(), tampered))

	pending, err := svc.PendingForUser(context.Background(), "bob")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "m1", pending[0].MessageID)
}
