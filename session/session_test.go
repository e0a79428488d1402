package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(id string) *Session {
	root := make([]byte, 32)
	send := []byte("send-key-0123456789012345678901")
	recv := []byte("recv-key-0123456789012345678901")
	return New(id, "alice", "bob", root, send, recv)
}

func TestSessionSendSeqStartsAtOneAndIncrements(t *testing.T) {
	sess := newTestSession("sess-1")
	assert.EqualValues(t, 0, sess.SendSeq())
	assert.EqualValues(t, 1, sess.NextSendSeq())
	assert.EqualValues(t, 2, sess.NextSendSeq())
	assert.EqualValues(t, 2, sess.SendSeq())
}

func TestSessionDirectionalKeySymmetry(t *testing.T) {
	// I2: sendKey on one side equals recvKey on the other.
	root := make([]byte, 32)
	kAtoB := []byte("a-to-b-key-0123456789012345678901")[:32]
	kBtoA := []byte("b-to-a-key-0123456789012345678901")[:32]

	initiator := New("sess-1", "alice", "bob", root, kAtoB, kBtoA)
	responder := New("sess-1", "bob", "alice", root, kBtoA, kAtoB)

	assert.Equal(t, initiator.SendKey(), responder.RecvKey())
	assert.Equal(t, responder.SendKey(), initiator.RecvKey())
}

func TestSessionNonceReplayTracking(t *testing.T) {
	sess := newTestSession("sess-1")
	require.False(t, sess.IsNonceUsed("abc"))
	sess.MarkNonceUsed("abc")
	require.True(t, sess.IsNonceUsed("abc"))
}

func TestSessionPeerLastSeqMonotonic(t *testing.T) {
	sess := newTestSession("sess-1")
	assert.EqualValues(t, 0, sess.PeerLastSeq())
	sess.SetPeerLastSeq(5)
	assert.EqualValues(t, 5, sess.PeerLastSeq())
}

func TestSessionZeroizeClearsKeyMaterial(t *testing.T) {
	sess := newTestSession("sess-1")
	sendKey := sess.SendKey()
	sess.Zeroize()

	allZero := true
	for _, b := range sendKey {
		if b != 0 {
			allZero = false
		}
	}
	assert.True(t, allZero, "send key must be zeroized")
	assert.True(t, sess.Closed())
}

func TestSessionNoncePruningKeepsMostRecent(t *testing.T) {
	sess := newTestSession("sess-1")
	for i := 0; i < PruneKeepLast+100; i++ {
		sess.MarkNonceUsed(hashFor(i))
	}
	// The most recent PruneKeepLast insertions (or more, since fresh
	// entries are never pruned) must still be present.
	assert.True(t, sess.IsNonceUsed(hashFor(PruneKeepLast+99)))
}

func hashFor(i int) string {
	const hex = "0123456789abcdef"
	b := make([]byte, 8)
	for j := 0; j < 8; j++ {
		b[j] = hex[(i>>(j*4))%16]
	}
	return string(b)
}
