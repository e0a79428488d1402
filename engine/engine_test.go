package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e2ee-core/relay/filepipe"
	"github.com/e2ee-core/relay/session"
)

func newPairedStore(t *testing.T) (session.Store, *session.Session, *session.Session) {
	t.Helper()
	store := session.NewInMemoryStore()

	aliceKey := make([]byte, 32)
	bobKey := make([]byte, 32)
	for i := range aliceKey {
		aliceKey[i] = byte(i)
		bobKey[i] = byte(255 - i)
	}

	alice := session.New("sess-1", "alice", "bob", nil, aliceKey, bobKey)
	bob := session.New("sess-1", "bob", "alice", nil, bobKey, aliceKey)

	installed, _, err := store.Create(alice)
	require.NoError(t, err)
	require.Same(t, alice, installed)

	return store, alice, bob
}

func TestSendReceiveRoundTrip(t *testing.T) {
	store, _, bob := newPairedStore(t)

	env, err := Send(store, "sess-1", []byte("hello bob"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, env.Seq)

	plaintext, err := Receive(bobStoreOf(store, bob), env)
	require.NoError(t, err)
	assert.Equal(t, "hello bob", string(plaintext))
}

func TestSendIncrementsSeqAcrossCalls(t *testing.T) {
	store, _, _ := newPairedStore(t)

	env1, err := Send(store, "sess-1", []byte("first"))
	require.NoError(t, err)
	env2, err := Send(store, "sess-1", []byte("second"))
	require.NoError(t, err)

	assert.EqualValues(t, 1, env1.Seq)
	assert.EqualValues(t, 2, env2.Seq)
}

func TestReceiveRejectsReplayedEnvelope(t *testing.T) {
	store, _, bob := newPairedStore(t)
	bobStore := bobStoreOf(store, bob)

	env, err := Send(store, "sess-1", []byte("hello"))
	require.NoError(t, err)

	_, err = Receive(bobStore, env)
	require.NoError(t, err)

	_, err = Receive(bobStore, env)
	assert.Error(t, err)
}

func TestSendUnknownSessionErrors(t *testing.T) {
	store := session.NewInMemoryStore()
	env, err := Send(store, "missing", []byte("x"))
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Nil(t, env)
}

func TestSendFileThenReceiveViaFilepipe(t *testing.T) {
	store, alice, bob := newPairedStore(t)
	_ = alice

	data := make([]byte, filepipe.ChunkSize+50)
	for i := range data {
		data[i] = byte(i % 251)
	}
	meta := filepipe.FileMeta{Filename: "a.bin", Size: int64(len(data))}

	metaEnv, chunks, err := SendFile(store, "sess-1", meta, data)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)

	decodedMeta, out, err := filepipe.Decrypt(bob.RecvKey(), metaEnv, chunks)
	require.NoError(t, err)
	assert.Equal(t, "a.bin", decodedMeta.Filename)
	assert.Equal(t, data, out)

	next, err := Send(store, "sess-1", []byte("after file"))
	require.NoError(t, err)
	assert.EqualValues(t, 4, next.Seq)
}

// bobStoreOf wraps store so Receive looks up bob's Session (with bob's
// recvKey) under the same sessionId alice's Send used.
func bobStoreOf(store session.Store, bob *session.Session) session.Store {
	return singleSessionStore{bob}
}

type singleSessionStore struct {
	sess *session.Session
}

func (s singleSessionStore) Create(sess *session.Session) (*session.Session, bool, error) {
	return s.sess, true, nil
}
func (s singleSessionStore) Load(sessionID string) (*session.Session, bool) {
	if sessionID != s.sess.ID() {
		return nil, false
	}
	return s.sess, true
}
func (s singleSessionStore) UpdateSendSeq(sessionID string, seq uint64) error { return nil }
func (s singleSessionStore) IsNonceUsed(sessionID, nonceHash string) bool {
	return s.sess.IsNonceUsed(nonceHash)
}
func (s singleSessionStore) StoreUsedNonce(sessionID, nonceHash string) error {
	s.sess.MarkNonceUsed(nonceHash)
	return nil
}
func (s singleSessionStore) Delete(sessionID string) error { return nil }
func (s singleSessionStore) FindByPair(uidA, uidB string) (*session.Session, bool) {
	return s.sess, true
}
func (s singleSessionStore) DeleteForUser(userID string) (int, error) { return 0, nil }
func (s singleSessionStore) Stats() session.Status                    { return session.Status{TotalSessions: 1} }
