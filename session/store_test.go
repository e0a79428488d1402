package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreCreateIsSingletonPerPair(t *testing.T) {
	store := NewInMemoryStore()

	first := newTestSession("sess-1")
	winner1, existed1, err := store.Create(first)
	require.NoError(t, err)
	assert.False(t, existed1)
	assert.Same(t, first, winner1)

	second := newTestSession("sess-1")
	winner2, existed2, err := store.Create(second)
	require.NoError(t, err)
	assert.True(t, existed2)
	assert.Same(t, first, winner2, "losing Create must adopt the winner (I1)")
	assert.True(t, second.Closed(), "loser's key material must be zeroized")
}

func TestStoreCreateConvergesUnderConcurrency(t *testing.T) {
	store := NewInMemoryStore()
	const n = 50

	var wg sync.WaitGroup
	winners := make([]*Session, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess := newTestSession("sess-race")
			winner, _, err := store.Create(sess)
			require.NoError(t, err)
			winners[i] = winner
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Same(t, winners[0], winners[i], "all concurrent Create calls for one pair must converge to one Session")
	}
}

func TestStoreFindByPairIsOrderIndependent(t *testing.T) {
	store := NewInMemoryStore()
	sess := newTestSession("sess-1")
	_, _, err := store.Create(sess)
	require.NoError(t, err)

	found, ok := store.FindByPair("bob", "alice")
	require.True(t, ok)
	assert.Same(t, sess, found)
}

func TestStoreDeleteZeroizesAndRemoves(t *testing.T) {
	store := NewInMemoryStore()
	sess := newTestSession("sess-1")
	_, _, err := store.Create(sess)
	require.NoError(t, err)

	require.NoError(t, store.Delete("sess-1"))
	assert.True(t, sess.Closed())

	_, ok := store.Load("sess-1")
	assert.False(t, ok)
	_, ok = store.FindByPair("alice", "bob")
	assert.False(t, ok)
}

func TestStoreDeleteUnknownSessionErrors(t *testing.T) {
	store := NewInMemoryStore()
	err := store.Delete("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStoreDeleteForUserCascadesAcrossPairs(t *testing.T) {
	store := NewInMemoryStore()

	aliceBob := newTestSession("sess-alice-bob") // alice/bob
	_, _, err := store.Create(aliceBob)
	require.NoError(t, err)

	aliceCarol := New("sess-alice-carol", "alice", "carol", make([]byte, 32), []byte("send-key-0123456789012345678901"), []byte("recv-key-0123456789012345678901"))
	_, _, err = store.Create(aliceCarol)
	require.NoError(t, err)

	bobCarol := New("sess-bob-carol", "bob", "carol", make([]byte, 32), []byte("send-key-0123456789012345678901"), []byte("recv-key-0123456789012345678901"))
	_, _, err = store.Create(bobCarol)
	require.NoError(t, err)

	removed, err := store.DeleteForUser("alice")
	require.NoError(t, err)
	assert.Equal(t, 2, removed, "both sessions alice participates in must be removed")

	assert.True(t, aliceBob.Closed())
	assert.True(t, aliceCarol.Closed())
	assert.False(t, bobCarol.Closed(), "bob/carol does not involve alice and must survive")

	_, ok := store.Load("sess-alice-bob")
	assert.False(t, ok)
	_, ok = store.Load("sess-alice-carol")
	assert.False(t, ok)
	_, ok = store.Load("sess-bob-carol")
	assert.True(t, ok)
}

func TestStoreStatsReflectsLiveSessions(t *testing.T) {
	store := NewInMemoryStore()
	assert.Equal(t, 0, store.Stats().TotalSessions)

	sess := newTestSession("sess-1")
	_, _, err := store.Create(sess)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Stats().TotalSessions)

	require.NoError(t, store.Delete("sess-1"))
	assert.Equal(t, 0, store.Stats().TotalSessions)
}
