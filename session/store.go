package session

import (
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/e2ee-core/relay/internal/metrics"
)

// ErrSessionNotFound is returned by Load/FindByPair when no Session exists.
var ErrSessionNotFound = errors.New("session: not found")

// Store is the C4 persistence contract (§4.4): create, load, mutate
// send-seq, check/record used nonces, delete, and locate by pair.
// Concurrent handshake attempts for the same pair MUST converge to a
// single Session (I1); on constraint violation the loser adopts the
// winner.
type Store interface {
	Create(sess *Session) (*Session, bool, error)
	Load(sessionID string) (*Session, bool)
	UpdateSendSeq(sessionID string, seq uint64) error
	IsNonceUsed(sessionID, nonceHash string) bool
	StoreUsedNonce(sessionID, nonceHash string) error
	Delete(sessionID string) error
	FindByPair(uidA, uidB string) (*Session, bool)

	// DeleteForUser zeroizes and removes every Session userID
	// participates in as one operation (§9 "Session cascade-delete on
	// deactivation"), returning how many were removed.
	DeleteForUser(userID string) (int, error)

	// Stats reports aggregate counts across the Store.
	Stats() Status
}

// InMemoryStore is the default Store, a process-local map guarded by a
// mutex plus a singleflight.Group to collapse concurrent Create calls
// for the same pair into one winner (I1). Grounded on the teacher's
// Manager (sync.RWMutex-guarded map[string]Session); singleflight is new
// here because the teacher's EnsureSessionWithParams only double-checked
// under a second lock acquisition, which still lets two goroutines both
// run NewSecureSession before the loser discards its result — singleflight
// collapses the race at its source instead.
type InMemoryStore struct {
	mu       sync.RWMutex
	byID     map[string]*Session
	byPair   map[string]*Session
	inflight singleflight.Group
}

// NewInMemoryStore constructs an empty Store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:   make(map[string]*Session),
		byPair: make(map[string]*Session),
	}
}

// Create installs sess unless a Session for its pair already exists, in
// which case the caller's sess is discarded (and zeroized) and the
// existing winner is returned with ok=true indicating "already existed".
func (st *InMemoryStore) Create(sess *Session) (*Session, bool, error) {
	pair := sess.PairKey()
	result, _, _ := st.inflight.Do(pair, func() (interface{}, error) {
		st.mu.Lock()
		defer st.mu.Unlock()
		if existing, ok := st.byPair[pair]; ok {
			return existing, nil
		}
		st.byPair[pair] = sess
		st.byID[sess.ID()] = sess
		return sess, nil
	})
	winner := result.(*Session)
	if winner != sess {
		sess.Zeroize()
		return winner, true, nil
	}
	metrics.SessionsCreated.WithLabelValues("success").Inc()
	metrics.SessionsActive.Inc()
	return winner, false, nil
}

// Load returns the Session for sessionID.
func (st *InMemoryStore) Load(sessionID string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	sess, ok := st.byID[sessionID]
	return sess, ok
}

// FindByPair returns the singleton Session for an unordered pair, if any.
func (st *InMemoryStore) FindByPair(uidA, uidB string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	sess, ok := st.byPair[pairKey(uidA, uidB)]
	return sess, ok
}

// UpdateSendSeq is a no-op pass-through: Session.NextSendSeq already
// mutates sendSeq under the Session's own lock; this exists so a
// persistent Store implementation (e.g. Postgres) has a hook to flush the
// new value to disk.
func (st *InMemoryStore) UpdateSendSeq(sessionID string, seq uint64) error {
	if _, ok := st.Load(sessionID); !ok {
		return ErrSessionNotFound
	}
	return nil
}

// IsNonceUsed delegates to the Session's own replay.Tracker state.
func (st *InMemoryStore) IsNonceUsed(sessionID, nonceHash string) bool {
	sess, ok := st.Load(sessionID)
	if !ok {
		return false
	}
	return sess.IsNonceUsed(nonceHash)
}

// StoreUsedNonce delegates to the Session's own replay.Tracker state.
func (st *InMemoryStore) StoreUsedNonce(sessionID, nonceHash string) error {
	sess, ok := st.Load(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	sess.MarkNonceUsed(nonceHash)
	return nil
}

// Delete removes the Session and zeroizes its secrets (I5).
func (st *InMemoryStore) Delete(sessionID string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.byID[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	sess.Zeroize()
	delete(st.byID, sessionID)
	delete(st.byPair, sess.PairKey())
	metrics.SessionsClosed.Inc()
	metrics.SessionsActive.Dec()
	return nil
}

// DeleteForUser zeroizes and removes every Session involving userID,
// e.g. on local logout or an account-deactivation signal from the relay.
func (st *InMemoryStore) DeleteForUser(userID string) (int, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	removed := 0
	for id, sess := range st.byID {
		a, b := sess.Participants()
		if a != userID && b != userID {
			continue
		}
		sess.Zeroize()
		delete(st.byID, id)
		delete(st.byPair, sess.PairKey())
		metrics.SessionsClosed.Inc()
		metrics.SessionsActive.Dec()
		removed++
	}
	return removed, nil
}

// Stats reports how many Sessions are currently live, the same
// aggregate-count shape the teacher's Manager exposed for its own
// session population.
func (st *InMemoryStore) Stats() Status {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return Status{TotalSessions: len(st.byID)}
}
