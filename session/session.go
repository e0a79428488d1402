package session

import (
	"sync"
	"time"

	"github.com/e2ee-core/relay/internal/zeroize"
)

// Session is the singleton security association for one unordered pair
// of users (§3 "Session"). All mutable replay state it exposes to C5's
// guard is protected by mu, giving the "single-writer mutex per session"
// atomicity §4.5 requires for the check-and-insert of nonce and seq.
type Session struct {
	mu sync.Mutex

	sessionID    string
	participantA string
	participantB string

	rootKey []byte
	sendKey []byte
	recvKey []byte

	sendSeq     uint64
	peerLastSeq uint64

	usedNonceHashes map[string]struct{}
	nonceOrder      []nonceEntry
	lastActivity    time.Time
	createdAt       time.Time
	closed          bool
}

type nonceEntry struct {
	hash string
	at   time.Time
}

// New installs a Session from a completed KEP result (§4.3 "Install
// Session"). selfID/peerID name the two participants; callers pass
// sendKey/recvKey already assigned per their role (initiator vs.
// responder), and New stores them as given.
func New(sessionID, selfID, peerID string, rootKey, sendKey, recvKey []byte) *Session {
	now := time.Now()
	return &Session{
		sessionID:       sessionID,
		participantA:    selfID,
		participantB:    peerID,
		rootKey:         rootKey,
		sendKey:         sendKey,
		recvKey:         recvKey,
		sendSeq:         0,
		peerLastSeq:     0,
		usedNonceHashes: make(map[string]struct{}),
		createdAt:       now,
		lastActivity:    now,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.sessionID }

// Participants returns the unordered pair this Session belongs to.
func (s *Session) Participants() (string, string) { return s.participantA, s.participantB }

// PairKey returns the sorted-pair key the Store's uniqueness constraint
// is keyed on (I1).
func (s *Session) PairKey() string { return pairKey(s.participantA, s.participantB) }

// SendKey returns this side's directional AEAD send key.
func (s *Session) SendKey() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendKey
}

// RecvKey returns this side's directional AEAD receive key.
func (s *Session) RecvKey() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recvKey
}

// NextSendSeq atomically bumps and returns the next outbound sequence
// number, starting at 1 (§3 "sendSeq: local monotonically increasing
// counter starting at 1").
func (s *Session) NextSendSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendSeq++
	s.lastActivity = time.Now()
	return s.sendSeq
}

// ReserveSendSeqRange atomically reserves n consecutive outbound sequence
// numbers and returns the first one, so a file transfer's chunk run (§4.7
// step 4) never interleaves with another Send on the same session.
func (s *Session) ReserveSendSeqRange(n int) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := s.sendSeq + 1
	s.sendSeq += uint64(n)
	s.lastActivity = time.Now()
	return start
}

// SendSeq returns the last issued send sequence number without advancing it.
func (s *Session) SendSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendSeq
}

// LastActivity returns the last time this Session sent or received.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// replay.Tracker implementation. These four methods are always called
// together under the guard's single check-and-insert; PeerLastSeq/
// IsNonceUsed never race against SetPeerLastSeq/MarkNonceUsed because
// every call into this Session for one inbound envelope holds mu for the
// whole sequence (see engine.Receive, which holds Session.Lock around it).

// PeerLastSeq returns the highest seq accepted from the peer (I4).
func (s *Session) PeerLastSeq() uint64 { return s.peerLastSeq }

// SetPeerLastSeq records a newly accepted seq.
func (s *Session) SetPeerLastSeq(seq uint64) {
	s.peerLastSeq = seq
	s.lastActivity = time.Now()
}

// IsNonceUsed reports whether nonceHash was already accepted (I3).
func (s *Session) IsNonceUsed(nonceHash string) bool {
	_, used := s.usedNonceHashes[nonceHash]
	return used
}

// MarkNonceUsed records nonceHash as accepted and prunes old entries.
func (s *Session) MarkNonceUsed(nonceHash string) {
	now := time.Now()
	s.usedNonceHashes[nonceHash] = struct{}{}
	s.nonceOrder = append(s.nonceOrder, nonceEntry{hash: nonceHash, at: now})
	s.pruneLocked(now)
}

// Lock/Unlock expose the session-scoped single-writer mutex so a caller
// (C7's receive pipeline) can hold it across the whole
// structural-validate -> replay-check -> decrypt sequence for one
// envelope, the atomicity unit §4.5 requires.
func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

// pruneLocked drops used-nonce hashes once the set exceeds PruneKeepLast,
// retaining at least the most recent PruneKeepLast entries and never
// removing anything newer than now-2*freshnessWindow (§4.4).
func (s *Session) pruneLocked(now time.Time) {
	if len(s.nonceOrder) <= PruneKeepLast {
		return
	}
	cutoff := now.Add(-pruneMinAge)
	keepFrom := len(s.nonceOrder) - PruneKeepLast
	pruned := s.nonceOrder[:0]
	for i, entry := range s.nonceOrder {
		if i < keepFrom && entry.at.Before(cutoff) {
			delete(s.usedNonceHashes, entry.hash)
			continue
		}
		pruned = append(pruned, entry)
	}
	s.nonceOrder = pruned
}

// Zeroize clears all secret key material (I5: "zeroized on session
// deletion and after single-use derivations").
func (s *Session) Zeroize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	zeroize.All(s.rootKey, s.sendKey, s.recvKey)
	s.closed = true
}

// Closed reports whether Zeroize has run.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// pairKey returns the sorted, colon-joined key two user ids map to,
// regardless of call order (I1's uniqueness constraint key).
func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}
