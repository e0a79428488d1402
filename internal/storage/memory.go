package storage

import (
	"context"
	"sync"
	"time"
)

// InMemory implements MessageStore, SessionStore and KeyStore for tests
// and the default "memory" storage driver, grounded on the teacher's
// pkg/storage/memory package shape (map + sync.RWMutex per concern).
type InMemory struct {
	mu       sync.RWMutex
	messages map[string]*MessageMeta          // by messageID
	bySess   map[string][]*MessageMeta        // sessionID -> messages, insertion order
	nonces   map[string]map[string]struct{}   // sessionID -> nonceHash set
	sessions map[string]*SessionRow           // sessionID -> row
	byPair   map[string]string                // pairKey -> sessionID
	keys     map[string]keyRecord
}

type keyRecord struct {
	jwk     []byte
	keyHash string
}

var (
	_ MessageStore = (*InMemory)(nil)
	_ SessionStore = (*InMemory)(nil)
	_ KeyStore     = (*InMemory)(nil)
)

// NewInMemory constructs an empty InMemory store.
func NewInMemory() *InMemory {
	return &InMemory{
		messages: make(map[string]*MessageMeta),
		bySess:   make(map[string][]*MessageMeta),
		nonces:   make(map[string]map[string]struct{}),
		sessions: make(map[string]*SessionRow),
		byPair:   make(map[string]string),
		keys:     make(map[string]keyRecord),
	}
}

func (m *InMemory) Insert(ctx context.Context, meta *MessageMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if set, ok := m.nonces[meta.SessionID]; ok {
		if _, used := set[meta.NonceHash]; used {
			return ErrNonceConflict
		}
	} else {
		m.nonces[meta.SessionID] = make(map[string]struct{})
	}

	meta.CreatedAt = time.Now()
	m.nonces[meta.SessionID][meta.NonceHash] = struct{}{}
	m.messages[meta.MessageID] = meta
	m.bySess[meta.SessionID] = append(m.bySess[meta.SessionID], meta)
	return nil
}

func (m *InMemory) MarkDelivered(ctx context.Context, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[messageID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	msg.Delivered = true
	msg.DeliveredAt = &now
	return nil
}

func (m *InMemory) PendingForUser(ctx context.Context, userID string) ([]*MessageMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*MessageMeta
	for _, msg := range m.messages {
		if msg.Receiver == userID && !msg.Delivered {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *InMemory) HighestSeq(ctx context.Context, sessionID, sender string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var highest uint64
	for _, msg := range m.bySess[sessionID] {
		if msg.Sender == sender && msg.Seq > highest {
			highest = msg.Seq
		}
	}
	return highest, nil
}

func (m *InMemory) NonceExists(ctx context.Context, sessionID, nonceHash string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set, ok := m.nonces[sessionID]
	if !ok {
		return false, nil
	}
	_, used := set[nonceHash]
	return used, nil
}

func (m *InMemory) Create(ctx context.Context, row *SessionRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(row.ParticipantA, row.ParticipantB)
	if _, exists := m.byPair[key]; exists {
		return ErrPairConflict
	}
	row.CreatedAt = time.Now()
	m.sessions[row.SessionID] = row
	m.byPair[key] = row.SessionID
	return nil
}

func (m *InMemory) FindByPair(ctx context.Context, uidA, uidB string) (*SessionRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byPair[pairKey(uidA, uidB)]
	if !ok {
		return nil, ErrNotFound
	}
	return m.sessions[id], nil
}

func (m *InMemory) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	delete(m.sessions, sessionID)
	delete(m.byPair, pairKey(row.ParticipantA, row.ParticipantB))
	return nil
}

// DeleteForUser removes every SessionRow userID participates in, plus
// the nonce set recorded against each one, in a single locked pass.
func (m *InMemory) DeleteForUser(ctx context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, row := range m.sessions {
		if row.ParticipantA != userID && row.ParticipantB != userID {
			continue
		}
		delete(m.sessions, id)
		delete(m.byPair, pairKey(row.ParticipantA, row.ParticipantB))
		delete(m.nonces, id)
		removed++
	}
	return removed, nil
}

func (m *InMemory) Upload(ctx context.Context, userID string, jwk []byte, keyHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[userID] = keyRecord{jwk: jwk, keyHash: keyHash}
	return nil
}

func (m *InMemory) Get(ctx context.Context, userID string) ([]byte, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.keys[userID]
	if !ok {
		return nil, "", ErrNotFound
	}
	return rec.jwk, rec.keyHash, nil
}

func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}
