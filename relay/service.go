// Package relay implements the server-side enforcement layer (C8):
// authentication, structural and replay validation, rate limiting,
// metadata-only persistence and live-transport fanout for every inbound
// envelope, grounded on the teacher's pkg/agent/transport/{http,websocket}
// server adapters generalized from a single-shot request/response RPC to
// a stateful forward-and-persist pipeline, backed by internal/storage for
// MessageMeta/SessionRow/identity-key persistence.
package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/e2ee-core/relay/crypto"
	"github.com/e2ee-core/relay/envelope"
	"github.com/e2ee-core/relay/internal/metrics"
	"github.com/e2ee-core/relay/internal/storage"
	"github.com/e2ee-core/relay/kep"
	"github.com/e2ee-core/relay/transport"
)

// Service wires authentication, rate limiting, persistence and transport
// fanout into the enforcement pipeline §4.8 describes.
type Service struct {
	Messages storage.MessageStore
	Sessions storage.SessionStore
	Keys     storage.KeyStore
	Auth     Authenticator
	Limiter  *Limiter
	Hub      *transport.Hub

	sessionCreate singleflight.Group
}

// NewService constructs a Service from its collaborators. A nil Limiter
// falls back to the default budgets.
func NewService(messages storage.MessageStore, sessions storage.SessionStore, keys storage.KeyStore, auth Authenticator, limiter *Limiter, hub *transport.Hub) *Service {
	if limiter == nil {
		limiter = NewLimiter(0, 0)
	}
	if hub == nil {
		hub = transport.NewHub()
	}
	return &Service{Messages: messages, Sessions: sessions, Keys: keys, Auth: auth, Limiter: limiter, Hub: hub}
}

// Ack is what HandleEnvelope returns on acceptance: enough for the caller
// to emit the `msg:sent` delivery-acknowledgment event (§6).
type Ack struct {
	MessageID string
	SessionID string
	Delivered bool
}

// HandleEnvelope runs the full §4.8 enforcement pipeline for one inbound
// envelope from an already-authenticated caller:
//  1. verify sender == caller (authentication itself happens at the
//     transport boundary, before this is called)
//  2. structurally validate (C2)
//  3. apply the replay/freshness guard against persisted rows
//  4. persist MessageMeta with its integrity hash
//  5. forward to every live transport belonging to the receiver
//  6. mark delivered if at least one transport accepted
func (s *Service) HandleEnvelope(ctx context.Context, callerID string, env *envelope.Envelope) (*Ack, error) {
	if env.Sender != callerID {
		return nil, ErrSenderMismatch
	}

	if !s.Limiter.Allow(ClassData, callerID) {
		return nil, &RateLimitedError{CallerID: callerID, Class: ClassData}
	}

	if err := envelope.ValidateStructure(env); err != nil {
		return nil, err
	}

	nonceHash, err := checkReplay(ctx, s.Messages, env)
	if err != nil {
		if err == ErrDuplicateNonce || err == ErrTimestampOutOfWindow || err == ErrSeqNotMonotonic {
			metrics.ReplayAttemptAlerts.Record(sourceIPFrom(ctx, callerID), time.Now())
			metrics.MessagesProcessed.WithLabelValues(string(env.Type), "failure").Inc()
		}
		return nil, err
	}
	metrics.NonceValidations.WithLabelValues("valid").Inc()

	messageID := uuid.NewString()
	meta := &storage.MessageMeta{
		MessageID: messageID,
		SessionID: env.SessionID,
		Sender:    env.Sender,
		Receiver:  env.Receiver,
		Type:      string(env.Type),
		Timestamp: env.Timestamp,
		Seq:       env.Seq,
		NonceHash: nonceHash,
		Meta:      env.Meta,
	}
	metaHash, err := computeMetadataHash(meta)
	if err != nil {
		return nil, fmt.Errorf("relay: compute metadata hash: %w", err)
	}
	meta.MetadataHash = metaHash

	if err := s.Messages.Insert(ctx, meta); err != nil {
		if err == storage.ErrNonceConflict {
			metrics.ReplayAttemptAlerts.Record(sourceIPFrom(ctx, callerID), time.Now())
			return nil, ErrDuplicateNonce
		}
		return nil, fmt.Errorf("relay: persist message: %w", err)
	}

	delivered := s.Hub.Forward(ctx, env.Receiver, env)
	if delivered {
		if err := s.Messages.MarkDelivered(ctx, messageID); err != nil {
			return nil, fmt.Errorf("relay: mark delivered: %w", err)
		}
	}

	metrics.MessagesProcessed.WithLabelValues(string(env.Type), "success").Inc()
	return &Ack{MessageID: messageID, SessionID: env.SessionID, Delivered: delivered}, nil
}

// HandleKEP applies the subset of the pipeline that makes sense for a
// caller-opaque KEP/KEY_UPDATE payload the relay never decrypts or
// structurally parses beyond its envelope wrapper: authentication,
// sender match, the KEP-class rate limit, and fanout. The relay does not
// persist KEP traffic as MessageMeta since KEP messages carry no seq/nonce
// replay state of their own before a Session exists.
func (s *Service) HandleKEP(ctx context.Context, callerID string, kind envelope.Type, sender, receiver string, payload []byte) (bool, error) {
	if sender != callerID {
		return false, ErrSenderMismatch
	}
	if !s.Limiter.Allow(ClassKEP, callerID) {
		return false, &RateLimitedError{CallerID: callerID, Class: ClassKEP}
	}
	metrics.HandshakesInitiated.WithLabelValues(kepRole(kind)).Inc()
	env := &envelope.Envelope{Type: kind, Sender: sender, Receiver: receiver, Meta: payload}
	return s.Hub.Forward(ctx, receiver, env), nil
}

// kepRole reports whether kind is sent by the party that started the
// handshake or the one answering it, for the handshakes_initiated_total
// role label.
func kepRole(kind envelope.Type) string {
	if kind == envelope.TypeKEPInit {
		return "initiator"
	}
	return "responder"
}

// CreateSession returns the singleton SessionRow for (uidA, uidB),
// creating it if none exists (§6 "POST /sessions"). Concurrent callers for
// the same unordered pair collapse onto one in-flight create via
// singleflight, keyed on the same deterministic session ID both sides
// would derive independently; a racing creator that still reaches the
// database (a second process, or singleflight's call group having already
// cleared) loses to the unique index and adopts the winner, mirroring
// session.InMemoryStore.Create's in-process singleton-pair collapse at
// the persisted layer.
func (s *Service) CreateSession(ctx context.Context, uidA, uidB string) (*storage.SessionRow, error) {
	sessionID := kep.SessionID(uidA, uidB)
	v, err, _ := s.sessionCreate.Do(sessionID, func() (interface{}, error) {
		return s.createSessionRow(ctx, sessionID, uidA, uidB)
	})
	if err != nil {
		return nil, err
	}
	return v.(*storage.SessionRow), nil
}

func (s *Service) createSessionRow(ctx context.Context, sessionID, uidA, uidB string) (*storage.SessionRow, error) {
	if existing, err := s.Sessions.FindByPair(ctx, uidA, uidB); err == nil {
		return existing, nil
	} else if err != storage.ErrNotFound {
		return nil, fmt.Errorf("relay: find session: %w", err)
	}

	row := &storage.SessionRow{SessionID: sessionID, ParticipantA: uidA, ParticipantB: uidB}
	if err := s.Sessions.Create(ctx, row); err != nil {
		if err == storage.ErrPairConflict {
			existing, ferr := s.Sessions.FindByPair(ctx, uidA, uidB)
			if ferr != nil {
				return nil, fmt.Errorf("relay: find session after conflict: %w", ferr)
			}
			return existing, nil
		}
		return nil, fmt.Errorf("relay: create session: %w", err)
	}
	metrics.SessionsCreated.WithLabelValues("success").Inc()
	return row, nil
}

// PendingForUser returns userID's undelivered messages, verifying each
// row's metadataHash and excluding any that fail (§4.8 step 7).
func (s *Service) PendingForUser(ctx context.Context, userID string) ([]*storage.MessageMeta, error) {
	rows, err := s.Messages.PendingForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("relay: query pending: %w", err)
	}
	out := make([]*storage.MessageMeta, 0, len(rows))
	for _, row := range rows {
		if err := verifyMetadataHash(row); err != nil {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

// UploadKey stores userID's public identity key JWK, content-addressed by
// keyHash (§6 "POST /keys/upload").
func (s *Service) UploadKey(ctx context.Context, userID string, jwkBytes []byte) (string, error) {
	keyHash, err := crypto.HashCanonical(rawJSON(jwkBytes))
	if err != nil {
		return "", fmt.Errorf("relay: hash key: %w", err)
	}
	if err := s.Keys.Upload(ctx, userID, jwkBytes, keyHash); err != nil {
		return "", fmt.Errorf("relay: persist key: %w", err)
	}
	return keyHash, nil
}

// GetKey returns userID's uploaded JWK and its keyHash for client-side
// verification (§6 "GET /keys/:userId").
func (s *Service) GetKey(ctx context.Context, userID string) ([]byte, string, error) {
	jwkBytes, keyHash, err := s.Keys.Get(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	return jwkBytes, keyHash, nil
}

// DeactivateUser cascade-deletes every session row userID participates
// in (§9 "Session cascade-delete on deactivation"), reporting how many
// were removed. It does not touch the user's uploaded key or pending
// messages, which outlive deactivation until explicitly overwritten or
// delivered.
func (s *Service) DeactivateUser(ctx context.Context, userID string) (int, error) {
	removed, err := s.Sessions.DeleteForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("relay: deactivate user: %w", err)
	}
	return removed, nil
}

// rawJSON lets HashCanonical's json.Marshal round-trip through bytes
// already known to be JSON without re-encoding them as a base64 string.
type rawJSON []byte

func (r rawJSON) MarshalJSON() ([]byte, error) { return r, nil }
