package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/e2ee-core/relay/envelope"
	"github.com/e2ee-core/relay/internal/logger"
)

// HTTPHandler exposes Service over the REST surface §6 defines: session
// lookup/creation, the msg:send REST fallback, pending-message retrieval,
// and identity-key upload/fetch. Grounded on the teacher's HTTPServer
// (pkg/agent/transport/http/server.go) — same read-body/decode/dispatch/
// encode-response shape — generalized from one /messages endpoint to the
// six routes this relay serves, using the standard library's pattern
// mux (Go 1.22+) rather than the teacher's bespoke switch-on-method,
// since the surface here is wide enough that the teacher's own router
// idiom no longer scales without repeating itself.
type HTTPHandler struct {
	svc *Service
}

// NewHTTPHandler constructs an HTTPHandler over svc.
func NewHTTPHandler(svc *Service) *HTTPHandler { return &HTTPHandler{svc: svc} }

// Routes registers every endpoint on mux, each wrapped by h.logged so the
// relay's request lifecycle — not just its startup banner — flows through
// the structured logger.
func (h *HTTPHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /sessions", h.logged("POST /sessions", h.createSession))
	mux.HandleFunc("POST /messages/relay", h.logged("POST /messages/relay", h.relayMessage))
	mux.HandleFunc("GET /messages/pending/{userId}", h.logged("GET /messages/pending/{userId}", h.pendingMessages))
	mux.HandleFunc("POST /keys/upload", h.logged("POST /keys/upload", h.uploadKey))
	mux.HandleFunc("GET /keys/{userId}", h.logged("GET /keys/{userId}", h.getKey))
	mux.HandleFunc("POST /users/{userId}/deactivate", h.logged("POST /users/{userId}/deactivate", h.deactivateUser))
}

var requestSeq uint64

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// logged stamps each request with a monotonic request_id (picked up by
// StructuredLogger.WithContext, which reads it straight off the context)
// and reports route/status/latency through a WithFields-scoped logger
// once next returns, rather than polluting every handler with logging
// calls of its own.
func (h *HTTPHandler) logged(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := strconv.FormatUint(atomic.AddUint64(&requestSeq, 1), 36)
		ctx := context.WithValue(r.Context(), "request_id", reqID)
		reqLog := logger.GetDefaultLogger().WithContext(ctx).WithFields(
			logger.String("route", route),
			logger.String("method", r.Method),
		)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next(rec, r.WithContext(ctx))
		reqLog.Info("request handled",
			logger.Int("status", rec.status),
			logger.Duration("latency", time.Since(start)),
		)
	}
}

type sessionRequest struct {
	UserID1 string `json:"userId1"`
	UserID2 string `json:"userId2"`
}

func (h *HTTPHandler) createSession(w http.ResponseWriter, r *http.Request) {
	if _, err := h.authenticate(r); err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.UserID1 == "" || req.UserID2 == "" {
		writeError(w, http.StatusBadRequest, errors.New("userId1 and userId2 are required"))
		return
	}
	row, err := h.svc.CreateSession(r.Context(), req.UserID1, req.UserID2)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (h *HTTPHandler) relayMessage(w http.ResponseWriter, r *http.Request) {
	callerID, err := h.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	var env envelope.Envelope
	if err := decodeJSON(r, &env); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ctx := WithSourceIP(r.Context(), sourceAddr(r))
	ack, err := h.svc.HandleEnvelope(ctx, callerID, &env)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, ack)
}

func (h *HTTPHandler) pendingMessages(w http.ResponseWriter, r *http.Request) {
	callerID, err := h.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	userID := r.PathValue("userId")
	if userID != callerID {
		writeError(w, http.StatusForbidden, ErrSenderMismatch)
		return
	}
	rows, err := h.svc.PendingForUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

type uploadKeyRequest struct {
	UserID              string          `json:"userId"`
	PublicIdentityKeyJWK json.RawMessage `json:"publicIdentityKeyJWK"`
}

func (h *HTTPHandler) uploadKey(w http.ResponseWriter, r *http.Request) {
	callerID, err := h.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	var req uploadKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	userID := req.UserID
	if userID == "" {
		userID = callerID
	}
	if userID != callerID {
		writeError(w, http.StatusForbidden, ErrSenderMismatch)
		return
	}
	keyHash, err := h.svc.UploadKey(r.Context(), userID, req.PublicIdentityKeyJWK)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"keyHash": keyHash})
}

func (h *HTTPHandler) getKey(w http.ResponseWriter, r *http.Request) {
	if _, err := h.authenticate(r); err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	userID := r.PathValue("userId")
	jwkBytes, keyHash, err := h.svc.GetKey(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"publicIdentityKeyJWK": json.RawMessage(jwkBytes),
		"keyHash":              keyHash,
	})
}

// deactivateUser cascade-deletes the caller's own session rows; a user
// may only deactivate themselves, not another user.
func (h *HTTPHandler) deactivateUser(w http.ResponseWriter, r *http.Request) {
	callerID, err := h.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	userID := r.PathValue("userId")
	if userID != callerID {
		writeError(w, http.StatusForbidden, ErrSenderMismatch)
		return
	}
	removed, err := h.svc.DeactivateUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"sessionsRemoved": removed})
}

func (h *HTTPHandler) authenticate(r *http.Request) (string, error) {
	if h.svc.Auth == nil {
		return "", ErrUnauthorized
	}
	return h.svc.Auth.Authenticate(r)
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, 10<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps a HandleEnvelope rejection to its HTTP status: rate
// limiting and replay rejections are client errors, everything else is
// either a bad request (structural) or an internal failure.
func statusFor(err error) int {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return http.StatusTooManyRequests
	}
	switch {
	case errors.Is(err, ErrSenderMismatch):
		return http.StatusForbidden
	case errors.Is(err, ErrDuplicateNonce), errors.Is(err, ErrSeqNotMonotonic), errors.Is(err, ErrTimestampOutOfWindow), errors.Is(err, ErrInvalidNonce):
		return http.StatusConflict
	default:
		if isStructuralError(err) {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	}
}

func isStructuralError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "envelope:")
}

// sourceAddr prefers the first hop recorded by a trusted reverse proxy
// over r.RemoteAddr, since a relay is expected to sit behind one in any
// real deployment; falls back to RemoteAddr when the header is absent.
func sourceAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	return r.RemoteAddr
}
