package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e2ee-core/relay/internal/storage"
	"github.com/e2ee-core/relay/transport"
)

func newTestHandler(callerID string) *HTTPHandler {
	store := storage.NewInMemory()
	auth := AuthenticatorFunc(func(r *http.Request) (string, error) {
		if r.Header.Get("Authorization") == "" {
			return "", ErrUnauthorized
		}
		return callerID, nil
	})
	svc := NewService(store, store, store, auth, NewLimiter(100, 100), transport.NewHub())
	return NewHTTPHandler(svc)
}

func TestCreateSessionEndpointReturnsSingleton(t *testing.T) {
	h := newTestHandler("alice")
	mux := http.NewServeMux()
	h.Routes(mux)

	body, _ := json.Marshal(sessionRequest{UserID1: "alice", UserID2: "bob"})
	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer t")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var row storage.SessionRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &row))
	assert.NotEmpty(t, row.SessionID)
}

func TestRelayMessageEndpointRejectsUnauthenticated(t *testing.T) {
	h := newTestHandler("alice")
	mux := http.NewServeMux()
	h.Routes(mux)

	req := httptest.NewRequest(http.MethodPost, "/messages/relay", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPendingMessagesEndpointRejectsOtherUsers(t *testing.T) {
	h := newTestHandler("alice")
	mux := http.NewServeMux()
	h.Routes(mux)

	req := httptest.NewRequest(http.MethodGet, "/messages/pending/bob", nil)
	req.Header.Set("Authorization", "Bearer t")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeactivateEndpointRejectsOtherUsers(t *testing.T) {
	h := newTestHandler("alice")
	mux := http.NewServeMux()
	h.Routes(mux)

	req := httptest.NewRequest(http.MethodPost, "/users/bob/deactivate", nil)
	req.Header.Set("Authorization", "Bearer t")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeactivateEndpointRemovesOwnSessions(t *testing.T) {
	h := newTestHandler("alice")
	mux := http.NewServeMux()
	h.Routes(mux)

	_, err := h.svc.CreateSession(context.Background(), "alice", "bob")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/users/alice/deactivate", nil)
	req.Header.Set("Authorization", "Bearer t")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp["sessionsRemoved"])
}

func TestUploadThenGetKeyEndpoints(t *testing.T) {
	h := newTestHandler("alice")
	mux := http.NewServeMux()
	h.Routes(mux)

	body, _ := json.Marshal(uploadKeyRequest{UserID: "alice", PublicIdentityKeyJWK: json.RawMessage(`{"kty":"EC"}`)})
	req := httptest.NewRequest(http.MethodPost, "/keys/upload", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer t")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	getReq := httptest.NewRequest(http.MethodGet, "/keys/alice", nil)
	getReq.Header.Set("Authorization", "Bearer t")
	getRec := httptest.NewRecorder()
	mux.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["keyHash"])
}
