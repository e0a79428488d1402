package relay

import (
	"context"

	"github.com/e2ee-core/relay/envelope"
)

// Dispatch routes one envelope read off a live transport (websocket.Server's
// handle callback) to the KEP-class or data-class half of the pipeline by
// its wire Type: KEP_INIT/KEP_RESPONSE/KEY_UPDATE never carry seq/nonce
// replay state and are forwarded opaquely via HandleKEP, everything else
// goes through the full HandleEnvelope persistence-and-replay path. Errors
// are swallowed to a no-op other than metrics/logging already recorded
// inside the two handlers, since a live transport has no request/response
// cycle to report a rejection back on.
func (s *Service) Dispatch(ctx context.Context, callerID string, env *envelope.Envelope) {
	switch env.Type {
	case envelope.TypeKEPInit, envelope.TypeKEPResp, envelope.TypeKeyUpdate:
		_, _ = s.HandleKEP(ctx, callerID, env.Type, env.Sender, env.Receiver, env.Meta)
	default:
		_, _ = s.HandleEnvelope(ctx, callerID, env)
	}
}
