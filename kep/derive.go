package kep

import sagecrypto "github.com/e2ee-core/relay/crypto"

// deriveKeys runs the HKDF-SHA-256 chain §4.3 specifies over an ECDH
// shared secret: a sessionId-bound rootKey, then one directional key per
// user id. The "SEND"-with-peer-id construction gives both sides the same
// two keys without a separate "RECV" label (I2).
func deriveKeys(shared []byte, sessionID, uidA, uidB string) (rootKey, kAtoB, kBtoA []byte, err error) {
	rootKey, err = sagecrypto.HKDF(shared, []byte("ROOT"), []byte(sessionID), 32)
	if err != nil {
		return nil, nil, nil, err
	}
	kAtoB, err = sagecrypto.HKDF(rootKey, []byte("SEND"), []byte(uidA), 32)
	if err != nil {
		return nil, nil, nil, err
	}
	kBtoA, err = sagecrypto.HKDF(rootKey, []byte("SEND"), []byte(uidB), 32)
	if err != nil {
		return nil, nil, nil, err
	}
	return rootKey, kAtoB, kBtoA, nil
}

// keyConfirmation computes HMAC-SHA256(rootKey, "CONFIRM:" || userID), the
// tag each side uses to prove possession of the same rootKey (§4.3 step 7
// / initiator step 5).
func keyConfirmation(rootKey []byte, userID string) []byte {
	return sagecrypto.HMACSHA256(rootKey, []byte("CONFIRM:"+userID))
}
