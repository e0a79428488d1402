// Package zeroize collects the secret-wiping helpers scattered across
// session, kep and filepipe into one place, per the design note that
// secrets are cleared on every exit path through a single scoped-resource
// helper rather than each package hand-rolling its own zero loop.
package zeroize

// Bytes overwrites every byte of b with zero in place. The compiler
// cannot prove this call has an observable effect if b is never read
// again, so callers that zero a buffer right before it goes out of scope
// are relying on b actually being touched (slices, unlike a bare local
// variable, aren't eliminated by escape analysis here) rather than on any
// language guarantee beyond "this loop runs".
func Bytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// All zeroizes every slice in bs, for types that hold more than one
// secret (a root key plus send/receive keys, say) and want one call to
// clear all of them.
func All(bs ...[]byte) {
	for _, b := range bs {
		Bytes(b)
	}
}

// OnExit returns a function to defer that zeroizes buf, the scoped guard
// a caller holding a plaintext buffer for the duration of one function
// wants at the top of that function: defer zeroize.OnExit(buf)().
func OnExit(buf []byte) func() {
	return func() {
		Bytes(buf)
	}
}
