package filepipe

import "github.com/e2ee-core/relay/internal/zeroize"

// ZeroOnExit returns a function to defer that clears buf, the scoped
// secret-zeroing guard §4.6 step 4 requires plaintext file buffers to go
// through on exit.
func ZeroOnExit(buf []byte) func() {
	return zeroize.OnExit(buf)
}
