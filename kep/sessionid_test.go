package kep

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionIDIsOrderIndependent(t *testing.T) {
	a := SessionID("alice", "bob")
	b := SessionID("bob", "alice")
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}

func TestSessionIDIsDeterministic(t *testing.T) {
	assert.Equal(t, SessionID("alice", "bob"), SessionID("alice", "bob"))
}

func TestSessionIDDiffersForDifferentPairs(t *testing.T) {
	assert.NotEqual(t, SessionID("alice", "bob"), SessionID("alice", "carol"))
}
