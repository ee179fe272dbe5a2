// Package nonce issues the opaque state values that tie an outbound
// authorization redirect to its inbound callback.
package nonce

import (
	"fmt"
	"sync"

	"golang.org/x/oauth2"
)

// Generator produces unguessable correlation tokens.
type Generator interface {
	Generate() (string, error)
}

// Random draws 32 bytes from crypto/rand and encodes them base64url.
type Random struct{}

var _ Generator = Random{}

// NewRandom returns the default generator.
func NewRandom() Random {
	return Random{}
}

func (Random) Generate() (string, error) {
	return oauth2.GenerateVerifier(), nil
}

// Sequence yields predictable values and is meant for tests.
type Sequence struct {
	mu     sync.Mutex
	values []string
	prefix string
	next   int
}

var _ Generator = (*Sequence)(nil)

// NewSequence returns the given values in order, then falls back to prefix-N.
func NewSequence(prefix string, values ...string) *Sequence {
	return &Sequence{prefix: prefix, values: append([]string{}, values...)}
}

func (s *Sequence) Generate() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next < len(s.values) {
		v := s.values[s.next]
		s.next++
		return v, nil
	}
	s.next++
	return fmt.Sprintf("%s%d", s.prefix, s.next), nil
}
