package otp

import (
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"io"
	"time"

	pquernaotp "github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
)

const (
	// DefaultDigits is the passcode length used when none is configured.
	DefaultDigits = 6
	secretSize    = 20
	minDigits     = 4

	// HOTP truncates to 31 bits before reducing mod 10^digits; past eight
	// digits the low codes come up half again as often as the rest.
	maxDigits = 8
)

// Option customises a Generator.
type Option func(*Generator)

// WithRandom replaces the entropy source, primarily for testing.
func WithRandom(r io.Reader) Option {
	return func(g *Generator) {
		if r != nil {
			g.random = r
		}
	}
}

// WithCounter replaces the HOTP moving factor, primarily for testing.
func WithCounter(counter func() uint64) Option {
	return func(g *Generator) {
		if counter != nil {
			g.counter = counter
		}
	}
}

// Generator produces numeric one-time passcodes. Each code is the HOTP value
// of a fresh 160-bit secret, so consecutive codes are unrelated.
type Generator struct {
	digits  int
	random  io.Reader
	counter func() uint64
}

// NewGenerator returns a generator for codes of the given length.
func NewGenerator(digits int, opts ...Option) (*Generator, error) {
	if digits == 0 {
		digits = DefaultDigits
	}
	if digits < minDigits || digits > maxDigits {
		return nil, fmt.Errorf("otp: digits must be between %d and %d", minDigits, maxDigits)
	}

	g := &Generator{
		digits:  digits,
		random:  rand.Reader,
		counter: func() uint64 { return uint64(time.Now().UnixNano()) },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Digits reports the code length.
func (g *Generator) Digits() int {
	return g.digits
}

// Generate draws a new passcode.
func (g *Generator) Generate() (string, error) {
	secret := make([]byte, secretSize)
	if _, err := io.ReadFull(g.random, secret); err != nil {
		return "", fmt.Errorf("otp: read entropy: %w", err)
	}

	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(secret)
	code, err := hotp.GenerateCodeCustom(encoded, g.counter(), hotp.ValidateOpts{
		Digits:    pquernaotp.Digits(g.digits),
		Algorithm: pquernaotp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("otp: derive code: %w", err)
	}
	if len(code) != g.digits {
		return "", errors.New("otp: derived code has unexpected length")
	}
	return code, nil
}
