// Package idempotency replays the stored response of a mutating request when a shopper's client
// retries it with the same Idempotency-Key, so a double-tapped "Add to cart" or checkout runs once.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"time"
)

// DefaultTTL is how long a completed response stays replayable.
const DefaultTTL = 10 * time.Minute

// Outcome tells the middleware what to do after claiming a key.
type Outcome int

const (
	// Proceed means the caller now owns the key and must run the handler.
	Proceed Outcome = iota
	// Replay means Entry holds a finished response to send back.
	Replay
	// InFlight means an earlier request with this key has not finished.
	InFlight
)

// Entry is what a store keeps for one key.
type Entry struct {
	Fingerprint string      `json:"fp"`
	Done        bool        `json:"done"`
	Status      int         `json:"status,omitempty"`
	Header      http.Header `json:"header,omitempty"`
	Body        []byte      `json:"body,omitempty"`
	Expires     time.Time   `json:"expires"`
}

// Claim is the result of Store.Claim.
type Claim struct {
	Outcome Outcome
	Entry   Entry
}

// Store persists claimed keys and the responses produced for them.
type Store interface {
	// Claim records a pending entry for key unless a live one exists.
	Claim(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, error)
	// Complete replaces the entry for key with a finished one.
	Complete(ctx context.Context, key string, entry Entry, ttl time.Duration) error
	// Release forgets key so the next request runs the handler again.
	Release(ctx context.Context, key string) error
}

// ErrFingerprintMismatch is returned when a key is reused for a different request.
var ErrFingerprintMismatch = errors.New("idempotency: key reserved for a different request")

// Only these response headers are replayed. Cookies in particular must never be.
var replayedHeaders = []string{"Content-Type", "Content-Language", "Cache-Control", "Location"}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func pendingEntry(fingerprint string, now time.Time, ttl time.Duration) Entry {
	return Entry{Fingerprint: fingerprint, Expires: now.Add(ttl)}
}

// finishedEntry captures a handler response for later replays.
func finishedEntry(fingerprint string, status int, header http.Header, body []byte, now time.Time, ttl time.Duration) Entry {
	e := Entry{
		Fingerprint: fingerprint,
		Done:        true,
		Status:      status,
		Expires:     now.Add(ttl),
	}
	for _, name := range replayedHeaders {
		if values := header.Values(name); len(values) > 0 {
			if e.Header == nil {
				e.Header = make(http.Header, len(replayedHeaders))
			}
			e.Header[name] = append([]string(nil), values...)
		}
	}
	if len(body) > 0 {
		e.Body = append([]byte(nil), body...)
	}
	return e
}

func (e Entry) live(now time.Time) bool { return now.Before(e.Expires) }

// claimExisting decides what a request with fingerprint gets when e already holds its key.
func (e Entry) claimExisting(fingerprint string) (Claim, error) {
	if e.Fingerprint != fingerprint {
		return Claim{}, ErrFingerprintMismatch
	}
	if e.Done {
		return Claim{Outcome: Replay, Entry: e}, nil
	}
	return Claim{Outcome: InFlight, Entry: e}, nil
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}
