package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long replay records are retained when no TTL is configured.
const DefaultTTL = 24 * time.Hour

// Status is the lifecycle state of a replay record.
type Status string

const (
	// StatusPending marks a key reserved by an in-flight request.
	StatusPending Status = "pending"
	// StatusCompleted marks a key whose response is stored and replayable.
	StatusCompleted Status = "completed"
)

// ReservationState tells the middleware how to proceed after reserving a key.
type ReservationState int

const (
	// ReservationStateNew lets the request run; no prior record exists.
	ReservationStateNew ReservationState = iota
	// ReservationStateCompleted means a stored response should be replayed.
	ReservationStateCompleted
	// ReservationStatePending means another request holds the key right now.
	ReservationStatePending
)

// Reservation is the outcome of reserving a key, with the stored record when one exists.
type Reservation struct {
	State  ReservationState
	Record Record
}

// Record is the persisted response for a replay key.
type Record struct {
	Key             string
	Fingerprint     string
	Status          Status
	ResponseStatus  int
	ResponseHeaders map[string][]string
	ResponseBody    []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ExpiresAt       time.Time
}

// Response is the HTTP response captured for future replays.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Store persists key reservations and their captured responses.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key, fingerprint string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// ErrFingerprintMismatch is returned when a key is reused for a request with a
// different fingerprint. The fingerprint check distinguishes a retry of the
// same request from an accidental key collision.
var ErrFingerprintMismatch = errors.New("idempotency: key reserved for different request fingerprint")

// recordDocID derives the storage identifier for a key. Hashing keeps client
// supplied keys out of document IDs and log lines.
func recordDocID(key string) string {
	return sha256Hex([]byte(strings.TrimSpace(key)))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// hopByHopHeaders lists headers that must not be replayed verbatim.
var hopByHopHeaders = map[string]struct{}{
	"content-length":      {},
	"date":                {},
	"connection":          {},
	"keep-alive":          {},
	"proxy-authenticate":  {},
	"proxy-authorization": {},
	"te":                  {},
	"trailers":            {},
	"transfer-encoding":   {},
	"upgrade":             {},
}

func sanitizeHeaders(header http.Header) map[string][]string {
	if len(header) == 0 {
		return nil
	}

	filtered := make(map[string][]string, len(header))
	for name, values := range header {
		canonical := http.CanonicalHeaderKey(name)
		if _, omit := hopByHopHeaders[strings.ToLower(canonical)]; omit {
			continue
		}
		copied := make([]string, len(values))
		copy(copied, values)
		filtered[canonical] = copied
	}
	if len(filtered) == 0 {
		return nil
	}
	return filtered
}

func headersFromRecord(values map[string][]string) http.Header {
	header := make(http.Header, len(values))
	for name, vals := range values {
		copied := make([]string, len(vals))
		copy(copied, vals)
		header[name] = copied
	}
	return header
}
