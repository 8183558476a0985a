package idempotency

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultHeaderName = "Idempotency-Key"
	replayHeaderName  = "X-Idempotent-Replay"
	sessionHeaderName = "X-Session-ID"
)

// Logger abstracts the logging dependency used inside the middleware.
type Logger interface {
	Printf(format string, args ...any)
}

type clockFunc func() time.Time

type middlewareConfig struct {
	headerName string
	ttl        time.Duration
	methods    map[string]struct{}
	clock      clockFunc
	logger     Logger
}

func defaultMethods() map[string]struct{} {
	return map[string]struct{}{
		http.MethodPost:   {},
		http.MethodPut:    {},
		http.MethodPatch:  {},
		http.MethodDelete: {},
	}
}

// MiddlewareOption customises middleware behaviour.
type MiddlewareOption func(*middlewareConfig)

// WithHeader overrides the header name used to extract the idempotency key.
func WithHeader(name string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		name = strings.TrimSpace(name)
		if name != "" {
			cfg.headerName = name
		}
	}
}

// WithTTL configures how long completed replay records are retained.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithMethods restricts the HTTP methods guarded by the middleware.
func WithMethods(methods ...string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if len(methods) == 0 {
			return
		}
		cfg.methods = make(map[string]struct{}, len(methods))
		for _, method := range methods {
			method = strings.ToUpper(strings.TrimSpace(method))
			if method == "" {
				continue
			}
			cfg.methods[method] = struct{}{}
		}
	}
}

// WithLogger injects a logger for background persistence errors.
func WithLogger(logger Logger) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		cfg.logger = logger
	}
}

// WithClock overrides the time source, primarily for testing.
func WithClock(clock clockFunc) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// Middleware guards mutating requests against double submission. Protection
// is opt-in per request: only requests carrying the key header are checked,
// so anonymous browsing and webhook deliveries pass straight through.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	cfg := middlewareConfig{
		headerName: defaultHeaderName,
		ttl:        DefaultTTL,
		methods:    defaultMethods(),
		clock:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.ttl <= 0 {
		cfg.ttl = DefaultTTL
	}
	if len(cfg.methods) == 0 {
		cfg.methods = defaultMethods()
	}
	if cfg.clock == nil {
		cfg.clock = time.Now
	}

	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, guarded := cfg.methods[r.Method]; !guarded {
				next.ServeHTTP(w, r)
				return
			}

			key := strings.TrimSpace(r.Header.Get(cfg.headerName))
			if key == "" {
				// Clients that do not send a key opt out of replay protection.
				next.ServeHTTP(w, r)
				return
			}

			serveGuarded(w, r, next, store, cfg, key)
		})
	}
}

func serveGuarded(w http.ResponseWriter, r *http.Request, next http.Handler, store Store, cfg middlewareConfig, key string) {
	body, err := bufferBody(r)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "idempotency_read_body_failed", "unable to read request body")
		return
	}

	identity := extractRequester(r)
	fingerprint := fingerprintRequest(r, body, identity)
	storeKey := scopedKey(key, identity)
	now := cfg.clock().UTC()

	reservation, err := store.Reserve(r.Context(), storeKey, fingerprint, now, cfg.ttl)
	if err != nil {
		if errors.Is(err, ErrFingerprintMismatch) {
			respondError(w, http.StatusConflict, "idempotency_key_conflict", "idempotency key already used for a different request")
			return
		}
		if cfg.logger != nil {
			cfg.logger.Printf("idempotency: store error: %v", err)
		}
		respondError(w, http.StatusInternalServerError, "idempotency_store_error", "unable to process idempotency key")
		return
	}

	switch reservation.State {
	case ReservationStateCompleted:
		replayStoredResponse(w, reservation.Record)
		return
	case ReservationStatePending:
		respondError(w, http.StatusConflict, "idempotency_in_progress", "another request is processing this idempotency key")
		return
	case ReservationStateNew:
	default:
		respondError(w, http.StatusInternalServerError, "idempotency_unknown_state", "unexpected idempotency state")
		return
	}

	buffered := newBufferedResponse(w)
	next.ServeHTTP(buffered, r)

	response := Response{
		Status:  buffered.Status(),
		Headers: buffered.HeaderSnapshot(),
		Body:    buffered.Body(),
	}

	if err := store.SaveResponse(r.Context(), storeKey, fingerprint, response, cfg.clock().UTC(), cfg.ttl); err != nil {
		if cfg.logger != nil {
			cfg.logger.Printf("idempotency: failed to persist response for key %s (identity %s): %v", key, identity, err)
		}
		if releaseErr := store.Release(r.Context(), storeKey, fingerprint); releaseErr != nil && cfg.logger != nil {
			cfg.logger.Printf("idempotency: failed to release key %s after save failure: %v", key, releaseErr)
		}
		respondError(w, http.StatusInternalServerError, "idempotency_store_error", "unable to persist idempotency state")
		return
	}

	if err := buffered.Flush(); err != nil && cfg.logger != nil {
		cfg.logger.Printf("idempotency: failed to flush response for key %s: %v", key, err)
	}
}

// bufferBody drains and restores the request body so it can be hashed and
// still read by the handler.
func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if err := r.Body.Close(); err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func fingerprintRequest(r *http.Request, body []byte, identity string) string {
	parts := []string{
		strings.ToUpper(r.Method),
		r.URL.Path,
		r.URL.RawQuery,
		r.Host,
		r.Header.Get("Content-Type"),
		identity,
	}
	if len(body) > 0 {
		parts = append(parts, sha256Hex(body))
	} else {
		parts = append(parts, "")
	}
	return sha256Hex([]byte(strings.Join(parts, "|")))
}

// extractRequester identifies the caller by session header. Keys are scoped
// per session so two visitors reusing the same key value never collide.
func extractRequester(r *http.Request) string {
	if session := strings.TrimSpace(r.Header.Get(sessionHeaderName)); session != "" {
		return session
	}
	return "anonymous"
}

func scopedKey(key, identity string) string {
	key = strings.TrimSpace(key)
	identity = strings.TrimSpace(identity)
	if identity == "" {
		identity = "anonymous"
	}
	if key == "" {
		return identity
	}
	return key + "|" + identity
}

func replayStoredResponse(w http.ResponseWriter, record Record) {
	replaceHeaders(w.Header(), headersFromRecord(record.ResponseHeaders))
	w.Header().Set(replayHeaderName, "true")

	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(record.ResponseBody) > 0 {
		_, _ = w.Write(record.ResponseBody)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":   code,
		"message": message,
	})
}

func replaceHeaders(dst, src http.Header) {
	for key := range dst {
		dst.Del(key)
	}
	for key, values := range src {
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

// bufferedResponse holds the handler's response until the replay record is
// safely persisted, then flushes it to the real writer.
type bufferedResponse struct {
	parent http.ResponseWriter
	header http.Header
	status int
	body   bytes.Buffer
}

func newBufferedResponse(parent http.ResponseWriter) *bufferedResponse {
	return &bufferedResponse{
		parent: parent,
		header: make(http.Header),
	}
}

func (b *bufferedResponse) Header() http.Header {
	return b.header
}

func (b *bufferedResponse) WriteHeader(status int) {
	if status <= 0 {
		status = http.StatusOK
	}
	b.status = status
}

func (b *bufferedResponse) Write(data []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(data)
}

func (b *bufferedResponse) Status() int {
	if b.status == 0 {
		return http.StatusOK
	}
	return b.status
}

func (b *bufferedResponse) Body() []byte {
	if b.body.Len() == 0 {
		return nil
	}
	return b.body.Bytes()
}

func (b *bufferedResponse) HeaderSnapshot() http.Header {
	snapshot := make(http.Header, len(b.header))
	for key, values := range b.header {
		copied := make([]string, len(values))
		copy(copied, values)
		snapshot[key] = copied
	}
	return snapshot
}

func (b *bufferedResponse) Flush() error {
	replaceHeaders(b.parent.Header(), b.header)

	status := b.status
	if status == 0 {
		status = http.StatusOK
	}
	b.parent.WriteHeader(status)
	if b.body.Len() == 0 {
		return nil
	}
	_, err := b.parent.Write(b.body.Bytes())
	return err
}
