// Package webhook verifies inbound Paddle webhook deliveries.
//
// Paddle signs each delivery with a header of the form
//
//	Paddle-Signature: ts=1700000000;h1=<hex hmac>[;h1=<hex hmac>...]
//
// where h1 is HMAC-SHA256 over "{ts}:{raw body}" keyed by the notification
// destination's secret. More than one h1 may be present while a secret is
// being rotated.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strconv"
	"strings"
	"time"

	"cashier/internal/types"
)

// DefaultSignatureHeader is the header Paddle sends the signature in.
const DefaultSignatureHeader = "Paddle-Signature"

const (
	timestampKey = "ts"
	partSep      = ";"
	kvSep        = "="
)

// algorithms maps the algorithm identifiers that may appear in the header to
// the hash used for the HMAC. Identifiers not listed here are skipped.
var algorithms = map[string]func() hash.Hash{
	"h1": sha256.New,
}

// SignatureHeader is the parsed form of a signature header value.
type SignatureHeader struct {
	// Timestamp is seconds since epoch; 0 when the header carried no usable ts.
	Timestamp int64
	// Digests holds the candidate hex digests per algorithm, in header order.
	Digests map[string][]string
	// order records algorithms in first-seen order so verification is deterministic.
	order []string
}

// ParseSignatureHeader parses a raw header value. It never fails: anything it
// cannot interpret is dropped, which can only make verification stricter.
func ParseSignatureHeader(raw string) SignatureHeader {
	h := SignatureHeader{Digests: make(map[string][]string)}

	for _, part := range strings.Split(raw, partSep) {
		key, value, ok := strings.Cut(part, kvSep)
		if !ok {
			continue
		}

		if key == timestampKey {
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				ts = 0
			}
			h.Timestamp = ts
			continue
		}

		if _, known := algorithms[key]; !known {
			continue
		}
		if _, seen := h.Digests[key]; !seen {
			h.order = append(h.order, key)
		}
		h.Digests[key] = append(h.Digests[key], value)
	}

	return h
}

// AlgorithmOrder returns the algorithm identifiers present in the header, in
// first-seen order.
func (h SignatureHeader) AlgorithmOrder() []string {
	return h.order
}

// VerifierConfig holds the shared secret and the replay window.
type VerifierConfig struct {
	Secret types.SecretString
	// MaxVariance is the maximum accepted age of a signature. Zero or negative
	// disables the staleness check.
	MaxVariance time.Duration
}

// Verifier checks Paddle-Signature headers. It holds no mutable state and is
// safe for concurrent use.
type Verifier struct {
	secret      []byte
	maxVariance int64
	now         func() time.Time
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		v.now = now
	}
}

// NewVerifier creates a Verifier from cfg. A positive MaxVariance is
// rounded up to whole seconds, so a sub-second window never disables the
// staleness check.
func NewVerifier(cfg VerifierConfig, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		secret:      cfg.Secret.Bytes(),
		maxVariance: ceilSeconds(cfg.MaxVariance),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}

// VarianceEnabled reports whether stale signatures are rejected.
func (v *Verifier) VarianceEnabled() bool {
	return v.maxVariance > 0
}

// Verify reports whether header is a valid signature of rawBody. rawBody must
// be the exact bytes received on the wire.
//
// Every failure returns false; callers must not try to tell them apart.
func (v *Verifier) Verify(rawBody []byte, header string) bool {
	if header == "" || len(v.secret) == 0 {
		return false
	}

	sig := ParseSignatureHeader(header)

	if v.VarianceEnabled() && v.now().Unix() > sig.Timestamp+v.maxVariance {
		return false
	}

	for _, alg := range sig.AlgorithmOrder() {
		newHash, ok := algorithms[alg]
		if !ok {
			continue
		}

		expected := computeDigest(newHash, v.secret, sig.Timestamp, rawBody)
		for _, candidate := range sig.Digests[alg] {
			if hmac.Equal([]byte(candidate), []byte(expected)) {
				return true
			}
		}
	}

	return false
}

// computeDigest returns the lowercase hex HMAC of "{ts}:{body}".
func computeDigest(newHash func() hash.Hash, secret []byte, ts int64, body []byte) string {
	mac := hmac.New(newHash, secret)
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte(":"))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Sign returns a header value signing body at ts with every secret given, in
// order. Used by the local simulator and by tests.
func Sign(body []byte, ts time.Time, secrets ...types.SecretString) string {
	unix := ts.Unix()
	parts := []string{timestampKey + kvSep + strconv.FormatInt(unix, 10)}
	for _, s := range secrets {
		parts = append(parts, "h1"+kvSep+computeDigest(sha256.New, s.Bytes(), unix, body))
	}
	return strings.Join(parts, partSep)
}
