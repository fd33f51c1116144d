package phi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// Sensitive holds a PHI-bearing value. It never renders its cleartext through
// JSON, fmt, or log output; only the orchestrator's collaborators may read it
// via Reveal.
type Sensitive string

// Reveal returns the cleartext value. Callers that reveal PHI must record a
// phi_accessed audit event.
func (s Sensitive) Reveal() string {
	return string(s)
}

// Digest returns the SHA-256 hex digest of the value, safe for logs and audit
// payloads.
func (s Sensitive) Digest() string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Masked returns a fixed-shape masked rendering (first character plus
// asterisks), safe for operator-facing summaries.
func (s Sensitive) Masked() string {
	if s == "" {
		return ""
	}
	r := []rune(string(s))
	return string(r[0]) + strings.Repeat("*", len(r)-1)
}

// String implements fmt.Stringer with the masked form so accidental
// interpolation never leaks cleartext.
func (s Sensitive) String() string {
	return s.Masked()
}

// MarshalJSON renders the digest, never the cleartext.
func (s Sensitive) MarshalJSON() ([]byte, error) {
	return json.Marshal("sha256:" + s.Digest())
}

// UnmarshalJSON accepts a cleartext value from trusted ingestion input. A
// digest-form value round-tripped from a report cannot be reversed and is
// kept as-is.
func (s *Sensitive) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = Sensitive(v)
	return nil
}

// Consistent reports whether two sensitive values carry the same identity,
// compared without revealing either.
func Consistent(a, b Sensitive) bool {
	return a.Digest() == b.Digest()
}

// DigestPayload returns the SHA-256 hex digest of an arbitrary payload,
// used for audit event payload digests.
func DigestPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
