package domain

import (
	"encoding/json"
	"log/slog"
)

// Secret wraps a sensitive string (API keys, PANs, CVCs). Default formatting
// and logging render a redaction marker; the raw value is only reachable via
// Peek, or through JSON marshalling when a wire payload is encoded for the
// transport.
type Secret struct {
	value string
}

func NewSecret(v string) Secret {
	return Secret{value: v}
}

// Peek returns the wrapped value. Callers outside wire-payload encoding and
// the transport boundary should not need this.
func (s Secret) Peek() string {
	return s.value
}

func (s Secret) IsEmpty() bool {
	return s.value == ""
}

func (s Secret) String() string {
	return "*** redacted ***"
}

func (s Secret) GoString() string {
	return `domain.Secret{value:"*** redacted ***"}`
}

func (s Secret) LogValue() slog.Value {
	return slog.StringValue("*** redacted ***")
}

// MarshalJSON emits the raw value: connector request structs embed Secret
// fields and their serialization is the transport encoding.
func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.value)
}

func (s *Secret) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &s.value)
}
