// Package json wraps the sonic codec so call sites stay decoupled from the
// concrete JSON implementation.
package json

import (
	"github.com/bytedance/sonic"
)

var (
	// Marshal encodes v as JSON.
	Marshal = sonic.Marshal
	// MarshalString encodes v as a JSON string.
	MarshalString = sonic.MarshalString
	// Unmarshal decodes JSON data into v.
	Unmarshal = sonic.Unmarshal
	// UnmarshalString decodes a JSON string into v.
	UnmarshalString = sonic.UnmarshalString
)

// canonical sorts object keys so that equal values always encode to equal
// bytes, which cache fingerprints depend on.
var canonical = sonic.Config{SortMapKeys: true}.Froze()

// MarshalCanonical encodes v deterministically: keys sorted, no
// insignificant whitespace.
func MarshalCanonical(v any) ([]byte, error) {
	return canonical.Marshal(v)
}
