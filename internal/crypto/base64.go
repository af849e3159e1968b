package crypto

import (
	"encoding/base64"
)

// ToBase64 encodes bytes to standard base64 with padding, the encoding used
// for encrypted field values in entity literals.
func ToBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// FromBase64 decodes standard base64 (with padding) to bytes.
func FromBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
