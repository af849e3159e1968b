package crypto

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// CompressString deflates a UTF-8 string for a compressed-string field.
// The empty string compresses to zero bytes, matching the wire convention.
func CompressString(value string) ([]byte, error) {
	if value == "" {
		return []byte{}, nil
	}

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("creating deflate writer: %w", err)
	}
	if _, err := w.Write([]byte(value)); err != nil {
		return nil, fmt.Errorf("compressing: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compressing: %w", err)
	}
	return buf.Bytes(), nil
}

// DecompressString inflates a compressed-string field back to a string.
// Zero input bytes decompress to the empty string.
func DecompressString(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}

	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("decompressing: %w", err)
	}
	return string(out), nil
}
