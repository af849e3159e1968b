package mailvault

import (
	"strings"
)

// Generated ids are 12-character strings over a custom base64 alphabet whose
// characters are in ASCII order, so lexicographic comparison of two ids
// matches numeric comparison. The upper 42 bits encode the creation time in
// epoch milliseconds, which is what makes event-batch ids time-ordered.
const (
	base64ExtAlphabet = "-0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ_abcdefghijklmnopqrstuvwxyz"

	generatedIDLength = 12
	timestampChars    = 7 // 42 timestamp bits, 6 bits per character

	// GeneratedMinID sorts before every valid generated id.
	GeneratedMinID = "------------"
	// GeneratedMaxID sorts after every valid generated id.
	GeneratedMaxID = "zzzzzzzzzzzz"
)

// TimestampToGeneratedID converts epoch milliseconds to the smallest
// generated id with that timestamp.
func TimestampToGeneratedID(millis int64) string {
	var b [generatedIDLength]byte
	v := uint64(millis)
	for i := timestampChars - 1; i >= 0; i-- {
		b[i] = base64ExtAlphabet[v&0x3f]
		v >>= 6
	}
	for i := timestampChars; i < generatedIDLength; i++ {
		b[i] = base64ExtAlphabet[0]
	}
	return string(b[:])
}

// GeneratedIDToTimestamp extracts the epoch-millisecond timestamp from a
// generated id. Characters outside the alphabet count as zero, matching the
// forgiving wire behavior.
func GeneratedIDToTimestamp(id string) int64 {
	var v uint64
	for i := 0; i < timestampChars && i < len(id); i++ {
		v = v<<6 | uint64(max(strings.IndexByte(base64ExtAlphabet, id[i]), 0))
	}
	return int64(v)
}

// CompareGeneratedIDs orders two generated ids. The alphabet is ASCII-sorted,
// so plain string comparison is the id ordering.
func CompareGeneratedIDs(a, b string) int {
	return strings.Compare(a, b)
}

// FirstBiggerThanSecond reports a > b in generated-id order.
func FirstBiggerThanSecond(a, b string) bool {
	return strings.Compare(a, b) > 0
}
