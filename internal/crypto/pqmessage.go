package crypto

import (
	"encoding/binary"
	"fmt"
)

// PQMessage is the hybrid post-quantum envelope protecting a bucket key.
// Its wire form is a sequence of length-prefixed fields:
//
//	uint16 len || senderIdentityPubKey
//	uint16 len || ephemeralPubKey
//	uint16 len || kyberCiphertext
//	uint16 len || kekEncBucketKey
type PQMessage struct {
	// SenderIdentityPubKey is the sender group's long-term X25519 public key,
	// authenticated against the key registry after decapsulation.
	SenderIdentityPubKey []byte
	// EphemeralPubKey is the per-message X25519 public key.
	EphemeralPubKey []byte
	// KyberCiphertext is the ML-KEM-768 encapsulation.
	KyberCiphertext []byte
	// KekEncBucketKey is the bucket key wrapped under the derived KEK.
	KekEncBucketKey []byte
}

// EncodePQMessage serializes an envelope to its wire form.
func EncodePQMessage(msg *PQMessage) []byte {
	fields := [][]byte{msg.SenderIdentityPubKey, msg.EphemeralPubKey, msg.KyberCiphertext, msg.KekEncBucketKey}
	size := 0
	for _, f := range fields {
		size += 2 + len(f)
	}
	out := make([]byte, 0, size)
	for _, f := range fields {
		out = binary.BigEndian.AppendUint16(out, uint16(len(f)))
		out = append(out, f...)
	}
	return out
}

// DecodePQMessage parses an envelope from its wire form. It fails on any
// structural inconsistency, which is also how legacy RSA blobs (a bare
// 256-byte OAEP ciphertext) are rejected.
func DecodePQMessage(data []byte) (*PQMessage, error) {
	fields := make([][]byte, 4)
	rest := data
	for i := range fields {
		if len(rest) < 2 {
			return nil, fmt.Errorf("%w: truncated at field %d", ErrInvalidEnvelope, i)
		}
		n := int(binary.BigEndian.Uint16(rest))
		rest = rest[2:]
		if len(rest) < n {
			return nil, fmt.Errorf("%w: field %d shorter than declared", ErrInvalidEnvelope, i)
		}
		fields[i] = rest[:n]
		rest = rest[n:]
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidEnvelope, len(rest))
	}

	msg := &PQMessage{
		SenderIdentityPubKey: fields[0],
		EphemeralPubKey:      fields[1],
		KyberCiphertext:      fields[2],
		KekEncBucketKey:      fields[3],
	}
	if len(msg.SenderIdentityPubKey) != EccKeySize || len(msg.EphemeralPubKey) != EccKeySize {
		return nil, fmt.Errorf("%w: bad ecc key size", ErrInvalidEnvelope)
	}
	if len(msg.KyberCiphertext) != MLKEMCiphertextSize {
		return nil, fmt.Errorf("%w: bad kyber ciphertext size", ErrInvalidEnvelope)
	}
	if len(msg.KekEncBucketKey) != AES128KeySize && len(msg.KekEncBucketKey) != AES256KeySize {
		return nil, fmt.Errorf("%w: bad wrapped key size", ErrInvalidEnvelope)
	}
	return msg, nil
}

// IsPQMessage reports whether a byte blob parses as a hybrid envelope.
// Used to discriminate PQ-wrapped bucket keys from legacy RSA ones.
func IsPQMessage(data []byte) bool {
	_, err := DecodePQMessage(data)
	return err == nil
}
