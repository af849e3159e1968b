package crypto

import "errors"

var (
	// ErrInvalidKeySize is returned when a symmetric key is neither
	// 128 nor 256 bits.
	ErrInvalidKeySize = errors.New("invalid key size")

	// ErrInvalidIVSize is returned when an initialization vector is not
	// one AES block long.
	ErrInvalidIVSize = errors.New("invalid iv size")

	// ErrDecryptionFailed is returned when decryption fails.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrMacMismatch is returned when the authentication tag of a MACed
	// ciphertext does not verify.
	ErrMacMismatch = errors.New("mac verification failed")

	// ErrInvalidCiphertextSize is returned when a ciphertext size is invalid.
	ErrInvalidCiphertextSize = errors.New("invalid ciphertext size")

	// ErrInvalidPadding is returned when PKCS#7 padding is malformed after
	// decryption.
	ErrInvalidPadding = errors.New("invalid padding")

	// ErrInvalidSecretKeySize is returned when an asymmetric secret key size
	// is invalid.
	ErrInvalidSecretKeySize = errors.New("invalid secret key size")

	// ErrInvalidPublicKeySize is returned when an asymmetric public key size
	// is invalid.
	ErrInvalidPublicKeySize = errors.New("invalid public key size")

	// ErrInvalidEnvelope is returned when a byte blob does not parse as a
	// hybrid PQ envelope.
	ErrInvalidEnvelope = errors.New("invalid pq envelope")
)
