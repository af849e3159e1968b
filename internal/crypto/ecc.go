package crypto

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/cloudflare/circl/dh/x25519"
)

// EccKeyPair holds an X25519 key pair as raw bytes.
type EccKeyPair struct {
	PublicKey  []byte
	PrivateKey []byte
}

// GenerateEccKeyPair creates a new X25519 key pair.
func GenerateEccKeyPair() (EccKeyPair, error) {
	var pub, priv x25519.Key
	if _, err := io.ReadFull(rand.Reader, priv[:]); err != nil {
		return EccKeyPair{}, fmt.Errorf("generating ecc key: %w", err)
	}
	x25519.KeyGen(&pub, &priv)
	return EccKeyPair{
		PublicKey:  append([]byte(nil), pub[:]...),
		PrivateKey: append([]byte(nil), priv[:]...),
	}, nil
}

// EccPublicKeyFromPrivate recomputes the public half of an X25519 key.
func EccPublicKeyFromPrivate(privateKey []byte) ([]byte, error) {
	if len(privateKey) != EccKeySize {
		return nil, fmt.Errorf("%w: ecc private key is %d bytes", ErrInvalidSecretKeySize, len(privateKey))
	}
	var pub, priv x25519.Key
	copy(priv[:], privateKey)
	x25519.KeyGen(&pub, &priv)
	return append([]byte(nil), pub[:]...), nil
}

// EccSharedSecret performs an X25519 key agreement between a private and a
// public key.
func EccSharedSecret(privateKey, publicKey []byte) ([]byte, error) {
	if len(privateKey) != EccKeySize {
		return nil, fmt.Errorf("%w: ecc private key is %d bytes", ErrInvalidSecretKeySize, len(privateKey))
	}
	if len(publicKey) != EccKeySize {
		return nil, fmt.Errorf("%w: ecc public key is %d bytes", ErrInvalidPublicKeySize, len(publicKey))
	}

	var shared, priv, pub x25519.Key
	copy(priv[:], privateKey)
	copy(pub[:], publicKey)
	if !x25519.Shared(&shared, &priv, &pub) {
		return nil, fmt.Errorf("%w: low order point", ErrDecryptionFailed)
	}
	return append([]byte(nil), shared[:]...), nil
}
