package crypto

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
)

// KyberKeyPair holds an ML-KEM-768 key pair as raw bytes.
type KyberKeyPair struct {
	PublicKey  []byte
	PrivateKey []byte
}

// GenerateKyberKeyPair creates a new ML-KEM-768 key pair.
func GenerateKyberKeyPair() (KyberKeyPair, error) {
	pub, priv, err := mlkem768.GenerateKeyPair(rand.Reader)
	if err != nil {
		return KyberKeyPair{}, fmt.Errorf("generating kyber key: %w", err)
	}

	// MarshalBinary never fails for freshly generated keys
	pubBytes, _ := pub.MarshalBinary()
	privBytes, _ := priv.MarshalBinary()
	return KyberKeyPair{PublicKey: pubBytes, PrivateKey: privBytes}, nil
}

// KyberEncapsulate encapsulates a fresh shared secret to the given public
// key, returning the KEM ciphertext and the shared secret.
func KyberEncapsulate(publicKey []byte) (ciphertext, sharedSecret []byte, err error) {
	if len(publicKey) != MLKEMPublicKeySize {
		return nil, nil, fmt.Errorf("%w: kyber public key is %d bytes", ErrInvalidPublicKeySize, len(publicKey))
	}

	var pub mlkem768.PublicKey
	if err := pub.Unpack(publicKey); err != nil {
		return nil, nil, fmt.Errorf("unpack kyber public key: %w", err)
	}

	seed := make([]byte, mlkem768.EncapsulationSeedSize)
	if _, err := io.ReadFull(rand.Reader, seed); err != nil {
		return nil, nil, fmt.Errorf("generating encapsulation seed: %w", err)
	}

	ciphertext = make([]byte, MLKEMCiphertextSize)
	sharedSecret = make([]byte, MLKEMSharedKeySize)
	pub.EncapsulateTo(ciphertext, sharedSecret, seed)
	return ciphertext, sharedSecret, nil
}

// KyberDecapsulate recovers the shared secret from a KEM ciphertext.
func KyberDecapsulate(privateKey, ciphertext []byte) ([]byte, error) {
	if len(privateKey) != MLKEMSecretKeySize {
		return nil, fmt.Errorf("%w: kyber private key is %d bytes", ErrInvalidSecretKeySize, len(privateKey))
	}
	if len(ciphertext) != MLKEMCiphertextSize {
		return nil, fmt.Errorf("%w: kyber ciphertext is %d bytes", ErrInvalidCiphertextSize, len(ciphertext))
	}

	var priv mlkem768.PrivateKey
	if err := priv.Unpack(privateKey); err != nil {
		return nil, fmt.Errorf("unpack kyber private key: %w", err)
	}

	sharedSecret := make([]byte, MLKEMSharedKeySize)
	priv.DecapsulateTo(sharedSecret, ciphertext)
	return sharedSecret, nil
}
