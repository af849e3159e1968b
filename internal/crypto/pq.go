package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// PQKeyPairs bundles the two halves of a hybrid post-quantum identity.
type PQKeyPairs struct {
	EccKeyPair   EccKeyPair
	KyberKeyPair KyberKeyPair
}

// PQPublicKeys is the public half of a hybrid identity.
type PQPublicKeys struct {
	EccPublicKey   []byte
	KyberPublicKey []byte
}

// ToPublicKeys returns the public half of the key pairs.
func (p PQKeyPairs) ToPublicKeys() PQPublicKeys {
	return PQPublicKeys{
		EccPublicKey:   p.EccKeyPair.PublicKey,
		KyberPublicKey: p.KyberKeyPair.PublicKey,
	}
}

// GeneratePQKeyPairs creates a fresh hybrid identity (X25519 + ML-KEM-768).
func GeneratePQKeyPairs() (PQKeyPairs, error) {
	ecc, err := GenerateEccKeyPair()
	if err != nil {
		return PQKeyPairs{}, err
	}
	kyber, err := GenerateKyberKeyPair()
	if err != nil {
		return PQKeyPairs{}, err
	}
	return PQKeyPairs{EccKeyPair: ecc, KyberKeyPair: kyber}, nil
}

// PQEncapsulate wraps a bucket key for a recipient's hybrid public keys.
//
// The KEK is derived from three shared secrets:
//  1. X25519 between the ephemeral key and the recipient key
//  2. X25519 between the sender's identity key and the recipient key
//  3. the ML-KEM-768 encapsulation
//
// Because the sender identity key contributes to the KEK and is bound into
// the HKDF info, substituting it breaks decryption outright; the identity
// key comparison after decapsulation only distinguishes "decrypts but the
// registry disagrees" for trust display.
func PQEncapsulate(senderIdentityKeyPair, ephemeralKeyPair EccKeyPair, recipientKeys PQPublicKeys, bucketKey []byte) (*PQMessage, error) {
	eccEphemeral, err := EccSharedSecret(ephemeralKeyPair.PrivateKey, recipientKeys.EccPublicKey)
	if err != nil {
		return nil, fmt.Errorf("ephemeral agreement: %w", err)
	}
	eccAuth, err := EccSharedSecret(senderIdentityKeyPair.PrivateKey, recipientKeys.EccPublicKey)
	if err != nil {
		return nil, fmt.Errorf("identity agreement: %w", err)
	}
	kyberCiphertext, kyberShared, err := KyberEncapsulate(recipientKeys.KyberPublicKey)
	if err != nil {
		return nil, fmt.Errorf("kyber encapsulation: %w", err)
	}

	kek, err := deriveKEK(eccEphemeral, eccAuth, kyberShared, senderIdentityKeyPair.PublicKey, ephemeralKeyPair.PublicKey, recipientKeys.EccPublicKey)
	if err != nil {
		return nil, err
	}
	kekEncBucketKey, err := EncryptKey(kek, bucketKey)
	if err != nil {
		return nil, fmt.Errorf("wrapping bucket key: %w", err)
	}

	return &PQMessage{
		SenderIdentityPubKey: senderIdentityKeyPair.PublicKey,
		EphemeralPubKey:      ephemeralKeyPair.PublicKey,
		KyberCiphertext:      kyberCiphertext,
		KekEncBucketKey:      kekEncBucketKey,
	}, nil
}

// PQDecapsulate recovers the bucket key from an envelope using the
// recipient's hybrid key pairs.
func PQDecapsulate(msg *PQMessage, recipientKeys PQKeyPairs) ([]byte, error) {
	eccEphemeral, err := EccSharedSecret(recipientKeys.EccKeyPair.PrivateKey, msg.EphemeralPubKey)
	if err != nil {
		return nil, fmt.Errorf("ephemeral agreement: %w", err)
	}
	eccAuth, err := EccSharedSecret(recipientKeys.EccKeyPair.PrivateKey, msg.SenderIdentityPubKey)
	if err != nil {
		return nil, fmt.Errorf("identity agreement: %w", err)
	}
	kyberShared, err := KyberDecapsulate(recipientKeys.KyberKeyPair.PrivateKey, msg.KyberCiphertext)
	if err != nil {
		return nil, fmt.Errorf("kyber decapsulation: %w", err)
	}

	kek, err := deriveKEK(eccEphemeral, eccAuth, kyberShared, msg.SenderIdentityPubKey, msg.EphemeralPubKey, recipientKeys.EccKeyPair.PublicKey)
	if err != nil {
		return nil, err
	}
	bucketKey, err := DecryptKey(kek, msg.KekEncBucketKey)
	if err != nil {
		return nil, fmt.Errorf("unwrapping bucket key: %w", err)
	}
	return bucketKey, nil
}

// deriveKEK derives the AES-256 key encapsulation key with HKDF-SHA-256.
// All three public keys participate in the info for domain separation.
func deriveKEK(eccEphemeral, eccAuth, kyberShared, senderIdentityPub, ephemeralPub, recipientEccPub []byte) ([]byte, error) {
	ikm := make([]byte, 0, len(eccEphemeral)+len(eccAuth)+len(kyberShared))
	ikm = append(ikm, eccEphemeral...)
	ikm = append(ikm, eccAuth...)
	ikm = append(ikm, kyberShared...)

	info := make([]byte, 0, len(kekInfo)+3*EccKeySize)
	info = append(info, kekInfo...)
	info = append(info, senderIdentityPub...)
	info = append(info, ephemeralPub...)
	info = append(info, recipientEccPub...)

	reader := hkdf.New(sha256.New, ikm, nil, info)
	kek := make([]byte, AES256KeySize)
	if _, err := io.ReadFull(reader, kek); err != nil {
		return nil, fmt.Errorf("derive kek: %w", err)
	}
	return kek, nil
}
