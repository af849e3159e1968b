package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
)

// GenerateRSAKeyPair creates a new RSA-2048 key pair for the legacy
// asymmetric scheme. New identities get ECC+Kyber pairs instead; this exists
// for interoperating with not-yet-migrated groups.
func GenerateRSAKeyPair() (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, RSAKeySizeBits)
	if err != nil {
		return nil, fmt.Errorf("generating rsa key: %w", err)
	}
	return key, nil
}

// EncryptRSA encrypts data with RSA-OAEP(SHA-256) under the given public key.
func EncryptRSA(publicKey *rsa.PublicKey, data []byte) ([]byte, error) {
	out, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, publicKey, data, nil)
	if err != nil {
		return nil, fmt.Errorf("rsa encrypt: %w", err)
	}
	return out, nil
}

// DecryptRSA decrypts an RSA-OAEP(SHA-256) ciphertext.
func DecryptRSA(privateKey *rsa.PrivateKey, ciphertext []byte) ([]byte, error) {
	out, err := rsa.DecryptOAEP(sha256.New(), nil, privateKey, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("rsa decrypt: %w", err)
	}
	return out, nil
}

// RSAPublicKeyToBytes serializes a public key to PKCS#1 DER, the wire form
// used by the public-key lookup service.
func RSAPublicKeyToBytes(publicKey *rsa.PublicKey) []byte {
	return x509.MarshalPKCS1PublicKey(publicKey)
}

// RSAPublicKeyFromBytes parses a PKCS#1 DER public key.
func RSAPublicKeyFromBytes(data []byte) (*rsa.PublicKey, error) {
	key, err := x509.ParsePKCS1PublicKey(data)
	if err != nil {
		return nil, fmt.Errorf("parsing rsa public key: %w", err)
	}
	return key, nil
}

// EncryptRSAKey wraps an RSA private key under a symmetric group key. The
// private key is serialized to PKCS#1 DER and AES-encrypted with padding and
// no tag (the historical symEncPrivRsaKey layout).
func EncryptRSAKey(encryptionKey []byte, privateKey *rsa.PrivateKey, iv []byte) ([]byte, error) {
	der := x509.MarshalPKCS1PrivateKey(privateKey)
	return Encrypt(encryptionKey, der, iv, true, false)
}

// DecryptRSAKey unwraps an RSA private key wrapped by EncryptRSAKey.
func DecryptRSAKey(encryptionKey, wrappedKey []byte) (*rsa.PrivateKey, error) {
	der, err := Decrypt(encryptionKey, wrappedKey, true)
	if err != nil {
		return nil, fmt.Errorf("unwrapping rsa key: %w", err)
	}
	key, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parsing rsa private key: %w", err)
	}
	return key, nil
}
