package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// fixedIV is the well-known IV of the key-wrap encoding. Wrapped keys are
// persisted without an IV, so both sides use this constant.
var fixedIV = []byte{
	0x88, 0x88, 0x88, 0x88, 0x88, 0x88, 0x88, 0x88,
	0x88, 0x88, 0x88, 0x88, 0x88, 0x88, 0x88, 0x88,
}

// EncryptKey wraps a 128- or 256-bit symmetric key under another symmetric
// key. Key material is always a block multiple, so the wrap is unpadded CBC
// with the fixed IV and carries no tag; the output is exactly as long as the
// wrapped key.
func EncryptKey(encryptionKey, keyToWrap []byte) ([]byte, error) {
	if len(keyToWrap) != AES128KeySize && len(keyToWrap) != AES256KeySize {
		return nil, fmt.Errorf("%w: wrapped key is %d bytes", ErrInvalidKeySize, len(keyToWrap))
	}
	return cbcFixedIV(encryptionKey, keyToWrap, true)
}

// DecryptKey unwraps a symmetric key wrapped by EncryptKey.
func DecryptKey(encryptionKey, wrappedKey []byte) ([]byte, error) {
	if len(wrappedKey) != AES128KeySize && len(wrappedKey) != AES256KeySize {
		return nil, fmt.Errorf("%w: wrapped key is %d bytes", ErrInvalidCiphertextSize, len(wrappedKey))
	}
	return cbcFixedIV(encryptionKey, wrappedKey, false)
}

// EncryptSearchIndexKey deterministically encrypts a search token with the
// fixed IV, so equal tokens map to equal index row keys and can be looked up
// without scanning.
func EncryptSearchIndexKey(indexKey, token []byte) ([]byte, error) {
	return Encrypt(indexKey, token, fixedIV, true, false)
}

// DecryptLegacyRecoveryKey decrypts a recovery-code key. Legacy recovery
// codes were encrypted with the full AES pipeline and the fixed IV, then
// persisted with the IV sliced off, which makes them byte-compatible with
// the plain key wrap.
func DecryptLegacyRecoveryKey(encryptionKey, wrappedKey []byte) ([]byte, error) {
	return DecryptKey(encryptionKey, wrappedKey)
}

func cbcFixedIV(key, data []byte, encrypt bool) ([]byte, error) {
	if len(key) != AES128KeySize && len(key) != AES256KeySize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidKeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	out := make([]byte, len(data))
	if encrypt {
		cipher.NewCBCEncrypter(block, fixedIV).CryptBlocks(out, data)
	} else {
		cipher.NewCBCDecrypter(block, fixedIV).CryptBlocks(out, data)
	}
	return out, nil
}
