package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// The symmetric wire layout mirrors the historical server format:
//
//	without tag: iv (16 bytes) || CBC ciphertext
//	with tag:    0x01 || iv (16 bytes) || CBC ciphertext || HMAC-SHA-256 tag
//
// The marker byte makes a tagged ciphertext one byte longer than a multiple
// of the block size, so the two layouts never need out-of-band signaling.

// subKeys holds the cipher and MAC keys derived from a symmetric key for
// authenticated encryption.
type subKeys struct {
	cKey []byte
	mKey []byte
}

// deriveSubKeys splits a symmetric key into independent cipher and MAC keys.
// Legacy 128-bit keys use the two halves of a single SHA-256; 256-bit keys
// use HKDF expansion.
func deriveSubKeys(key []byte) (subKeys, error) {
	switch len(key) {
	case AES128KeySize:
		digest := sha256.Sum256(key)
		return subKeys{cKey: digest[:16], mKey: digest[16:]}, nil
	case AES256KeySize:
		reader := hkdf.New(sha256.New, key, nil, subKeyInfo)
		out := make([]byte, 2*AES256KeySize)
		if _, err := io.ReadFull(reader, out); err != nil {
			return subKeys{}, fmt.Errorf("derive sub keys: %w", err)
		}
		return subKeys{cKey: out[:AES256KeySize], mKey: out[AES256KeySize:]}, nil
	default:
		return subKeys{}, fmt.Errorf("%w: got %d, want %d or %d", ErrInvalidKeySize, len(key), AES128KeySize, AES256KeySize)
	}
}

// Encrypt encrypts plaintext with AES-CBC under the given 128- or 256-bit key.
// usePadding applies PKCS#7 padding (required unless the plaintext length is a
// block multiple). useMac appends an HMAC-SHA-256 tag over iv and ciphertext.
func Encrypt(key, plaintext, iv []byte, usePadding, useMac bool) ([]byte, error) {
	if len(iv) != IVSize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidIVSize, len(iv), IVSize)
	}

	encKey := key
	var mKey []byte
	if useMac {
		keys, err := deriveSubKeys(key)
		if err != nil {
			return nil, err
		}
		encKey, mKey = keys.cKey, keys.mKey
	} else if len(key) != AES128KeySize && len(key) != AES256KeySize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidKeySize, len(key))
	}

	data := plaintext
	if usePadding {
		data = padPKCS7(plaintext)
	} else if len(plaintext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("unpadded plaintext length %d is not a block multiple", len(plaintext))
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	ciphertext := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, data)

	out := make([]byte, 0, 1+IVSize+len(ciphertext)+MacSize)
	if useMac {
		out = append(out, macMarker)
	}
	out = append(out, iv...)
	out = append(out, ciphertext...)
	if useMac {
		mac := hmac.New(sha256.New, mKey)
		mac.Write(out[1:])
		out = mac.Sum(out)
	}
	return out, nil
}

// Decrypt decrypts a ciphertext produced by Encrypt. The presence of an
// authentication tag is detected from the length; when present it is verified
// before any decryption happens.
func Decrypt(key, ciphertext []byte, usePadding bool) ([]byte, error) {
	useMac := len(ciphertext)%aes.BlockSize == 1

	encKey := key
	if useMac {
		if len(ciphertext) < 1+IVSize+MacSize || ciphertext[0] != macMarker {
			return nil, fmt.Errorf("%w: malformed authenticated ciphertext", ErrInvalidCiphertextSize)
		}
		keys, err := deriveSubKeys(key)
		if err != nil {
			return nil, err
		}
		encKey = keys.cKey

		body := ciphertext[1 : len(ciphertext)-MacSize]
		tag := ciphertext[len(ciphertext)-MacSize:]
		mac := hmac.New(sha256.New, keys.mKey)
		mac.Write(body)
		if !hmac.Equal(tag, mac.Sum(nil)) {
			return nil, ErrMacMismatch
		}
		ciphertext = body
	} else if len(key) != AES128KeySize && len(key) != AES256KeySize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidKeySize, len(key))
	}

	if len(ciphertext) < IVSize || (len(ciphertext)-IVSize)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCiphertextSize, len(ciphertext))
	}

	iv := ciphertext[:IVSize]
	data := ciphertext[IVSize:]

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	plaintext := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, data)

	if usePadding {
		return unpadPKCS7(plaintext)
	}
	return plaintext, nil
}

// padPKCS7 appends PKCS#7 padding up to the next block boundary.
func padPKCS7(data []byte) []byte {
	padLen := aes.BlockSize - len(data)%aes.BlockSize
	return append(append(make([]byte, 0, len(data)+padLen), data...), bytes.Repeat([]byte{byte(padLen)}, padLen)...)
}

// unpadPKCS7 strips and validates PKCS#7 padding.
func unpadPKCS7(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrInvalidPadding
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > len(data) {
		return nil, ErrInvalidPadding
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, ErrInvalidPadding
		}
	}
	return data[:len(data)-padLen], nil
}

// Random128Key generates a fresh 128-bit symmetric key.
func Random128Key() []byte {
	return randomBytes(AES128KeySize)
}

// Random256Key generates a fresh 256-bit symmetric key.
func Random256Key() []byte {
	return randomBytes(AES256KeySize)
}

// RandomIV generates a fresh CBC initialization vector.
func RandomIV() []byte {
	return randomBytes(IVSize)
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("reading random bytes: %v", err))
	}
	return b
}
