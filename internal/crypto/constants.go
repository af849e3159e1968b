package crypto

const (
	// AES128KeySize is the size of a legacy AES-128 key in bytes.
	AES128KeySize = 16
	// AES256KeySize is the size of an AES-256 key in bytes.
	AES256KeySize = 32

	// IVSize is the size of an AES-CBC initialization vector in bytes.
	IVSize = 16
	// MacSize is the size of the HMAC-SHA-256 authentication tag in bytes.
	MacSize = 32
	// macMarker is the leading byte of a ciphertext that carries an
	// authentication tag. It shifts the total length off the block-size
	// boundary, which is how the two layouts are told apart.
	macMarker = 0x01

	// MLKEMPublicKeySize is the size of an ML-KEM-768 public key in bytes.
	MLKEMPublicKeySize = 1184
	// MLKEMSecretKeySize is the size of an ML-KEM-768 secret key in bytes.
	MLKEMSecretKeySize = 2400
	// MLKEMCiphertextSize is the size of an ML-KEM-768 ciphertext in bytes.
	MLKEMCiphertextSize = 1088
	// MLKEMSharedKeySize is the size of the shared secret from ML-KEM-768 in bytes.
	MLKEMSharedKeySize = 32

	// EccKeySize is the size of an X25519 public or private key in bytes.
	EccKeySize = 32

	// RSAKeySizeBits is the modulus size of generated RSA key pairs.
	RSAKeySizeBits = 2048
	// RSAEncryptedSize is the size of an RSA-2048 OAEP ciphertext in bytes.
	RSAEncryptedSize = 256
)

// kekInfo is the HKDF domain-separation context for deriving the key
// encapsulation key of the hybrid PQ scheme.
var kekInfo = []byte("mailvault:pqkek:v1")

// subKeyInfo is the HKDF domain-separation context for deriving the
// cipher/MAC sub-keys of an authenticated AES-256 encryption.
var subKeyInfo = []byte("mailvault:aessubkeys:v1")
