// Package crypto provides the cryptographic primitive layer for the entity
// encryption protocol: symmetric field encryption, key wrapping, the legacy
// RSA scheme, and the hybrid post-quantum scheme.
//
// # Algorithms
//
//   - AES-128/AES-256 in CBC mode with an optional HMAC-SHA-256
//     authentication tag for entity field values and wrapped private keys.
//     The tag presence is encoded in the ciphertext length (a tagged
//     ciphertext carries a one-byte marker), so old untagged records remain
//     readable.
//
//   - An unpadded fixed-IV AES wrap for symmetric keys (EncryptKey /
//     DecryptKey). Key material is always exactly one or two blocks, so the
//     wrap adds no length overhead.
//
//   - RSA-2048 with OAEP(SHA-256) for the legacy asymmetric key
//     distribution scheme.
//
//   - X25519 + ML-KEM-768 for the hybrid post-quantum scheme. PQEncapsulate
//     derives an AES-256 KEK from two X25519 agreements (ephemeral and
//     sender-identity) and one ML-KEM encapsulation via HKDF-SHA-256, then
//     wraps the bucket key under the KEK. The sender identity key is part of
//     the derivation, which gives the scheme its sender-binding property.
//
//   - DEFLATE for compressed-string entity fields.
//
// # Key sizes
//
// Symmetric keys are 128-bit (legacy) or 256-bit. Both are accepted
// everywhere a key is decrypted; new keys are always 256-bit.
package crypto
