package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestPQEncapsulate_PQDecapsulate_RoundTrip(t *testing.T) {
	for _, tt := range []struct {
		name      string
		bucketKey []byte
	}{
		{"128-bit bucket key", Random128Key()},
		{"256-bit bucket key", Random256Key()},
	} {
		t.Run(tt.name, func(t *testing.T) {
			recipient, err := GeneratePQKeyPairs()
			if err != nil {
				t.Fatal(err)
			}
			senderIdentity, err := GenerateEccKeyPair()
			if err != nil {
				t.Fatal(err)
			}
			ephemeral, err := GenerateEccKeyPair()
			if err != nil {
				t.Fatal(err)
			}

			msg, err := PQEncapsulate(senderIdentity, ephemeral, recipient.ToPublicKeys(), tt.bucketKey)
			if err != nil {
				t.Fatalf("PQEncapsulate() error = %v", err)
			}
			if !bytes.Equal(msg.SenderIdentityPubKey, senderIdentity.PublicKey) {
				t.Error("envelope does not carry the sender identity key")
			}

			got, err := PQDecapsulate(msg, recipient)
			if err != nil {
				t.Fatalf("PQDecapsulate() error = %v", err)
			}
			if !bytes.Equal(got, tt.bucketKey) {
				t.Errorf("decapsulated = %x, want %x", got, tt.bucketKey)
			}
		})
	}
}

func TestPQDecapsulate_WrongRecipient(t *testing.T) {
	recipient, _ := GeneratePQKeyPairs()
	other, _ := GeneratePQKeyPairs()
	senderIdentity, _ := GenerateEccKeyPair()
	ephemeral, _ := GenerateEccKeyPair()

	msg, err := PQEncapsulate(senderIdentity, ephemeral, recipient.ToPublicKeys(), Random256Key())
	if err != nil {
		t.Fatal(err)
	}

	got, err := PQDecapsulate(msg, other)
	if err == nil && bytes.Equal(got, msg.KekEncBucketKey) {
		t.Error("wrong recipient recovered the bucket key")
	}
}

func TestPQMessage_EncodeDecode(t *testing.T) {
	recipient, _ := GeneratePQKeyPairs()
	senderIdentity, _ := GenerateEccKeyPair()
	ephemeral, _ := GenerateEccKeyPair()

	msg, err := PQEncapsulate(senderIdentity, ephemeral, recipient.ToPublicKeys(), Random256Key())
	if err != nil {
		t.Fatal(err)
	}

	encoded := EncodePQMessage(msg)
	decoded, err := DecodePQMessage(encoded)
	if err != nil {
		t.Fatalf("DecodePQMessage() error = %v", err)
	}

	if !bytes.Equal(decoded.SenderIdentityPubKey, msg.SenderIdentityPubKey) ||
		!bytes.Equal(decoded.EphemeralPubKey, msg.EphemeralPubKey) ||
		!bytes.Equal(decoded.KyberCiphertext, msg.KyberCiphertext) ||
		!bytes.Equal(decoded.KekEncBucketKey, msg.KekEncBucketKey) {
		t.Error("decoded envelope differs from original")
	}
}

func TestDecodePQMessage_RejectsLegacyRSABlob(t *testing.T) {
	// a legacy pubEncBucketKey is a bare RSA-2048 OAEP ciphertext
	blob := randomBytes(RSAEncryptedSize)
	if _, err := DecodePQMessage(blob); !errors.Is(err, ErrInvalidEnvelope) {
		t.Errorf("DecodePQMessage() error = %v, want ErrInvalidEnvelope", err)
	}
	if IsPQMessage(blob) {
		t.Error("IsPQMessage() accepted a random rsa-sized blob")
	}
}

func TestDecodePQMessage_Truncated(t *testing.T) {
	recipient, _ := GeneratePQKeyPairs()
	senderIdentity, _ := GenerateEccKeyPair()
	ephemeral, _ := GenerateEccKeyPair()
	msg, _ := PQEncapsulate(senderIdentity, ephemeral, recipient.ToPublicKeys(), Random256Key())

	encoded := EncodePQMessage(msg)
	for _, cut := range []int{1, 2, 40, len(encoded) - 1} {
		if _, err := DecodePQMessage(encoded[:cut]); err == nil {
			t.Errorf("DecodePQMessage() accepted truncation at %d", cut)
		}
	}
	if _, err := DecodePQMessage(append(encoded, 0x00)); err == nil {
		t.Error("DecodePQMessage() accepted trailing bytes")
	}
}

func TestEccSharedSecret_Agreement(t *testing.T) {
	a, err := GenerateEccKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	b, err := GenerateEccKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	ab, err := EccSharedSecret(a.PrivateKey, b.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	ba, err := EccSharedSecret(b.PrivateKey, a.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(ab, ba) {
		t.Error("x25519 agreement is not symmetric")
	}
}

func TestKyber_RoundTrip(t *testing.T) {
	pair, err := GenerateKyberKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	ciphertext, shared, err := KyberEncapsulate(pair.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	got, err := KyberDecapsulate(pair.PrivateKey, ciphertext)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, shared) {
		t.Error("decapsulated secret differs from encapsulated")
	}
}
