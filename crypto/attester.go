package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
)

// AttesterKey is the bead chain's ECDSA secp256r1 (P-256) signing identity,
// referenced in bead attestations as attestation.air_node_id. The teacher
// repo's key management (crypto.PrivateKey) is built exclusively on
// secp256k1 via go-ethereum/crypto, which cannot produce a P-256 key; no
// library in the example pack offers P-256 key generation either, so this
// one piece is built directly on the standard library's crypto/ecdsa and
// crypto/elliptic, which is the idiomatic Go way to work with NIST curves.
type AttesterKey struct {
	*ecdsa.PrivateKey
}

// GenerateAttesterKey creates a new P-256 attestation keypair.
func GenerateAttesterKey() (*AttesterKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("crypto: generate attester key: %w", err)
	}
	return &AttesterKey{key}, nil
}

// AttesterKeyFromBytes reconstructs a P-256 key from its PKCS#8 DER encoding.
func AttesterKeyFromBytes(der []byte) (*AttesterKey, error) {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("crypto: parse attester key: %w", err)
	}
	ecKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New("crypto: attester key is not ECDSA")
	}
	if ecKey.Curve != elliptic.P256() {
		return nil, errors.New("crypto: attester key is not on curve P-256")
	}
	return &AttesterKey{ecKey}, nil
}

// Bytes returns the PKCS#8 DER encoding of the private key, suitable for
// chmod-400 storage on disk.
func (k *AttesterKey) Bytes() ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(k.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: marshal attester key: %w", err)
	}
	return der, nil
}

// PEM renders the PKCS#8 DER encoding from Bytes as a PEM block. It is
// independent of SaveToKeystore, which writes an Ethereum v3 JSON file.
func (k *AttesterKey) PEM() ([]byte, error) {
	der, err := k.Bytes()
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), nil
}

// NodeID derives the attestation.air_node_id from the public key: the
// hex-encoded SHA-256 digest of the uncompressed point encoding, truncated
// to 16 bytes for a compact, stable identifier.
func (k *AttesterKey) NodeID() string {
	pub := elliptic.Marshal(k.PublicKey.Curve, k.PublicKey.X, k.PublicKey.Y)
	sum := sha256.Sum256(pub)
	return fmt.Sprintf("%x", sum[:16])
}

// ecdsaSignature mirrors the ASN.1 structure emitted by crypto/ecdsa.Sign
// (via SignASN1) so callers can deterministically round-trip signatures.
type ecdsaSignature struct {
	R, S *big.Int
}

// Sign produces an ASN.1 DER ECDSA signature over the supplied digest. The
// digest MUST already be a SHA-256 hash (bead hash_self), never raw content.
func (k *AttesterKey) Sign(digest []byte) ([]byte, error) {
	if len(digest) != sha256.Size {
		return nil, fmt.Errorf("crypto: attester sign expects a sha256 digest, got %d bytes", len(digest))
	}
	r, s, err := ecdsa.Sign(rand.Reader, k.PrivateKey, digest)
	if err != nil {
		return nil, fmt.Errorf("crypto: sign digest: %w", err)
	}
	return asn1.Marshal(ecdsaSignature{R: r, S: s})
}

// Verify checks an ASN.1 DER ECDSA signature over a SHA-256 digest against
// this key's public key.
func (k *AttesterKey) Verify(digest, sig []byte) bool {
	return VerifyWithPublicKey(&k.PublicKey, digest, sig)
}

// VerifyWithPublicKey checks an ASN.1 DER ECDSA signature against an
// arbitrary P-256 public key, used by beadchain.VerifyChain which only ever
// holds the public half of the attester identity.
func VerifyWithPublicKey(pub *ecdsa.PublicKey, digest, sig []byte) bool {
	var parsed ecdsaSignature
	if _, err := asn1.Unmarshal(sig, &parsed); err != nil {
		return false
	}
	if len(digest) != sha256.Size {
		return false
	}
	return ecdsa.Verify(pub, digest, parsed.R, parsed.S)
}
