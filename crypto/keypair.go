// Package crypto implements the envelope encryption engine of the
// messenger: per-identity RSA key pairs, AES-256-GCM message sealing with
// per-recipient RSA-OAEP key wrapping, and at-rest sealing of private keys.
package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// DefaultKeyBits matches the production key size. Tests use smaller keys to
// keep generation fast; anything large enough to wrap a 32-byte session key
// under OAEP works.
const DefaultKeyBits = 4096

const (
	privatePEMType = "RSA PRIVATE KEY"
	publicPEMType  = "PUBLIC KEY"
)

// GenerateKeyPair returns a fresh RSA key pair. Each identity gets exactly
// one, at creation, and it is never rotated.
func GenerateKeyPair(bits int) (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generate RSA keypair: %w", err)
	}
	return key, nil
}

// EncodePublicKey renders a public key as a PKIX PEM block, the shareable
// form stored on the identity record.
func EncodePublicKey(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: publicPEMType, Bytes: der})), nil
}

// DecodePublicKey parses a PKIX PEM public key.
func DecodePublicKey(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("decode public PEM: no PEM block")
	}
	if block.Type != publicPEMType {
		return nil, fmt.Errorf("decode public PEM: unexpected type %q", block.Type)
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("parse public key: not an RSA key")
	}
	return pub, nil
}

// EncodePrivateKey renders a private key as a PKCS#1 PEM block. The result
// is confidential and only ever stored sealed (see keystore.go).
func EncodePrivateKey(priv *rsa.PrivateKey) string {
	der := x509.MarshalPKCS1PrivateKey(priv)
	return string(pem.EncodeToMemory(&pem.Block{Type: privatePEMType, Bytes: der}))
}

// DecodePrivateKey parses a PKCS#1 PEM private key.
func DecodePrivateKey(pemStr string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("decode private PEM: no PEM block")
	}
	if block.Type != privatePEMType {
		return nil, fmt.Errorf("decode private PEM: unexpected type %q", block.Type)
	}
	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return priv, nil
}
