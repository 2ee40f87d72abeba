package pki

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/awnumar/memguard"
)

// Key strengths used by the bootstrap pipeline.
const (
	MinKeyBits  = 2048
	MaxKeyBits  = 16384
	CAKeyBits   = 4096
	LeafKeyBits = 2048
)

// KeyPair is an RSA private key together with the strength it was generated at.
type KeyPair struct {
	Private *rsa.PrivateKey
	Bits    int
}

// Public returns the public half of the pair.
func (k *KeyPair) Public() *rsa.PublicKey {
	return &k.Private.PublicKey
}

// PEM encodes the private key as an unencrypted PKCS#1 "RSA PRIVATE KEY"
// block. The intermediate DER buffer is wiped before returning.
func (k *KeyPair) PEM() []byte {
	der := x509.MarshalPKCS1PrivateKey(k.Private)
	defer memguard.WipeBytes(der)
	return pem.EncodeToMemory(&pem.Block{Type: pemTypeRSAKey, Bytes: der})
}

// KeyGenerator produces key pairs of a requested strength.
type KeyGenerator interface {
	Generate(bits int) (*KeyPair, error)
}

// RSAKeyGenerator generates RSA keys from the platform entropy source.
type RSAKeyGenerator struct{}

// Compile-time interface check.
var _ KeyGenerator = (*RSAKeyGenerator)(nil)

// NewRSAKeyGenerator returns an RSAKeyGenerator ready for use.
func NewRSAKeyGenerator() *RSAKeyGenerator {
	return &RSAKeyGenerator{}
}

// Generate creates an RSA key pair with public exponent 65537. Sizes below
// MinKeyBits are rejected as insecure; sizes above MaxKeyBits or not a
// multiple of 8 are rejected as unsupported.
func (g *RSAKeyGenerator) Generate(bits int) (*KeyPair, error) {
	if err := checkKeySize(bits); err != nil {
		return nil, err
	}
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("%w: generating RSA-%d key: %w", ErrGeneration, bits, err)
	}
	return &KeyPair{Private: priv, Bits: bits}, nil
}

func checkKeySize(bits int) error {
	if bits < MinKeyBits {
		return fmt.Errorf("%w: %w: %d bits (minimum %d)", ErrGeneration, ErrInsecureKeySize, bits, MinKeyBits)
	}
	if bits > MaxKeyBits || bits%8 != 0 {
		return fmt.Errorf("%w: %w: %d bits", ErrGeneration, ErrUnsupportedKeySize, bits)
	}
	return nil
}
