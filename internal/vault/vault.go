// Package vault owns per-account key material: an RSA key pair and the
// symmetric data key that envelope encryption wraps under it.
package vault

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"
)

const (
	rsaBits      = 2048
	dataKeyBytes = 32 // AES-256
)

// Material is the key set minted for a new account. The wrapped data key and
// public key live on the account record; the private key goes to the
// credential store only.
type Material struct {
	// DataKey is the raw symmetric key. It is needed once, to envelope the
	// initial record before the credential row exists, and is never stored.
	DataKey        []byte
	WrappedDataKey string
	PublicKey      string
	PrivateKey     string
}

// Generate mints a fresh RSA-2048 key pair and a 256-bit data key, wraps the
// data key under the new public key and returns everything encoded for
// storage. Any failure here is fatal to account creation: no partial account
// may be persisted.
func Generate() (*Material, error) {
	priv, err := rsa.GenerateKey(rand.Reader, rsaBits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key pair: %w", err)
	}

	dataKey := make([]byte, dataKeyBytes)
	if _, err := rand.Read(dataKey); err != nil {
		return nil, fmt.Errorf("generate data key: %w", err)
	}

	wrapped, err := WrapDataKey(dataKey, &priv.PublicKey)
	if err != nil {
		return nil, err
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("encode public key: %w", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("encode private key: %w", err)
	}

	return &Material{
		DataKey:        dataKey,
		WrappedDataKey: wrapped,
		PublicKey:      base64.StdEncoding.EncodeToString(pubDER),
		PrivateKey:     base64.StdEncoding.EncodeToString(privDER),
	}, nil
}

// WrapDataKey encrypts a symmetric data key under an account's public key
// using RSA-OAEP.
func WrapDataKey(dataKey []byte, pub *rsa.PublicKey) (string, error) {
	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, dataKey, nil)
	if err != nil {
		return "", fmt.Errorf("wrap data key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

// DecodePublicKey parses a stored base64 PKIX public key.
func DecodePublicKey(encoded string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("parse public key: not an RSA key")
	}
	return pub, nil
}

// DecodePrivateKey parses a stored base64 PKCS#8 private key.
func DecodePrivateKey(encoded string) (*rsa.PrivateKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("parse private key: not an RSA key")
	}
	return priv, nil
}
