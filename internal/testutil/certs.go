// Package testutil holds helpers shared by package tests.
package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"
)

// CertKeyPair is a PEM encoded self-signed certificate and its key
type CertKeyPair struct {
	Certificate []byte
	PrivateKey  []byte
	Cert        *x509.Certificate
}

// NewRSACertKeyPair creates a self-signed RSA certificate valid around now,
// with the key in PKCS#1 form like the keys ARCA users generate with openssl
func NewRSACertKeyPair(t testing.TB, commonName string) CertKeyPair {
	t.Helper()
	return NewRSACertKeyPairValid(t, commonName, time.Now().Add(-time.Hour), time.Now().Add(365*24*time.Hour))
}

// NewRSACertKeyPairValid creates a self-signed RSA certificate with the given
// validity window
func NewRSACertKeyPairValid(t testing.TB, commonName string, notBefore, notAfter time.Time) CertKeyPair {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	pair := selfSign(t, commonName, key, &key.PublicKey, notBefore, notAfter)
	pair.PrivateKey = pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	return pair
}

// NewECCertKeyPair creates a self-signed P-256 certificate with a PKCS#8 key
func NewECCertKeyPair(t testing.TB, commonName string) CertKeyPair {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	pair := selfSign(t, commonName, key, &key.PublicKey, time.Now().Add(-time.Hour), time.Now().Add(24*time.Hour))
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}
	pair.PrivateKey = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	return pair
}

func selfSign(t testing.TB, commonName string, priv, pub any, notBefore, notAfter time.Time) CertKeyPair {
	t.Helper()

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject: pkix.Name{
			CommonName:   commonName,
			Organization: []string{"Test Org"},
			SerialNumber: "CUIT 20123456789",
		},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, pub, priv)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("failed to parse certificate: %v", err)
	}

	return CertKeyPair{
		Certificate: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		Cert:        cert,
	}
}
