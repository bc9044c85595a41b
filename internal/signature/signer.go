package signature

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"

	"github.com/hhrutter/pkcs7"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const cmsBlockType = "CMS"

// Signer produces the text embedded in the WSAA loginCms request
type Signer interface {
	// Sign wraps plaintext in a signed-data envelope using the PEM encoded
	// certificate and private key, and returns the base64 body of the
	// envelope without PEM armor
	Sign(certPEM, keyPEM []byte, plaintext string) (string, error)
}

// CMSSigner signs with PKCS#7/CMS SignedData: attached content, one signer,
// SHA-256, no encryption
type CMSSigner struct {
	clock  clockwork.Clock
	logger *zap.Logger
}

// SignerOption configures a CMSSigner
type SignerOption func(*CMSSigner)

// WithSignerClock sets the clock used for certificate validity warnings
func WithSignerClock(c clockwork.Clock) SignerOption {
	return func(s *CMSSigner) {
		s.clock = c
	}
}

// WithSignerLogger sets the logger
func WithSignerLogger(l *zap.Logger) SignerOption {
	return func(s *CMSSigner) {
		s.logger = l
	}
}

// NewCMSSigner creates a new CMS signer
func NewCMSSigner(opts ...SignerOption) *CMSSigner {
	s := &CMSSigner{
		clock:  clockwork.NewRealClock(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sign implements Signer
func (s *CMSSigner) Sign(certPEM, keyPEM []byte, plaintext string) (string, error) {
	cert, err := ParseCertificate(certPEM)
	if err != nil {
		return "", err
	}

	key, err := ParsePrivateKey(keyPEM)
	if err != nil {
		return "", err
	}

	if !keyMatches(cert, key) {
		return "", ErrKeyMismatch(cert.Subject.String())
	}

	// WSAA will reject it, but that is its call to make
	if info := NewSignerInfo(cert); !info.ValidAt(s.clock.Now()) {
		s.logger.Warn("signing with a certificate outside its validity period",
			zap.String("subject", info.Name),
			zap.Time("valid_from", info.ValidFrom),
			zap.Time("valid_to", info.ValidTo),
		)
	}

	sd, err := pkcs7.NewSignedData([]byte(plaintext))
	if err != nil {
		return "", ErrEnvelope(err)
	}
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)

	if err := sd.AddSigner(cert, key, pkcs7.SignerInfoConfig{}); err != nil {
		return "", ErrEnvelope(err)
	}

	der, err := sd.Finish()
	if err != nil {
		return "", ErrEnvelope(err)
	}

	return stripArmor(pem.EncodeToMemory(&pem.Block{Type: cmsBlockType, Bytes: der})), nil
}

// Describe returns subject information for a PEM certificate
func Describe(certPEM []byte) (*SignerInfo, error) {
	cert, err := ParseCertificate(certPEM)
	if err != nil {
		return nil, err
	}
	return NewSignerInfo(cert), nil
}

// ParseCertificate decodes the first CERTIFICATE block in data
func ParseCertificate(data []byte) (*x509.Certificate, error) {
	block := findBlock(data, func(t string) bool { return t == "CERTIFICATE" })
	if block == nil {
		return nil, ErrNoPEMBlock(FieldCertificate, "CERTIFICATE")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, ErrInvalidCertificate(err)
	}
	return cert, nil
}

// ParsePrivateKey decodes a PKCS#8, PKCS#1 or SEC1 private key
func ParsePrivateKey(data []byte) (crypto.PrivateKey, error) {
	block := findBlock(data, func(t string) bool { return strings.HasSuffix(t, "PRIVATE KEY") })
	if block == nil {
		return nil, ErrNoPEMBlock(FieldPrivateKey, "PRIVATE KEY")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, ErrInvalidKey(fmt.Errorf("unsupported key encoding in %s block", block.Type))
	}
	return key, nil
}

// findBlock skips PEM blocks until match accepts one
func findBlock(data []byte, match func(string) bool) *pem.Block {
	for {
		block, rest := pem.Decode(data)
		if block == nil {
			return nil
		}
		if match(block.Type) {
			return block
		}
		data = rest
	}
}

func keyMatches(cert *x509.Certificate, key crypto.PrivateKey) bool {
	type publicKey interface {
		Equal(crypto.PublicKey) bool
	}

	var pub crypto.PublicKey
	switch k := key.(type) {
	case *rsa.PrivateKey:
		pub = &k.PublicKey
	case *ecdsa.PrivateKey:
		pub = &k.PublicKey
	case ed25519.PrivateKey:
		pub = k.Public()
	default:
		return false
	}

	certPub, ok := cert.PublicKey.(publicKey)
	return ok && certPub.Equal(pub)
}

// stripArmor drops the BEGIN/END lines and keeps the base64 body
func stripArmor(armored []byte) string {
	s := string(armored)
	s = strings.TrimPrefix(s, "-----BEGIN "+cmsBlockType+"-----")
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "-----END "+cmsBlockType+"-----")
	return strings.TrimSpace(s)
}
