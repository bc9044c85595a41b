package signature

import (
	"crypto/x509"
	"time"
)

// SignerInfo contains certificate subject information
type SignerInfo struct {
	// Common name (CN)
	Name string `json:"name"`

	// Organization (O)
	Organization string `json:"organization,omitempty"`

	// Subject serial number, ARCA puts "CUIT <n>" here
	SubjectSerial string `json:"subject_serial,omitempty"`

	// Certificate serial number
	SerialNumber string `json:"serial_number"`

	// Issuer common name
	Issuer string `json:"issuer"`

	// Certificate validity period
	ValidFrom time.Time `json:"valid_from"`
	ValidTo   time.Time `json:"valid_to"`
}

// NewSignerInfo populates SignerInfo from an x509 certificate
func NewSignerInfo(cert *x509.Certificate) *SignerInfo {
	if cert == nil {
		return nil
	}

	info := &SignerInfo{
		Name:          cert.Subject.CommonName,
		SubjectSerial: cert.Subject.SerialNumber,
		SerialNumber:  cert.SerialNumber.String(),
		ValidFrom:     cert.NotBefore,
		ValidTo:       cert.NotAfter,
	}

	if len(cert.Subject.Organization) > 0 {
		info.Organization = cert.Subject.Organization[0]
	}

	if len(cert.Issuer.CommonName) > 0 {
		info.Issuer = cert.Issuer.CommonName
	} else if len(cert.Issuer.Organization) > 0 {
		info.Issuer = cert.Issuer.Organization[0]
	}

	return info
}

// ValidAt reports whether t falls inside the certificate validity period
func (i *SignerInfo) ValidAt(t time.Time) bool {
	return !t.Before(i.ValidFrom) && !t.After(i.ValidTo)
}
