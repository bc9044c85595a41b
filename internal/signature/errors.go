package signature

import (
	"fmt"

	"github.com/rezonia/arca-auth/internal/model"
)

// Fields reported on signing errors
const (
	FieldCertificate = "certificate"
	FieldPrivateKey  = "private_key"
	FieldEnvelope    = "envelope"
)

// Common error constructors

// ErrNoPEMBlock returns error when the input holds no PEM block of the wanted type
func ErrNoPEMBlock(field, blockType string) *model.SigningError {
	return model.NewSigningError(field, fmt.Sprintf("no %s PEM block found", blockType), nil)
}

// ErrInvalidCertificate returns error when the certificate cannot be parsed
func ErrInvalidCertificate(cause error) *model.SigningError {
	return model.NewSigningError(FieldCertificate, "certificate could not be parsed", cause)
}

// ErrInvalidKey returns error when the private key cannot be parsed
func ErrInvalidKey(cause error) *model.SigningError {
	return model.NewSigningError(FieldPrivateKey, "private key could not be parsed", cause)
}

// ErrKeyMismatch returns error when the key does not belong to the certificate
func ErrKeyMismatch(subject string) *model.SigningError {
	return model.NewSigningError(FieldPrivateKey, fmt.Sprintf("private key does not match certificate %s", subject), nil)
}

// ErrEnvelope returns error when the CMS structure cannot be produced
func ErrEnvelope(cause error) *model.SigningError {
	return model.NewSigningError(FieldEnvelope, "failed to build signed-data envelope", cause)
}
