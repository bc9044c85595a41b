// Package credentials supplies the certificate and private key a tenant uses
// to request tickets. Sources only read; storing credentials is left to the
// systems that own them.
package credentials

import (
	"context"
	"fmt"
	"os"

	"github.com/rezonia/arca-auth/internal/model"
)

// FileSource reads PEM files from disk on every call, so rotated files are
// picked up on the next renewal
type FileSource struct {
	TenantID int64
	CertFile string
	KeyFile  string
}

// NewFileSource creates a file source
func NewFileSource(tenantID int64, certFile, keyFile string) *FileSource {
	return &FileSource{TenantID: tenantID, CertFile: certFile, KeyFile: keyFile}
}

// Credentials implements wsaa.CredentialSource
func (s *FileSource) Credentials(ctx context.Context) (*model.CredentialBundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cert, err := os.ReadFile(s.CertFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}
	key, err := os.ReadFile(s.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}

	return &model.CredentialBundle{
		TenantID:    s.TenantID,
		Certificate: cert,
		PrivateKey:  key,
	}, nil
}
