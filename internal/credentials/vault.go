package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"

	"github.com/rezonia/arca-auth/internal/model"
)

// Secret fields read from Vault
const (
	FieldTenantID    = "tenant_id"
	FieldCertificate = "certificate"
	FieldPrivateKey  = "private_key"
)

// NewVaultClient creates a Vault API client for address authenticated with token
func NewVaultClient(address, token string) (*vault.Client, error) {
	cfg := vault.DefaultConfig()
	if address != "" {
		cfg.Address = address
	}

	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}
	return client, nil
}

// VaultSource reads a tenant's credentials from a Vault KV secret. Both KV v2
// (fields under "data") and KV v1 (fields at the top level) layouts work.
type VaultSource struct {
	client *vault.Client
	path   string
	logger *zap.Logger
}

// VaultOption configures a VaultSource
type VaultOption func(*VaultSource)

// WithVaultLogger sets the logger
func WithVaultLogger(l *zap.Logger) VaultOption {
	return func(s *VaultSource) {
		s.logger = l
	}
}

// NewVaultSource creates a source reading the secret at path
func NewVaultSource(client *vault.Client, path string, opts ...VaultOption) *VaultSource {
	s := &VaultSource{
		client: client,
		path:   path,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Credentials implements wsaa.CredentialSource. A missing secret yields a nil
// bundle and no error.
func (s *VaultSource) Credentials(ctx context.Context) (*model.CredentialBundle, error) {
	secret, err := s.client.Logical().ReadWithContext(ctx, s.path)
	if err != nil {
		s.logger.Error("failed to read credentials from vault", zap.String("path", s.path), zap.Error(err))
		return nil, fmt.Errorf("could not read credentials from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		s.logger.Warn("no credentials found in vault", zap.String("path", s.path))
		return nil, nil
	}

	data := secret.Data
	if nested, ok := data["data"].(map[string]interface{}); ok {
		data = nested
	}

	tenantID, err := parseTenantID(data[FieldTenantID])
	if err != nil {
		return nil, err
	}
	cert, ok := data[FieldCertificate].(string)
	if !ok || cert == "" {
		return nil, fmt.Errorf("%s not found or not a string in vault secret", FieldCertificate)
	}
	key, ok := data[FieldPrivateKey].(string)
	if !ok || key == "" {
		return nil, fmt.Errorf("%s not found or not a string in vault secret", FieldPrivateKey)
	}

	return &model.CredentialBundle{
		TenantID:    tenantID,
		Certificate: []byte(cert),
		PrivateKey:  []byte(key),
	}, nil
}

func parseTenantID(v interface{}) (int64, error) {
	switch id := v.(type) {
	case json.Number:
		return id.Int64()
	case string:
		return strconv.ParseInt(id, 10, 64)
	case float64:
		return int64(id), nil
	case nil:
		return 0, fmt.Errorf("%s not found in vault secret", FieldTenantID)
	default:
		return 0, fmt.Errorf("%s has unexpected type %T", FieldTenantID, v)
	}
}
