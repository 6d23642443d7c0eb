package vault

import (
	"context"
	"fmt"

	"por-go/internal/config"
	"por-go/internal/por"
)

// NewVaultFromConfig creates an ArchiveVault implementation based on the
// vault config type. Type "none" (or empty) disables retention and returns
// a nil vault.
func NewVaultFromConfig(ctx context.Context, cfg config.VaultConfig) (por.ArchiveVault, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryVault(cfg.Name), nil
	case "s3":
		// Returning the concrete pointer directly would wrap a nil *S3Vault
		// in a non-nil interface on the error path.
		v, err := NewS3Vault(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return v, nil
	case "filesystem":
		if cfg.FSVaultRoot == "" {
			return nil, fmt.Errorf("filesystem vault requires fs_vault_root to be set")
		}
		v, err := NewFileSystemVault(cfg.Name, cfg.FSVaultRoot)
		if err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Type)
	}
}
