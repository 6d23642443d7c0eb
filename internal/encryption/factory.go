package encryption

import (
	"fmt"

	"por-go/internal/config"
	"por-go/internal/por"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration
// type. Type "none" (or empty) disables at-rest encryption and returns nil.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (por.Encryptor, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "age":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
