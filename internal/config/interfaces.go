package config

import "context"

// SecretProvider resolves secret references to plaintext values. The result
// contains only the keys that were found.
type SecretProvider interface {
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
