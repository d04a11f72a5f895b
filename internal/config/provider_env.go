package config

import (
	"context"
	"os"
)

// EnvVarProvider treats each key as an environment variable name. Used for
// local runs where SSM is unavailable.
type EnvVarProvider struct{}

func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{}
}

func (p *EnvVarProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		if val, ok := os.LookupEnv(key); ok {
			out[key] = val
		}
	}
	return out, nil
}
