package config

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// GetAPIToken returns the bearer token protecting the local REST API. The
// token is minted on first use and persisted in the platform secret store so
// the daemon and CLI agree across restarts. RANKD_API_TOKEN overrides.
func GetAPIToken() (string, error) {
	return apiTokenWith(platformKeychain{})
}

func apiTokenWith(kc keychain) (string, error) {
	if t := os.Getenv("RANKD_API_TOKEN"); t != "" {
		return t, nil
	}
	if t, err := kc.Get(keychainService, "api_token"); err == nil && t != "" {
		return t, nil
	}

	token := uuid.NewString()
	if err := kc.Set(keychainService, "api_token", token); err != nil {
		return "", fmt.Errorf("storing api token: %w", err)
	}
	return token, nil
}
