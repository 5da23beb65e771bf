package secrets

import (
	"fmt"
	"os"
	"strings"
)

// Source describes where an API key can be found.
type Source struct {
	// Name is used in error messages.
	Name string
	// Value is an inline secret from configuration or flags.
	Value string
	// Env names an environment variable (possibly populated from .env).
	Env string
	// File points to a file containing the secret.
	File string
}

// Load resolves the secret from src. A file takes precedence over the environment,
// which takes precedence over the inline value. The result is always trimmed.
func Load(src Source) (string, error) {
	name := strings.TrimSpace(src.Name)
	if name == "" {
		name = "secret"
	}

	if file := strings.TrimSpace(src.File); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading %s from file %q: %w", name, file, err)
		}

		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return "", fmt.Errorf("%s file %q is empty", name, file)
		}
		return secret, nil
	}

	if env := strings.TrimSpace(src.Env); env != "" {
		if secret := strings.TrimSpace(os.Getenv(env)); secret != "" {
			return secret, nil
		}
	}

	secret := strings.TrimSpace(src.Value)
	if secret == "" {
		if src.Env != "" {
			return "", fmt.Errorf("%s is not configured (set %s)", name, src.Env)
		}
		return "", fmt.Errorf("%s is not configured", name)
	}

	return secret, nil
}
