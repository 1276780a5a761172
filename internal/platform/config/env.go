// Package config holds the shared configuration helpers for the accord
// daemon and its command-line tools.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv fills target from ACCORD_-prefixed environment variables,
// as declared by the struct's env tags.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
