package domain

import (
	"fmt"
	"time"
)

// APIKey represents a service API key for authentication. The web
// application is the only expected caller; keys are provisioned via the
// admin CLI.
type APIKey struct {
	ID        string
	Name      string
	KeyHash   string // Never store plaintext keys
	CreatedAt time.Time
	RevokedAt *time.Time
}

// IsRevoked reports whether the key has been revoked.
func (a *APIKey) IsRevoked() bool {
	return a.RevokedAt != nil
}

// ValidateAPIKey checks that a key is complete enough to persist.
func ValidateAPIKey(a *APIKey) error {
	switch {
	case a == nil:
		return fmt.Errorf("api key cannot be nil")
	case a.ID == "":
		return fmt.Errorf("api key ID is required")
	case a.Name == "":
		return fmt.Errorf("api key Name is required")
	case a.KeyHash == "":
		return fmt.Errorf("api key KeyHash is required")
	}
	return nil
}
