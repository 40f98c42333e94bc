package testutil

import (
	"fmt"

	"github.com/google/uuid"
)

// Credentials of the admin account bootstrapped in integration tests.
const (
	AdminEmail    = "admin@example.com"
	AdminPassword = "admin-password-123"
)

// RandomEmail returns a unique email address.
func RandomEmail() string {
	return fmt.Sprintf("user-%s@example.com", uuid.NewString()[:8])
}

// RandomSuffix returns a short unique string for test data.
func RandomSuffix() string {
	return uuid.NewString()[:8]
}
