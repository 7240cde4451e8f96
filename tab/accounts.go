package tab

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/jrsteele09/go-auth-session/authmodel"
)

// Account is a user to create on the in-process backend.
type Account struct {
	Email    string
	Password string
	Username string
	Role     authmodel.Role
}

// DefaultAccounts are the demo parent and child.
func DefaultAccounts() []Account {
	return []Account{
		{Email: "parent@example.com", Username: "parent", Role: authmodel.RoleParent},
		{Email: "child@example.com", Username: "child", Role: authmodel.RoleChild},
	}
}

// SeedAccounts creates accounts on the in-process backend. Accounts
// without a password get a random one; the returned slice carries the
// passwords actually used.
func (o *Origin) SeedAccounts(accounts []Account) ([]Account, error) {
	if o.fake == nil {
		return nil, fmt.Errorf("[tab SeedAccounts] backend %q does not accept seeded accounts", o.cfg.GetBackendKind())
	}

	seeded := make([]Account, 0, len(accounts))
	for _, a := range accounts {
		if a.Password == "" {
			password, err := generatePassword()
			if err != nil {
				return nil, fmt.Errorf("[tab SeedAccounts] failed to generate password: %w", err)
			}
			a.Password = password
		}
		if _, err := o.fake.AddUser(a.Email, a.Password, a.Username, a.Role); err != nil {
			return nil, fmt.Errorf("[tab SeedAccounts] %w", err)
		}
		o.logger.Info().Str("email", a.Email).Str("role", string(a.Role)).Msg("Seeded account")
		seeded = append(seeded, a)
	}
	return seeded, nil
}

func generatePassword() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
