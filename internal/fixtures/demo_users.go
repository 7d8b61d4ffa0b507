package fixtures

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/user"
	"golang.org/x/crypto/bcrypt"
)

// ==========================================
// DEFAULT ACCOUNTS
// ==========================================

// DemoUser describes one seeded account.
type DemoUser struct {
	Email    string
	FullName string
	Role     user.Role
}

// GetDemoUsers returns one validated account per role.
func GetDemoUsers() []DemoUser {
	return []DemoUser{
		{Email: "admin@training-center.local", FullName: "Administrateur", Role: user.Admin},
		{Email: "formateur@training-center.local", FullName: "Formateur Démo", Role: user.Formateur},
		{Email: "apprenant@training-center.local", FullName: "Apprenant Démo", Role: user.Apprenant},
	}
}

// ==========================================
// SEEDER
// ==========================================

// SeededUserIDs maps the seeded emails to their user ids.
type SeededUserIDs map[string]string

// SeedUsers creates the demo accounts that do not exist yet, all sharing
// password. Existing accounts are left untouched.
func SeedUsers(ctx context.Context, users user.UserRepository, password string) (SeededUserIDs, error) {
	return seedUsers(ctx, users, password, bcrypt.DefaultCost)
}

func seedUsers(ctx context.Context, users user.UserRepository, password string, cost int) (SeededUserIDs, error) {
	if password == "" {
		return nil, errors.New("seed password is empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash seed password: %w", err)
	}
	hashed := string(hash)

	ids := make(SeededUserIDs)
	for _, demo := range GetDemoUsers() {
		existing, err := users.GetByEmail(ctx, demo.Email)
		if err == nil {
			ids[demo.Email] = existing.ID
			continue
		}
		if !errors.Is(err, user.ErrUserNotFound) {
			return nil, fmt.Errorf("failed to look up %s: %w", demo.Email, err)
		}

		created, err := users.Create(ctx, user.User{
			Email:        demo.Email,
			FullName:     demo.FullName,
			PasswordHash: &hashed,
			Role:         demo.Role,
			Validated:    true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to seed %s: %w", demo.Email, err)
		}
		slog.Info("seeded demo account", "email", created.Email, "role", demo.Role.String())
		ids[demo.Email] = created.ID
	}
	return ids, nil
}
