package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/StudioGate/internal/domain"
	"github.com/Strob0t/StudioGate/internal/domain/user"
)

// RoleOf returns the role recorded on the user's profile.
func (s *Store) RoleOf(ctx context.Context, userID string) (user.Role, error) {
	var role string
	err := s.pool.QueryRow(ctx, `SELECT role FROM profiles WHERE id = $1`, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("profile %s: %w", userID, domain.ErrNotFound)
		}
		return "", fmt.Errorf("profile %s: %w", userID, err)
	}
	return user.Role(role), nil
}
