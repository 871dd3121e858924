package users

import (
	"context"
	"time"
)

// Repo persists user accounts. Create reports ErrEmailExists or ErrUsernameExists on conflict.
type Repo interface {
	Create(ctx context.Context, user User) (User, error)
	GetByID(ctx context.Context, userID string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
	IncrementPredictionCount(ctx context.Context, userID string) error
	TouchLogin(ctx context.Context, userID string, at time.Time) error
}
