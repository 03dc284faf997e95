// Package users declares the repository contract for directory principals.
package users

import (
	"context"

	"github.com/dmitrijs2005/bindguard/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
}
