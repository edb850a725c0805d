package middleware

import (
	"context"

	"github.com/ecodeli/delivery-tracking-system/internal/domain/models"
	"github.com/ecodeli/delivery-tracking-system/pkg/logger"
)

type (
	AuthService interface {
		RoleCheck(ctx context.Context, token string) (*models.User, error)
	}

	Middleware struct {
		auth AuthService
		log  logger.Logger
	}
)

func NewMiddleware(auth AuthService, log logger.Logger) *Middleware {
	return &Middleware{
		auth: auth,
		log:  log,
	}
}
