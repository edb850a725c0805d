package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ecodeli/delivery-tracking-system/internal/domain/models"
	"github.com/ecodeli/delivery-tracking-system/internal/domain/types"
	"github.com/ecodeli/delivery-tracking-system/pkg/uuid"
)

func TestRoleCheck_RoundTrip(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)
	want := &models.User{ID: uuid.MustNew(), Role: types.RoleCourier}

	token, err := svc.Sign(want)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	got, err := svc.RoleCheck(context.Background(), token)
	if err != nil {
		t.Fatalf("role check: %v", err)
	}
	if got.ID != want.ID || got.Role != want.Role {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestRoleCheck_Rejections(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)
	user := &models.User{ID: uuid.MustNew(), Role: types.RoleClient}

	t.Run("garbage", func(t *testing.T) {
		if _, err := svc.RoleCheck(context.Background(), "not-a-token"); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("got %v, want ErrInvalidToken", err)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenService("other-secret", time.Hour)
		token, err := other.Sign(user)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := svc.RoleCheck(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("got %v, want ErrInvalidToken", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		expired := NewTokenService("test-secret", -time.Minute)
		token, err := expired.Sign(user)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := svc.RoleCheck(context.Background(), token); err == nil {
			t.Fatal("expected an error for an expired token")
		}
	})

	t.Run("unknown role", func(t *testing.T) {
		token, err := svc.Sign(&models.User{ID: uuid.MustNew(), Role: types.UserRole("SUPERVISOR")})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := svc.RoleCheck(context.Background(), token); err == nil {
			t.Fatal("expected an error for an unknown role")
		}
	})
}
