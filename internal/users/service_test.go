package users

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dsn := fmt.Sprintf("file:users_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Account{}); err != nil {
		t.Fatalf("failed to migrate account schema: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock: func() time.Time {
			return time.Unix(1, 0)
		},
		HashCost: bcrypt.MinCost,
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service
}

func TestRegisterThenAuthenticate(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	userID, err := service.Register(ctx, " alice ", "wonderland")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if userID == "" {
		t.Fatalf("expected a user id")
	}

	authenticated, err := service.Authenticate(ctx, "alice", "wonderland")
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if authenticated != userID {
		t.Fatalf("expected user id %q, got %q", userID, authenticated)
	}
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	if _, err := service.Register(ctx, "alice", "one"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := service.Register(ctx, "alice", "two"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected duplicate registration to fail with ErrUserExists, got %v", err)
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	if _, err := service.Register(ctx, "  ", "secret"); !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("expected invalid username, got %v", err)
	}
	if _, err := service.Register(ctx, "bob", ""); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected invalid password, got %v", err)
	}
}

func TestAuthenticateRejectsWrongPasswordAndUnknownUser(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	if _, err := service.Register(ctx, "alice", "wonderland"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := service.Authenticate(ctx, "alice", "looking-glass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for wrong password, got %v", err)
	}
	if _, err := service.Authenticate(ctx, "mallory", "wonderland"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}
}

func TestExists(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	userID, err := service.Register(ctx, "alice", "wonderland")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	service.known.Delete(userID)

	exists, err := service.Exists(ctx, userID)
	if err != nil {
		t.Fatalf("exists failed: %v", err)
	}
	if !exists {
		t.Fatalf("expected registered user to exist")
	}

	for _, candidate := range []string{"9999", "not-a-number", "0", ""} {
		exists, err := service.Exists(ctx, candidate)
		if err != nil {
			t.Fatalf("exists(%q) failed: %v", candidate, err)
		}
		if exists {
			t.Fatalf("expected %q not to exist", candidate)
		}
	}
}
