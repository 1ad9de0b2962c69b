package users

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const maxUsernameLength = 190

var (
	// ErrInvalidCredentials indicates an unknown username or a wrong password.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrInvalidUsername indicates an empty or oversized username.
	ErrInvalidUsername = errors.New("users: invalid username")
	// ErrInvalidPassword indicates an empty password or one bcrypt cannot hash.
	ErrInvalidPassword = errors.New("users: invalid password")
	// ErrUserExists indicates the username is already registered.
	ErrUserExists = errors.New("users: username already registered")
)

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	HashCost int
}

// Service registers accounts and verifies username/password pairs.
type Service struct {
	db       *gorm.DB
	now      func() time.Time
	hashCost int
	known    sync.Map
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	cost := cfg.HashCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{
		db:       cfg.Database,
		now:      clock,
		hashCost: cost,
	}, nil
}

// Register creates an account for the username and returns its user id.
func (s *Service) Register(ctx context.Context, username, password string) (string, error) {
	name := normalize(username)
	if name == "" || len(name) > maxUsernameLength {
		return "", ErrInvalidUsername
	}
	if password == "" {
		return "", ErrInvalidPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrInvalidPassword
		}
		return "", err
	}

	account := Account{
		Username:     name,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&Account{}).Where("username = ?", name).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrUserExists
		}
		return tx.Create(&account).Error
	})
	if err != nil {
		return "", err
	}

	userID := account.UserID()
	s.known.Store(userID, struct{}{})
	return userID, nil
}

// Authenticate verifies the password for the username and returns the user id.
func (s *Service) Authenticate(ctx context.Context, username, password string) (string, error) {
	name := normalize(username)
	if name == "" || password == "" {
		return "", ErrInvalidCredentials
	}

	var account Account
	err := s.db.WithContext(ctx).Where("username = ?", name).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}

	userID := account.UserID()
	s.known.Store(userID, struct{}{})
	return userID, nil
}

// Exists reports whether the user id belongs to a registered account.
// Accounts are never deleted, so positive answers are cached.
func (s *Service) Exists(ctx context.Context, userID string) (bool, error) {
	userID = strings.TrimSpace(userID)
	if _, ok := s.known.Load(userID); ok {
		return true, nil
	}
	id, err := strconv.ParseUint(userID, 10, 64)
	if err != nil || id == 0 {
		return false, nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&Account{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	if count == 0 {
		return false, nil
	}
	s.known.Store(userID, struct{}{})
	return true, nil
}
