// Package authpw provides username/password authentication for corpus users.
package authpw

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"corpora/api/internal/rbac"
	"corpora/api/internal/store"
	"corpora/api/internal/util"

	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

var (
	// ErrInvalidCredentials never tells an unknown username apart from a wrong
	// password.
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameTaken      = errors.New("username already taken")
)

// ValidationError reports unusable input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (store.User, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
	UpdateUserCredentials(ctx context.Context, userID, passwordHash, role string) error
}

type Service struct {
	store UserStore
	cost  int
}

func NewService(store UserStore) *Service {
	return &Service{store: store, cost: bcrypt.DefaultCost}
}

// SignIn authenticates a user by username and password.
func (s *Service) SignIn(ctx context.Context, username, password string) (store.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return store.User{}, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByUsername(ctx, username)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// CreateUser registers a user with a hashed password. Only operators create
// users; there is no self sign-up.
func (s *Service) CreateUser(ctx context.Context, username, password, role string) (store.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return store.User{}, &ValidationError{Field: "username", Message: "is required"}
	}
	if err := validatePassword(password); err != nil {
		return store.User{}, err
	}
	if !rbac.Valid(role) {
		return store.User{}, &ValidationError{Field: "role", Message: "must be viewer, annotator, editor or admin"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}
	user := store.User{
		ID:           util.NewID("usr"),
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return store.User{}, ErrUsernameTaken
		}
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// SetPassword replaces a user's password and, when role is non-empty, the role.
func (s *Service) SetPassword(ctx context.Context, userID, password, role string) error {
	if err := validatePassword(password); err != nil {
		return err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if role == "" {
		role = user.Role
	} else if !rbac.Valid(role) {
		return &ValidationError{Field: "role", Message: "must be viewer, annotator, editor or admin"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdateUserCredentials(ctx, userID, string(hash), role); err != nil {
		return fmt.Errorf("update credentials: %w", err)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return &ValidationError{Field: "password", Message: fmt.Sprintf("must be at least %d characters", minPasswordLength)}
	}
	return nil
}
