package catalog

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"schoollibrary/internal/storage"
)

// Default librarian account
const (
	DefaultUsername = "Trần Thị Kim Thoa"
	DefaultPassword = "12345"
)

// ErrInvalidCredentials is returned by Login for a wrong username or password
var ErrInvalidCredentials = errors.New("invalid username or password")

// Session tracks whether the librarian is logged in.
// It is a convenience gate for the chat surface, not an access control layer.
type Session struct {
	db       storage.Storage
	store    *Store
	logger   *zap.Logger
	username string
	password string
}

// NewSession creates a session checking against the given credentials
func NewSession(db storage.Storage, store *Store, logger *zap.Logger, username, password string) *Session {
	if username == "" {
		username = DefaultUsername
	}
	if password == "" {
		password = DefaultPassword
	}
	return &Session{
		db:       db,
		store:    store,
		logger:   logger,
		username: username,
		password: password,
	}
}

// Login checks the credentials, runs the overdue sweep and records the session.
// No session is recorded when the sweep fails.
func (s *Session) Login(ctx context.Context, username, password string) error {
	if username != s.username || password != s.password {
		s.logger.Warn("Rejected login", zap.String("username", username))
		return ErrInvalidCredentials
	}

	if _, err := s.store.SweepOverdue(ctx); err != nil {
		return fmt.Errorf("failed to sweep overdue loans: %w", err)
	}

	err := s.db.SetMany(ctx, map[string]string{
		storage.KeyLoggedIn:    "true",
		storage.KeyCurrentUser: username,
	})
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	s.logger.Info("Librarian logged in", zap.String("username", username))
	return nil
}

// Logout clears the session
func (s *Session) Logout(ctx context.Context) error {
	if err := s.db.Delete(ctx, storage.KeyLoggedIn); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	if err := s.db.Delete(ctx, storage.KeyCurrentUser); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	s.logger.Info("Librarian logged out")
	return nil
}

// Current returns the logged-in user, or ok=false when nobody is logged in
func (s *Session) Current(ctx context.Context) (user string, ok bool, err error) {
	flag, ok, err := s.db.Get(ctx, storage.KeyLoggedIn)
	if err != nil {
		return "", false, fmt.Errorf("failed to read session: %w", err)
	}
	if !ok || flag != "true" {
		return "", false, nil
	}
	user, _, err = s.db.Get(ctx, storage.KeyCurrentUser)
	if err != nil {
		return "", false, fmt.Errorf("failed to read session: %w", err)
	}
	return user, true, nil
}
