// Package credentials is the persistent credential store: the session token,
// a cached snapshot of the user and the pending-verification email, kept in
// the local metadata table so they survive restarts.
//
// The session service is the only writer. The transport client reads the
// token through Token on every request.
package credentials

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/ticketdesk/internal/client/models"
	"github.com/dmitrijs2005/ticketdesk/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/ticketdesk/internal/dbx"
)

const (
	KeyToken        = "token"
	KeyUser         = "user"
	KeyPendingEmail = "pending_email"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) repo(db dbx.DBTX) metadata.Repository {
	return metadata.NewSQLiteRepository(db)
}

// Token returns the stored credential, or "" when there is none.
func (s *Store) Token(ctx context.Context) (string, error) {
	v, err := s.repo(s.db).Get(ctx, KeyToken)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// SetToken stores a new credential and drops the user snapshot of the
// previous one in the same transaction.
func (s *Store) SetToken(ctx context.Context, token string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repo(tx)
		if err := repo.Set(ctx, KeyToken, []byte(token)); err != nil {
			return err
		}
		return repo.Delete(ctx, KeyUser)
	})
}

// User returns the cached user snapshot, or nil when there is none.
func (s *Store) User(ctx context.Context) (*models.User, error) {
	v, err := s.repo(s.db).Get(ctx, KeyUser)
	if err != nil || len(v) == 0 {
		return nil, err
	}
	var u models.User
	if err := json.Unmarshal(v, &u); err != nil {
		return nil, fmt.Errorf("decode user snapshot: %w", err)
	}
	return &u, nil
}

func (s *Store) SetUser(ctx context.Context, u *models.User) error {
	if u == nil {
		return s.repo(s.db).Delete(ctx, KeyUser)
	}
	b, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode user snapshot: %w", err)
	}
	return s.repo(s.db).Set(ctx, KeyUser, b)
}

// PendingEmail returns the address awaiting verification, or "".
func (s *Store) PendingEmail(ctx context.Context) (string, error) {
	v, err := s.repo(s.db).Get(ctx, KeyPendingEmail)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func (s *Store) SetPendingEmail(ctx context.Context, email string) error {
	if email == "" {
		return s.repo(s.db).Delete(ctx, KeyPendingEmail)
	}
	return s.repo(s.db).Set(ctx, KeyPendingEmail, []byte(email))
}

// Clear removes every session entry. Safe to call repeatedly.
func (s *Store) Clear(ctx context.Context) error {
	return s.repo(s.db).Delete(ctx, KeyToken, KeyUser, KeyPendingEmail)
}
