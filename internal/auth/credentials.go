package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"quizdesk-service/internal/domain"
)

// CredentialStore persists login records.
type CredentialStore interface {
	PutCredential(ctx context.Context, c domain.Credential) error
	CredentialByUser(ctx context.Context, userID string) (domain.Credential, error)
	CredentialByIdentifier(ctx context.Context, identifier string) (domain.Credential, error)
}

// Credentials implements app.Credentials with bcrypt password hashes.
type Credentials struct {
	store CredentialStore
	cost  int
}

func NewCredentials(store CredentialStore, cost int) *Credentials {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Credentials{store: store, cost: cost}
}

func (c *Credentials) Register(ctx context.Context, userID, identifier, password string) error {
	if _, err := c.store.CredentialByIdentifier(ctx, identifier); err == nil {
		return &domain.Error{Kind: domain.KindConflict, Op: "register", Msg: "identifier already registered"}
	} else if !errors.Is(err, domain.ErrInvalidCredentials) {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), c.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return c.store.PutCredential(ctx, domain.Credential{UserID: userID, Identifier: identifier, PasswordHash: string(hash)})
}

func (c *Credentials) Verify(ctx context.Context, userID, password string) error {
	cred, err := c.store.CredentialByUser(ctx, userID)
	if err != nil {
		return domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return domain.ErrInvalidCredentials
	}
	return nil
}

func (c *Credentials) Lookup(ctx context.Context, identifier string) (string, error) {
	cred, err := c.store.CredentialByIdentifier(ctx, identifier)
	if err != nil {
		return "", domain.ErrInvalidCredentials
	}
	return cred.UserID, nil
}

func (c *Credentials) UpdateIdentifier(ctx context.Context, userID, identifier string) error {
	cred, err := c.store.CredentialByUser(ctx, userID)
	if err != nil {
		return err
	}
	cred.Identifier = identifier
	return c.store.PutCredential(ctx, cred)
}
