package app

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quizdesk-service/internal/domain"
)

// RegisterInput creates a user and its credentials. Role is fixed at creation.
type RegisterInput struct {
	NationalID string `json:"nationalId" validate:"required,numeric,min=4,max=20"`
	FirstName  string `json:"firstName" validate:"required,max=100"`
	LastName   string `json:"lastName" validate:"required,max=100"`
	Role       string `json:"role" validate:"required,oneof=student teacher"`
	Password   string `json:"password" validate:"required,min=6,max=128"`
}

// NameInput updates the display name of a profile.
type NameInput struct {
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
}

// NationalIDChange requires the current password before the identifier moves.
type NationalIDChange struct {
	Password   string `json:"password" validate:"required"`
	NationalID string `json:"nationalId" validate:"required,numeric,min=4,max=20"`
}

// UserService manages profiles and the credential flows around them.
type UserService struct {
	users            UserStore
	creds            Credentials
	identifierDomain string
	newID            func() string
	log              *zap.Logger
}

func NewUserService(users UserStore, creds Credentials, identifierDomain string, log *zap.Logger) *UserService {
	if identifierDomain == "" {
		identifierDomain = "quizdesk.local"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &UserService{
		users:            users,
		creds:            creds,
		identifierDomain: identifierDomain,
		newID:            func() string { return uuid.NewString() },
		log:              log,
	}
}

// Identifier is the email-style login name derived from a national ID.
func (s *UserService) Identifier(nationalID string) string {
	return nationalID + "@" + s.identifierDomain
}

// Register creates a profile under a fresh opaque ID and stores its credentials.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	if err := validateStruct("register", in); err != nil {
		return domain.User{}, err
	}
	role, err := domain.ParseRole(in.Role)
	if err != nil {
		return domain.User{}, err
	}
	if _, err := s.users.FindUserByNationalID(ctx, in.NationalID); err == nil {
		return domain.User{}, &domain.Error{Kind: domain.KindConflict, Op: "register", Msg: "national identifier already registered"}
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, domain.Wrap(domain.KindPersistence, "register", err)
	}
	u := domain.User{
		ID:         s.newID(),
		NationalID: in.NationalID,
		FirstName:  strings.TrimSpace(in.FirstName),
		LastName:   strings.TrimSpace(in.LastName),
		Role:       role,
	}
	if err := s.creds.Register(ctx, u.ID, s.Identifier(u.NationalID), in.Password); err != nil {
		return domain.User{}, domain.Wrap(domain.KindExternal, "register credentials", err)
	}
	if err := s.users.PutUser(ctx, u); err != nil {
		return domain.User{}, domain.Wrap(domain.KindPersistence, "register", err)
	}
	s.log.Info("user registered", zap.String("user", u.ID), zap.String("role", role.String()))
	return u, nil
}

// Login verifies a national ID and password and returns the principal to issue a token for.
func (s *UserService) Login(ctx context.Context, nationalID, password string) (domain.Principal, domain.User, error) {
	userID, err := s.creds.Lookup(ctx, s.Identifier(nationalID))
	if err != nil {
		return domain.Principal{}, domain.User{}, domain.ErrInvalidCredentials
	}
	if err := s.creds.Verify(ctx, userID, password); err != nil {
		return domain.Principal{}, domain.User{}, domain.ErrInvalidCredentials
	}
	u, err := resolveUser(ctx, s.users, userID, nationalID)
	if err != nil {
		return domain.Principal{}, domain.User{}, err
	}
	return domain.Principal{UserID: u.ID, Role: u.Role, NationalID: u.NationalID}, u, nil
}

// Profile returns the caller's profile under either key layout.
func (s *UserService) Profile(ctx context.Context, p domain.Principal) (domain.User, error) {
	if p.UserID == "" {
		return domain.User{}, domain.ErrUnauthenticated
	}
	return resolveUser(ctx, s.users, p.UserID, p.NationalID)
}

// UpdateName changes first and last name. Role and national ID are untouched.
func (s *UserService) UpdateName(ctx context.Context, p domain.Principal, in NameInput) (domain.User, error) {
	if err := validateStruct("update name", in); err != nil {
		return domain.User{}, err
	}
	u, err := s.Profile(ctx, p)
	if err != nil {
		return domain.User{}, err
	}
	u.FirstName = strings.TrimSpace(in.FirstName)
	u.LastName = strings.TrimSpace(in.LastName)
	if err := s.users.PutUser(ctx, u); err != nil {
		return domain.User{}, domain.Wrap(domain.KindPersistence, "update name", err)
	}
	return u, nil
}

// ChangeNationalID re-verifies the password, then updates the profile and the
// login identifier. The record keeps its current key.
func (s *UserService) ChangeNationalID(ctx context.Context, p domain.Principal, in NationalIDChange) (domain.User, error) {
	if err := validateStruct("change national id", in); err != nil {
		return domain.User{}, err
	}
	u, err := s.Profile(ctx, p)
	if err != nil {
		return domain.User{}, err
	}
	owner := s.credentialOwner(ctx, u)
	if err := s.creds.Verify(ctx, owner, in.Password); err != nil {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	if in.NationalID == u.NationalID {
		return u, nil
	}
	if other, err := s.users.FindUserByNationalID(ctx, in.NationalID); err == nil && other.ID != u.ID {
		return domain.User{}, &domain.Error{Kind: domain.KindConflict, Op: "change national id", Msg: "national identifier already registered"}
	}
	if err := s.creds.UpdateIdentifier(ctx, owner, s.Identifier(in.NationalID)); err != nil {
		return domain.User{}, domain.Wrap(domain.KindExternal, "update identifier", err)
	}
	u.NationalID = in.NationalID
	if err := s.users.PutUser(ctx, u); err != nil {
		return domain.User{}, domain.Wrap(domain.KindPersistence, "change national id", err)
	}
	s.log.Info("national identifier changed", zap.String("user", u.ID))
	return u, nil
}

// credentialOwner returns the ID the user's credential is stored under. It is
// found through the login identifier so records moved by a rekey still match.
func (s *UserService) credentialOwner(ctx context.Context, u domain.User) string {
	if id, err := s.creds.Lookup(ctx, s.Identifier(u.NationalID)); err == nil {
		return id
	}
	return u.ID
}
