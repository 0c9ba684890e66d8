package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"quizdesk-service/internal/domain"
)

const issuer = "quizdesk"

// Claims are the JWT claims of an access token.
type Claims struct {
	Role       string `json:"role"`
	NationalID string `json:"nid,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 access tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed token for p and its expiry.
func (i *Issuer) Issue(p domain.Principal) (string, time.Time, error) {
	now := i.now()
	expires := now.Add(i.ttl)
	claims := &Claims{
		Role:       p.Role.String(),
		NationalID: p.NationalID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Parse verifies tokenStr and returns the principal it carries.
func (i *Issuer) Parse(tokenStr string) (domain.Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !token.Valid {
		return domain.Principal{}, &domain.Error{Kind: domain.KindUnauthenticated, Op: "parse token", Err: errors.Join(domain.ErrUnauthenticated, err)}
	}
	role, err := domain.ParseRole(claims.Role)
	if err != nil || claims.Subject == "" {
		return domain.Principal{}, &domain.Error{Kind: domain.KindUnauthenticated, Op: "parse token", Msg: "malformed claims", Err: domain.ErrUnauthenticated}
	}
	return domain.Principal{UserID: claims.Subject, Role: role, NationalID: claims.NationalID}, nil
}
