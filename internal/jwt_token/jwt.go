// Package jwttoken seals persisted sessions as HS256 JWTs so that state read
// back from a shared store can be checked for tampering before it is trusted.
package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"zkbadge/internal/auth/models"
	"zkbadge/pkg/domain"
	dErrors "zkbadge/pkg/domain-errors"
)

// SessionClaims is the sealed form of a models.PersistedSession. Key material
// never appears here.
type SessionClaims struct {
	SessionID string         `json:"sid"`
	Issuer    string         `json:"idp"`
	Email     string         `json:"email"`
	Name      string         `json:"name,omitempty"`
	Address   domain.Address `json:"addr"`
	IsAdmin   bool           `json:"adm"`
	Device    string         `json:"dev,omitempty"`
	jwt.RegisteredClaims
}

// JWTService seals and opens persisted sessions.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewJWTService(signingKey string, issuer string, audience string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

func (s *JWTService) Seal(p *models.PersistedSession) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		SessionID: p.SessionID.String(),
		Issuer:    p.Identity.Issuer,
		Email:     p.Identity.Email,
		Name:      p.Identity.Name,
		Address:   p.Identity.Address,
		IsAdmin:   p.IsAdmin,
		Device:    p.Device,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Identity.SubjectID,
			ExpiresAt: jwt.NewNumericDate(p.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(p.IssuedAt),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        p.SessionID.String(),
		},
	})
	return token.SignedString(s.signingKey)
}

// Open verifies the signature, audience and expiry at now and returns the
// persisted session. Anything structurally wrong is reported as unauthorized.
func (s *JWTService) Open(tokenString string, now time.Time) (*models.PersistedSession, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "session has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid session")
	}
	claims, ok := parsed.Claims.(*SessionClaims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid session claims")
	}

	sessionID, err := domain.ParseSessionID(claims.SessionID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid session id")
	}
	if claims.Subject == "" || claims.Email == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "incomplete session identity")
	}
	if _, err := domain.ParseAddress(string(claims.Address)); err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid session address")
	}

	p := &models.PersistedSession{
		SessionID: sessionID,
		Identity: models.Identity{
			SubjectID: claims.Subject,
			Issuer:    claims.Issuer,
			Email:     claims.Email,
			Name:      claims.Name,
			Address:   claims.Address,
		},
		IsAdmin:   claims.IsAdmin,
		Device:    claims.Device,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		p.IssuedAt = claims.IssuedAt.Time
	}
	return p, nil
}
