package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rmaselli/smartFleet-app-sub002/internal/domain"
)

type Claims struct {
	OperatorID string `json:"operator_id"`
	TenantID   string `json:"tenant_id"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// Codec issues and verifies HS256 session tokens.
type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewCodec(secret, issuer string) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token secret is required")
	}
	return &Codec{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

func (c *Codec) Issue(claims domain.TokenClaims) (string, error) {
	if claims.OperatorID == "" || claims.TenantID == "" {
		return "", fmt.Errorf("%w: token subject and tenant required", domain.ErrInvalidArgument)
	}
	now := c.now().UTC()
	jc := Claims{
		OperatorID: claims.OperatorID,
		TenantID:   claims.TenantID,
		Role:       string(claims.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.OperatorID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt.UTC()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jc)
	return token.SignedString(c.secret)
}

// Parse verifies signature, issuer and expiry. Expired tokens map to
// ErrTokenExpired, everything else to ErrTokenInvalid.
func (c *Codec) Parse(raw string) (domain.TokenClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.TokenClaims{}, domain.ErrTokenExpired
		}
		return domain.TokenClaims{}, domain.ErrTokenInvalid
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.OperatorID == "" || claims.TenantID == "" {
		return domain.TokenClaims{}, domain.ErrTokenInvalid
	}
	role := domain.Role(claims.Role)
	if !role.Valid() {
		return domain.TokenClaims{}, domain.ErrTokenInvalid
	}
	return domain.TokenClaims{
		OperatorID: claims.OperatorID,
		TenantID:   claims.TenantID,
		Role:       role,
		ExpiresAt:  claims.ExpiresAt.Time.UTC(),
	}, nil
}

var _ domain.TokenCodec = (*Codec)(nil)
