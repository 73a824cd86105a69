package token

import (
	stderrors "errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"Attendly/pkg/errors"
)

const identityKind = "identity"

// IdentityClaims 二维码中的身份载荷：指向一条报名，而不是一次性门票
type IdentityClaims struct {
	RegistrationID int64  `json:"rid"`
	EventID        int64  `json:"eid"`
	Kind           string `json:"knd"`
	jwtv5.RegisteredClaims
}

// IdentityIssuer 签发与解析身份凭证
type IdentityIssuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewIdentityIssuer ttl <= 0 表示凭证不过期
func NewIdentityIssuer(secret string, ttl time.Duration, issuer string) *IdentityIssuer {
	return &IdentityIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: issuer,
		now:    time.Now,
	}
}

// WithClock 替换时钟，测试用
func (i *IdentityIssuer) WithClock(now func() time.Time) *IdentityIssuer {
	cp := *i
	cp.now = now
	return &cp
}

func (i *IdentityIssuer) Issue(registrationID, eventID int64) (string, *IdentityClaims, error) {
	now := i.now()
	claims := &IdentityClaims{
		RegistrationID: registrationID,
		EventID:        eventID,
		Kind:           identityKind,
		RegisteredClaims: jwtv5.RegisteredClaims{
			ID:       uuid.NewString(),
			Issuer:   i.issuer,
			IssuedAt: jwtv5.NewNumericDate(now),
		},
	}
	if i.ttl > 0 {
		claims.ExpiresAt = jwtv5.NewNumericDate(now.Add(i.ttl))
	}

	signed, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign identity token: %w", err)
	}
	return signed, claims, nil
}

// Parse 校验签名与有效期；同一个凭证可以反复解析
func (i *IdentityIssuer) Parse(tokenString string) (*IdentityClaims, error) {
	if tokenString == "" {
		return nil, errors.Wrap(errors.IdentityTokenInvalid, "empty token")
	}

	claims := &IdentityClaims{}
	_, err := jwtv5.ParseWithClaims(tokenString, claims,
		func(t *jwtv5.Token) (interface{}, error) {
			return i.secret, nil
		},
		jwtv5.WithValidMethods([]string{jwtv5.SigningMethodHS256.Alg()}),
		jwtv5.WithTimeFunc(i.now),
		jwtv5.WithIssuedAt(),
	)
	if err != nil {
		if stderrors.Is(err, jwtv5.ErrTokenExpired) {
			return nil, errors.Wrap(errors.IdentityTokenExpired, "expired at %s", expiry(claims))
		}
		return nil, errors.Wrap(errors.IdentityTokenInvalid, "%v", err)
	}

	if claims.Kind != identityKind {
		return nil, errors.Wrap(errors.IdentityTokenInvalid, "unexpected token kind %q", claims.Kind)
	}
	if claims.RegistrationID <= 0 || claims.EventID <= 0 {
		return nil, errors.Wrap(errors.IdentityTokenInvalid, "missing registration or event")
	}

	return claims, nil
}

func expiry(c *IdentityClaims) string {
	if c == nil || c.ExpiresAt == nil {
		return "unknown"
	}
	return c.ExpiresAt.Time.Format(time.RFC3339)
}
