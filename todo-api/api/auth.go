package api

import (
	"errors"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

const (
	// DefaultJWKSCacheTTL bounds how long a resolved signing key is reused per kid.
	DefaultJWKSCacheTTL = 15 * time.Minute
	clockSkew           = time.Minute
)

var (
	errInvalidClaims  = errors.New("invalid claims")
	errTokenExpired   = errors.New("token expired")
	errTokenNotValid  = errors.New("token not valid yet")
	errTokenIssuedAt  = errors.New("token used before issued")
	errInvalidAud     = errors.New("invalid audience")
	errInvalidIssuer  = errors.New("invalid issuer")
	errMissingSubject = errors.New("missing sub")
)

// Auth validates bearer tokens issued by the identity provider. In local mode tokens
// are HS256-signed with a shared secret instead of verified against the JWKS.
type Auth struct {
	JWKS        *keyfunc.JWKS
	Audience    string
	Issuer      string
	LocalSecret []byte

	parser      *jwt.Parser
	keyCache    sync.Map
	keyCacheTTL time.Duration
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// NewAuth creates an Auth verifying RS256 tokens against jwks.
func NewAuth(jwks *keyfunc.JWKS, audience, issuer string, keyCacheTTL time.Duration) *Auth {
	return &Auth{
		JWKS:        jwks,
		Audience:    audience,
		Issuer:      issuer,
		parser:      jwt.NewParser(jwt.WithValidMethods([]string{"RS256"})),
		keyCacheTTL: keyCacheTTL,
	}
}

// NewLocalAuth creates an Auth accepting HS256 tokens signed with secret.
func NewLocalAuth(secret []byte, audience, issuer string) *Auth {
	if len(secret) == 0 {
		panic("api.NewLocalAuth: secret is empty")
	}
	return &Auth{
		Audience:    audience,
		Issuer:      issuer,
		LocalSecret: secret,
		parser:      jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
	}
}

// IdentityFromAuthHeader resolves the caller from an Authorization header value.
func (a *Auth) IdentityFromAuthHeader(h string) (Identity, error) {
	token, err := bearerToken(h)
	if err != nil {
		return Identity{}, err
	}
	return a.IdentityFromToken(token)
}

// IdentityFromToken verifies a raw JWT and returns the identity it carries.
func (a *Auth) IdentityFromToken(tokenStr string) (Identity, error) {
	if tokenStr == "" {
		return Identity{}, errBadAuthorization
	}

	parsed, err := a.parser.Parse(tokenStr, a.keyFor)
	if err != nil {
		return Identity{}, err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errInvalidClaims
	}

	now := time.Now().Add(clockSkew).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return Identity{}, errTokenExpired
	}
	if !claims.VerifyNotBefore(now, false) {
		return Identity{}, errTokenNotValid
	}
	if !claims.VerifyIssuedAt(now, false) {
		return Identity{}, errTokenIssuedAt
	}
	if a.Audience != "" && !claims.VerifyAudience(a.Audience, false) {
		return Identity{}, errInvalidAud
	}
	if a.Issuer != "" && !claims.VerifyIssuer(a.Issuer, false) {
		return Identity{}, errInvalidIssuer
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Identity{}, errMissingSubject
	}
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	return Identity{UserID: sub, Email: email, Name: name}, nil
}

func (a *Auth) keyFor(t *jwt.Token) (any, error) {
	if a.LocalSecret != nil {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return a.LocalSecret, nil
	}
	if a.JWKS == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := t.Header["kid"].(string)
	if kid != "" && a.keyCacheTTL > 0 {
		if cached, ok := a.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if time.Now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			a.keyCache.Delete(kid)
		}
	}

	key, err := a.JWKS.Keyfunc(t)
	if err != nil {
		return nil, err
	}

	if kid != "" && a.keyCacheTTL > 0 {
		a.keyCache.Store(kid, cachedKey{key: key, expiresAt: time.Now().Add(a.keyCacheTTL)})
	}
	return key, nil
}
