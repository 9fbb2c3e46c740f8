package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrCookieInvalid indicates the allow-list cookie failed signature or claim
// validation. Callers treat it as an empty allow-list.
var ErrCookieInvalid = errors.New("journey cookie invalid")

// JourneyCookieCodec signs and verifies the browser cookie carrying the
// allow-list of journey ids a browser has legitimately created. A journey id
// supplied via query parameter is only honoured by the durable store when it
// appears in this list.
type JourneyCookieCodec struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewJourneyCookieCodec constructs a codec for the provided signing key.
func NewJourneyCookieCodec(signingKey string, ttl time.Duration) (*JourneyCookieCodec, error) {
	if signingKey == "" {
		return nil, errors.New("cookie signing key is required")
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &JourneyCookieCodec{
		key: []byte(signingKey),
		ttl: ttl,
		now: time.Now,
	}, nil
}

// WithClock overrides the internal clock, used in tests.
func (c *JourneyCookieCodec) WithClock(clock func() time.Time) {
	if clock != nil {
		c.now = clock
	}
}

type allowListClaims struct {
	Journeys []string `json:"journeys"`
	jwt.RegisteredClaims
}

// Encode signs the allow-list of journey ids into a compact cookie value.
func (c *JourneyCookieCodec) Encode(ids []uuid.UUID) (string, error) {
	now := c.now().UTC()

	journeys := make([]string, 0, len(ids))
	for _, id := range ids {
		journeys = append(journeys, id.String())
	}

	claims := allowListClaims{
		Journeys: journeys,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign journey cookie: %w", err)
	}
	return signed, nil
}

// Decode verifies the cookie value and returns the allow-listed journey ids.
func (c *JourneyCookieCodec) Decode(raw string) ([]uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}

	var claims allowListClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.key, nil
	}, jwt.WithTimeFunc(c.now))
	if err != nil || !token.Valid {
		return nil, ErrCookieInvalid
	}

	ids := make([]uuid.UUID, 0, len(claims.Journeys))
	for _, raw := range claims.Journeys {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, ErrCookieInvalid
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// TTL exposes the cookie lifetime for Set-Cookie max-age.
func (c *JourneyCookieCodec) TTL() time.Duration {
	return c.ttl
}
