package links

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid share link token")

// CardClaims are the claims embedded in a signed card share link.
type CardClaims struct {
	CardSlug string `json:"card_slug"`
	OrderID  string `json:"order_id"`
	jwt.RegisteredClaims
}

// Signer issues and verifies signed share links for purchased cards. The
// confirmation email embeds the link so only the buyer (and whoever they
// forward it to) can open the card page.
type Signer struct {
	secret    []byte
	webAppURI string
}

// New creates a Signer.
func New(secret, webAppURI string) *Signer {
	return &Signer{
		secret:    []byte(secret),
		webAppURI: webAppURI,
	}
}

// CardLink returns the full shareable URL for a purchased card.
func (s *Signer) CardLink(orderID uuid.UUID, cardSlug string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := CardClaims{
		CardSlug: cardSlug,
		OrderID:  orderID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign card link token: %w", err)
	}

	return fmt.Sprintf("%s/c/%s?t=%s", s.webAppURI, cardSlug, signed), nil
}

// ParseCardToken verifies a share link token and returns its claims.
func (s *Signer) ParseCardToken(tokenString string) (CardClaims, error) {
	var claims CardClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return CardClaims{}, ErrInvalidToken
	}
	return claims, nil
}
