package websocket

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// WithBearerJWT returns a DialOption that signs a short-lived bearer JWT
// with the given HMAC secret and attaches it to the handshake request as
// an "Authorization: Bearer ..." header, the common gate in front of a
// WebSocket endpoint. It rides the handshake as an ordinary request
// header and has no presence in the frame protocol itself.
func WithBearerJWT(secret []byte, claims jwt.MapClaims, ttl time.Duration) DialOption {
	return func(c *clientConfig) error {
		if claims == nil {
			claims = jwt.MapClaims{}
		}
		claims["exp"] = time.Now().Add(ttl).Unix()

		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		signed, err := token.SignedString(secret)
		if err != nil {
			return fmt.Errorf("websocket: failed to sign bearer JWT: %w", err)
		}

		if c.header == nil {
			c.header = make(map[string][]string)
		}
		c.header.Add("Authorization", "Bearer "+signed)
		return nil
	}
}
