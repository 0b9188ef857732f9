package middleware

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

type CustomClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Verifier validates the bearer tokens issued by the auth service. HS256
// with a shared secret or RS256 with the auth service's public key,
// selected by config.
type Verifier struct {
	alg    string
	secret []byte
	pubKey *rsa.PublicKey
}

func NewVerifier(alg, secret, pubKeyPath string) (*Verifier, error) {
	v := &Verifier{alg: alg}
	switch alg {
	case "HS256":
		if secret == "" {
			return nil, errors.New("jwt secret required for HS256")
		}
		v.secret = []byte(secret)
	case "RS256":
		key, err := loadRSAPublicKey(pubKeyPath)
		if err != nil {
			return nil, err
		}
		v.pubKey = key
	default:
		return nil, fmt.Errorf("unsupported jwt alg %q", alg)
	}
	return v, nil
}

func (v *Verifier) Verify(tokenStr string) (*CustomClaims, error) {
	claims := &CustomClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != v.alg {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		if v.alg == "HS256" {
			return v.secret, nil
		}
		return v.pubKey, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Handler returns the fiber auth middleware. The token comes from the
// Authorization header, or from the "token" query param for the websocket
// upgrade where browsers cannot set headers.
func (v *Verifier) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
		if tokenStr == "" {
			tokenStr = c.Query("token")
		}
		if tokenStr == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		}
		claims, err := v.Verify(tokenStr)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		}
		c.Locals("userID", claims.UserID)
		return c.Next()
	}
}

// SignJWT issues a token; used by tests and local tooling, the auth
// service is the real issuer.
func SignJWT(userID, secret string, expiresIn time.Duration) (string, error) {
	claims := CustomClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func loadRSAPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("invalid public key: PEM decode failed")
	}
	if pub, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		if rsaPub, ok := pub.(*rsa.PublicKey); ok {
			return rsaPub, nil
		}
	}
	rsaPub, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return rsaPub, nil
}
