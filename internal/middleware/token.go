package middleware

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SignToken issues an HS256 access token in the shape JWTAuth accepts. The
// identity service owns token issuance in production; this is for local
// tooling and tests.
func SignToken(secret string, userID uint64, role string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":  strconv.FormatUint(userID, 10),
		"role": role,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}
