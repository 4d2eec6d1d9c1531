// Package middleware holds the echo middleware shared by every route group.
package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seatlock-engine/internal/model"
)

// Context keys set by JWTAuth.
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

// JWTAuth validates an HS256 Bearer token issued by the identity service and
// stores its subject (as uint64) and role claim in the request context.
// Tokens without a role claim are treated as CUSTOMER.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			claims := jwt.MapClaims{}
			tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			uid, err := subject(claims)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
			}
			role, _ := claims["role"].(string)
			if role == "" {
				role = model.RoleCustomer
			}
			c.Set(ContextUserID, uid)
			c.Set(ContextRole, strings.ToUpper(role))
			return next(c)
		}
	}
}

// subject reads "sub", accepting both string and numeric encodings.
func subject(claims jwt.MapClaims) (uint64, error) {
	switch v := claims["sub"].(type) {
	case string:
		return strconv.ParseUint(v, 10, 64)
	case float64:
		if v > 0 && v == float64(uint64(v)) {
			return uint64(v), nil
		}
	}
	return 0, errors.New("missing or malformed sub claim")
}

// Actor returns the authenticated caller. ok is false outside JWTAuth.
func Actor(c echo.Context) (model.Actor, bool) {
	uid, ok := c.Get(ContextUserID).(uint64)
	if !ok || uid == 0 {
		return model.Actor{}, false
	}
	role, _ := c.Get(ContextRole).(string)
	return model.Actor{UserID: uid, Role: role}, true
}
