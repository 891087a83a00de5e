package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	HeaderUserID        = "X-User-ID"
	HeaderUserSignature = "X-User-Signature"

	userKey = "userID"
)

// SignUserID returns the signature clients send alongside their user id.
func SignUserID(secret, userID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(userID))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// validUserSignature verifies the signature of a user id.
func validUserSignature(secret, userID, signature string) bool {
	if secret == "" || userID == "" || signature == "" {
		return false
	}
	expected := SignUserID(secret, userID)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// UserIdentity reads the caller's user id from X-User-ID, or the user query
// parameter for websocket upgrades. When a signing secret is configured the id
// must carry a valid signature (X-User-Signature or sig) or the request is
// rejected. Requests without an id continue anonymously.
func UserIdentity(getSecret func() string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r := c.Request()
			userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
			signature := r.Header.Get(HeaderUserSignature)
			if userID == "" {
				userID = strings.TrimSpace(c.QueryParam("user"))
				signature = c.QueryParam("sig")
			}
			if userID == "" {
				return next(c)
			}
			if secret := getSecret(); secret != "" && !validUserSignature(secret, userID, signature) {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid user signature"})
			}
			c.Set(userKey, userID)
			return next(c)
		}
	}
}

// RequireUser rejects requests that carry no user id.
func RequireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if UserID(c) == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "User id required"})
		}
		return next(c)
	}
}

// UserID returns the authenticated user id, or "" for anonymous requests.
func UserID(c echo.Context) string {
	id, _ := c.Get(userKey).(string)
	return id
}
