package cmd

import (
	"github.com/golang-jwt/jwt/v4"
)

// subjectFromToken extracts a display identity from a bearer token without
// verifying it. Returns "" for opaque or malformed tokens.
func subjectFromToken(token string) string {
	if token == "" {
		return ""
	}
	parser := jwt.Parser{}
	claims := jwt.MapClaims{}
	_, _, err := parser.ParseUnverified(token, claims)
	if err != nil {
		return ""
	}
	if email, ok := claims["email"].(string); ok && email != "" {
		return email
	}
	if username, ok := claims["preferred_username"].(string); ok && username != "" {
		return username
	}
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub
	}
	return ""
}
