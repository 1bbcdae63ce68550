package cmd

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	encode := func(v any) string {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		return base64.RawURLEncoding.EncodeToString(data)
	}
	return encode(map[string]string{"alg": "none", "typ": "JWT"}) + "." + encode(claims) + "."
}

func TestSubjectFromToken(t *testing.T) {
	t.Run("email preferred", func(t *testing.T) {
		token := makeToken(t, map[string]any{
			"email":              "user@example.org",
			"preferred_username": "user",
			"sub":                "1234",
		})
		assert.Equal(t, "user@example.org", subjectFromToken(token))
	})

	t.Run("username fallback", func(t *testing.T) {
		token := makeToken(t, map[string]any{"preferred_username": "user", "sub": "1234"})
		assert.Equal(t, "user", subjectFromToken(token))
	})

	t.Run("sub fallback", func(t *testing.T) {
		token := makeToken(t, map[string]any{"sub": "1234"})
		assert.Equal(t, "1234", subjectFromToken(token))
	})

	t.Run("opaque token", func(t *testing.T) {
		assert.Empty(t, subjectFromToken("not-a-jwt"))
		assert.Empty(t, subjectFromToken(""))
	})

	t.Run("no usable claim", func(t *testing.T) {
		token := makeToken(t, map[string]any{"iss": "https://issuer.example.org"})
		assert.Empty(t, subjectFromToken(token))
	})
}
