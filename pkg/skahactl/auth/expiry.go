package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoExpiry is returned when neither decodable segment of a token carries
// an exp claim.
var ErrNoExpiry = errors.New("token carries no exp claim")

// ExpiryFromToken extracts the exp claim from a compact three-segment
// bearer token without verifying its signature. Both the header and payload
// segments are inspected, in token order, and the first top-level exp wins.
func ExpiryFromToken(token string) (float64, error) {
	segments := strings.Split(token, ".")
	if len(segments) != 3 {
		return 0, fmt.Errorf("malformed token: expected 3 segments, got %d", len(segments))
	}
	for _, segment := range segments[:2] {
		decoded, err := decodeSegment(segment)
		if err != nil {
			return 0, fmt.Errorf("failed to decode token segment: %w", err)
		}
		var claims map[string]any
		if err := json.Unmarshal(decoded, &claims); err != nil {
			return 0, fmt.Errorf("failed to parse token segment: %w", err)
		}
		if exp, ok := claims["exp"]; ok {
			value, ok := exp.(float64)
			if !ok {
				return 0, fmt.Errorf("exp claim is not numeric: %v", exp)
			}
			return value, nil
		}
	}
	return 0, ErrNoExpiry
}

func decodeSegment(segment string) ([]byte, error) {
	if padding := len(segment) % 4; padding != 0 {
		segment += strings.Repeat("=", 4-padding)
	}
	return base64.URLEncoding.DecodeString(segment)
}
