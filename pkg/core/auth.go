package core

import (
	"crypto/subtle"
	"strings"
)

// MinTokenLength is the shortest accepted bearer token
const MinTokenLength = 16

var weakTokens = []string{
	"password", "secret", "token", "admin", "test", "default",
	"12345", "qwerty",
}

// ValidateAuthToken rejects empty, short and obviously guessable tokens.
func ValidateAuthToken(token string) error {
	if token == "" {
		return NewError(ErrInvalidParameter, "authentication token cannot be empty").
			WithGuidance("Provide a randomly generated token or disable authentication.")
	}
	if len(token) < MinTokenLength {
		return NewError(ErrInvalidParameter, "authentication token is too short").
			WithGuidance("Use a token with at least 16 characters.")
	}
	lower := strings.ToLower(token)
	for _, weak := range weakTokens {
		if strings.Contains(lower, weak) {
			return NewError(ErrInvalidParameter, "authentication token appears to be weak").
				WithGuidance("Use a randomly generated token, e.g. openssl rand -hex 32.")
		}
	}
	return nil
}

// AuthenticateBearer checks an Authorization header against expected in
// constant time. The returned error describes why the header was refused.
func AuthenticateBearer(authHeader, expected string) *ToolError {
	if authHeader == "" {
		return NewError(ErrUnauthorized, "missing Authorization header")
	}
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return NewError(ErrUnauthorized, "invalid Authorization header format").
			WithGuidance("Send Authorization: Bearer <token>.")
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
		return NewError(ErrUnauthorized, "invalid bearer token")
	}
	return nil
}
