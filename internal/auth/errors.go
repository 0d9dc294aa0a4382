package auth

import "errors"

var (
	// ErrInvalidCredentials is returned on login when the username or
	// password is wrong. Callers surface it verbatim and never say which.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrUnauthorized covers missing/invalid/expired tokens and sessions
	// that no longer resolve to a user.
	ErrUnauthorized = errors.New("auth: unauthorized")

	// ErrInvalidToken indicates a token failed signature, structure, or
	// expiry validation.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrSigning indicates token issuance failed, usually an unusable secret.
	ErrSigning = errors.New("auth: token signing failed")
)
