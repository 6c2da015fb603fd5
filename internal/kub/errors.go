package kub

import "fmt"

// AuthError represents an authentication failure. It is terminal for the
// refresh cycle: the credentials are wrong and retrying will not help.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return e.Message
}

// UnexpectedServiceError is returned when the provider reports a
// service-point type code outside the known set. It halts the cycle rather
// than silently dropping the unknown service.
type UnexpectedServiceError struct {
	TypeCode       string
	ServicePointID string
}

func (e *UnexpectedServiceError) Error() string {
	return fmt.Sprintf("unexpected service-point type %q (id %s)", e.TypeCode, e.ServicePointID)
}
