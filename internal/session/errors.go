package session

import "errors"

// ErrNotFound is returned when a session does not exist or has expired.
// Expiry is deliberately indistinguishable from absence: callers that
// want transparent recreation use FindOrCreate.
var ErrNotFound = errors.New("session not found")
