package config

import "errors"

// ErrNoSecret is returned when the server is started without a JWT secret.
var ErrNoSecret = errors.New("auth.jwt_secret is not set")
