package models

import "errors"

// Control plane domain errors.
var (
	ErrEndpointNotFound      = errors.New("endpoint not found")
	ErrDuplicateEndpoint     = errors.New("endpoint already exists")
	ErrEndpointModelNotFound = errors.New("endpoint model not found")
)
