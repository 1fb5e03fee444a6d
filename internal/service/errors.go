package service

import "fmt"

// MissingParametersMessage is returned when latitude, longitude or date is absent.
const MissingParametersMessage = "Missing required parameters: latitude, longitude, date"

// ValidationError is a caller fault. Field is empty for the missing-parameters case.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ConfigurationError is a deployment fault, such as a missing provider API key.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

// Store operations reported in CacheError.Op.
const (
	OpLookup = "lookup"
	OpInsert = "insert"
)

// CacheError wraps a store failure. The gate logs and swallows these.
type CacheError struct {
	Op  string
	Key string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s failed for %s: %v", e.Op, e.Key, e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}
