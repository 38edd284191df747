package config

import "fmt"

// Error is a configuration document that cannot back a registry. At startup it
// is fatal; on reload the previous registry stays in service.
type Error struct {
	Source string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %v", e.Source, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
