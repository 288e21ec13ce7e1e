package document

import (
	"errors"
	"fmt"
)

// ErrConfiguration matches every *ConfigError.
var ErrConfiguration = errors.New("configuration error")

// ConfigError locates an invalid value in a document.
type ConfigError struct {
	Path string
	Msg  string
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Msg)
}

func (e *ConfigError) Unwrap() error {
	return ErrConfiguration
}

func configErr(path, format string, args ...any) error {
	return &ConfigError{Path: path, Msg: fmt.Sprintf(format, args...)}
}
