package core

import (
	"os"
	"strconv"
	"strings"
)

// envOverlay applies environment overrides onto existing values. Blank
// variables leave the value alone. The first value that does not parse is
// kept as a *ConfigError and later calls become no-ops.
type envOverlay struct {
	lookup func(string) string
	err    error
}

func newEnvOverlay() *envOverlay {
	return &envOverlay{lookup: os.Getenv}
}

func (e *envOverlay) raw(key string) (string, bool) {
	if e.err != nil {
		return "", false
	}
	v := strings.TrimSpace(e.lookup(key))
	return v, v != ""
}

func (e *envOverlay) setString(key string, dst *string) {
	if v, ok := e.raw(key); ok {
		*dst = v
	}
}

// setLower is setString with the value lowercased.
func (e *envOverlay) setLower(key string, dst *string) {
	if v, ok := e.raw(key); ok {
		*dst = strings.ToLower(v)
	}
}

func (e *envOverlay) setInt(key string, dst *int) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.err = ErrInvalidValue(key, v, "must be an integer")
		return
	}
	*dst = n
}

// setBool accepts true/1/yes/on and false/0/no/off, case-insensitive.
func (e *envOverlay) setBool(key string, dst *bool) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	b, valid := parseBool(v)
	if !valid {
		e.err = ErrInvalidValue(key, v, "must be true or false")
		return
	}
	*dst = b
}

// Err returns the first parse failure.
func (e *envOverlay) Err() error {
	return e.err
}

func parseBool(s string) (value, ok bool) {
	switch strings.ToLower(s) {
	case "true", "1", "yes", "on":
		return true, true
	case "false", "0", "no", "off":
		return false, true
	}
	return false, false
}
