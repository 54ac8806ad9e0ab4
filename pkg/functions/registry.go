// Package functions provides the registry of stateless dynamic functions
// invocable from template placeholders, e.g. {{uuid()}} or {{randomString(8)}}.
package functions

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Function is a pure, stateless generator. It accepts string arguments and
// returns a string. Functions never fail: invalid arguments fall back to the
// documented defaults.
type Function func(args []string) string

// Registry maps function names to implementations.
type Registry struct {
	funcs map[string]Function
}

// NewRegistry creates a registry populated with all built-in functions.
func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[string]Function)}

	r.Register("uuid", func(_ []string) string {
		return uuid.New().String()
	})
	r.Register("randomString", func(args []string) string {
		return randomFrom(alphanumeric, intArg(args, 0, 10))
	})
	r.Register("randomAlpha", func(args []string) string {
		return randomFrom(alphabetic, intArg(args, 0, 10))
	})
	r.Register("randomNumeric", func(args []string) string {
		return randomFrom(numeric, intArg(args, 0, 10))
	})
	r.Register("randomHex", func(args []string) string {
		return randomFrom(hexadecimal, intArg(args, 0, 16))
	})
	r.Register("randomNumber", func(args []string) string {
		minVal := intArg(args, 0, 0)
		maxVal := intArg(args, 1, 1000)

		if maxVal <= minVal {
			maxVal = minVal + 1
		}

		return strconv.Itoa(minVal + rand.IntN(maxVal-minVal))
	})
	r.Register("randomEmail", func(_ []string) string {
		return fmt.Sprintf("%s@example.com", randomFrom(alphabetic, 12))
	})
	r.Register("timestamp", func(_ []string) string {
		return strconv.FormatInt(time.Now().UnixMilli(), 10)
	})
	r.Register("isoTimestamp", func(_ []string) string {
		return time.Now().UTC().Format(time.RFC3339)
	})
	r.Register("date", func(args []string) string {
		offsetDays := intArg(args, 0, 0)
		layout := stringArg(args, 1, "2006-01-02")

		return time.Now().UTC().AddDate(0, 0, offsetDays).Format(layout)
	})
	r.Register("pickOne", func(args []string) string {
		if len(args) == 0 {
			return ""
		}

		return args[rand.IntN(len(args))]
	})

	return r
}

// Register adds or replaces a function under the given name.
func (r *Registry) Register(name string, fn Function) {
	r.funcs[name] = fn
}

// Lookup returns the function registered under name.
func (r *Registry) Lookup(name string) (Function, bool) {
	fn, ok := r.funcs[name]

	return fn, ok
}

// Call invokes the named function. The second return is false when the name
// is unknown, letting callers fall through to scope resolution.
func (r *Registry) Call(name string, args []string) (string, bool) {
	fn, ok := r.funcs[name]
	if !ok {
		return "", false
	}

	return fn(args), true
}

const (
	alphabetic   = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	numeric      = "0123456789"
	alphanumeric = alphabetic + numeric
	hexadecimal  = "0123456789abcdef"
)

func randomFrom(charset string, length int) string {
	if length <= 0 {
		length = 1
	}

	var sb strings.Builder

	sb.Grow(length)

	for range length {
		sb.WriteByte(charset[rand.IntN(len(charset))])
	}

	return sb.String()
}

// intArg parses args[i] as an integer, falling back to def on absence or on
// anything unparsable.
func intArg(args []string, i, def int) int {
	if i >= len(args) {
		return def
	}

	n, err := strconv.Atoi(strings.TrimSpace(args[i]))
	if err != nil {
		return def
	}

	return n
}

func stringArg(args []string, i int, def string) string {
	if i >= len(args) || strings.TrimSpace(args[i]) == "" {
		return def
	}

	return args[i]
}
