// Package horosafe holds the input checks shared by the CLI and the server:
// secret length, identifiers, npm package specs and paths that must stay
// inside a base directory.
package horosafe

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// MinSecretLen is the minimum acceptable length for the session signing
// secret (JWT HS256). 32 bytes = 256 bits of entropy.
const MinSecretLen = 32

// ErrSecretTooShort is returned when a secret does not meet MinSecretLen.
var ErrSecretTooShort = fmt.Errorf("horosafe: secret must be at least %d bytes", MinSecretLen)

// ErrPathTraversal is returned when a user-supplied path escapes its base.
var ErrPathTraversal = errors.New("horosafe: path traversal detected")

// ErrInvalidPackage is returned for npm package specs the CLI refuses to
// pass to npm.
var ErrInvalidPackage = errors.New("horosafe: invalid package name")

// ValidateSecret checks that secret is at least MinSecretLen bytes.
func ValidateSecret(secret []byte) error {
	if len(secret) < MinSecretLen {
		return ErrSecretTooShort
	}
	return nil
}

// SafePath validates that joining base and userInput does not escape base.
// Returns the cleaned path or ErrPathTraversal.
func SafePath(base, userInput string) (string, error) {
	if strings.Contains(userInput, "..") {
		return "", ErrPathTraversal
	}
	cleaned := filepath.Join(base, filepath.Clean("/"+userInput))
	if !strings.HasPrefix(cleaned, filepath.Clean(base)+string(filepath.Separator)) &&
		cleaned != filepath.Clean(base) {
		return "", ErrPathTraversal
	}
	return cleaned, nil
}

// ValidateIdentifier rejects identifiers that contain characters unsuitable
// for file names or URL path segments. Allows alphanumeric, underscore,
// hyphen, and dot, and refuses a leading dot.
func ValidateIdentifier(s string) error {
	if s == "" {
		return fmt.Errorf("horosafe: identifier must not be empty")
	}
	if len(s) > 214 {
		return fmt.Errorf("horosafe: identifier too long (max 214)")
	}
	if s[0] == '.' {
		return fmt.Errorf("horosafe: identifier must not start with %q", '.')
	}
	for _, r := range s {
		if !isIdentChar(r) {
			return fmt.Errorf("horosafe: invalid character %q in identifier", r)
		}
	}
	return nil
}

// ValidatePackage checks an npm install spec: name, @scope/name, either
// optionally followed by @version. Anything that could be read by npm as a
// flag, a path or a URL is rejected.
func ValidatePackage(spec string) error {
	name := spec
	scoped := strings.HasPrefix(name, "@")
	if scoped {
		name = name[1:]
	}
	if i := strings.LastIndex(name, "@"); i > 0 {
		version := name[i+1:]
		name = name[:i]
		if version == "" || strings.ContainsAny(version, "/\\ ") {
			return fmt.Errorf("%w: bad version in %q", ErrInvalidPackage, spec)
		}
	}
	if scoped {
		scope, rest, ok := strings.Cut(name, "/")
		if !ok || ValidateIdentifier(scope) != nil || ValidateIdentifier(rest) != nil {
			return fmt.Errorf("%w: %q", ErrInvalidPackage, spec)
		}
		return nil
	}
	if strings.HasPrefix(name, "-") || ValidateIdentifier(name) != nil {
		return fmt.Errorf("%w: %q", ErrInvalidPackage, spec)
	}
	return nil
}

func isIdentChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.'
}
