// Package validation holds the stateless rules applied to account and content input.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// UsernameMaxLength is the storage limit of a username.
const UsernameMaxLength = 30

var usernameRegex = regexp.MustCompile(`^[\p{L}\p{N}_.-]+$`)

var (
	ErrUsernameRequired   = errors.New("this field is required")
	ErrUsernameCharacters = errors.New("username may contain only letters, digits and ./_- characters")
	ErrUsernameReserved   = errors.New("this username is reserved and cannot be registered")
	ErrUsernameConfusable = errors.New("this username cannot be registered")
	ErrUsernameRestricted = errors.New("that username is not allowed")
	ErrUsernameSimilar    = errors.New("that username is too similar to a username belonging to an existing user")
)

// CheckUsername applies every context-free username rule and returns all violations.
func CheckUsername(username string, minLength int, reserved *ReservedNames) []error {
	if username == "" {
		return []error{ErrUsernameRequired}
	}

	var errs []error
	n := utf8.RuneCountInString(username)
	if n < minLength {
		errs = append(errs, fmt.Errorf("ensure this value has at least %d characters (it has %d)", minLength, n))
	}
	if n > UsernameMaxLength {
		errs = append(errs, fmt.Errorf("ensure this value has at most %d characters (it has %d)", UsernameMaxLength, n))
	}
	if !usernameRegex.MatchString(username) {
		errs = append(errs, ErrUsernameCharacters)
	}
	if reserved != nil && reserved.IsReserved(username) {
		errs = append(errs, ErrUsernameReserved)
	}
	if IsDangerous(username) {
		errs = append(errs, ErrUsernameConfusable)
	}
	return errs
}

// ContainsRestricted reports whether value contains any restricted admin name,
// comparing confusable skeletons so look-alike spellings are caught.
func ContainsRestricted(value string, restricted []string) bool {
	skeleton := Skeleton(value)
	for _, name := range restricted {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if strings.Contains(skeleton, Skeleton(name)) {
			return true
		}
	}
	return false
}
