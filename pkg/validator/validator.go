package validator

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// User ids come from the external identity provider. They are opaque, but
// must be safe to carry in a URL path segment.
var userIDRegex = regexp.MustCompile(`^[A-Za-z0-9._:@-]{1,128}$`)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var msgs []string
	for _, e := range v {
		msgs = append(msgs, e.Field+": "+e.Message)
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any errors
func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

// Add adds a validation error
func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, ValidationError{Field: field, Message: message})
}

// ValidateUserID validates an identity provider user id
func ValidateUserID(id string) bool {
	return userIDRegex.MatchString(id)
}

// RequireUserID adds an error for field unless id is a valid user id
func (v *ValidationErrors) RequireUserID(field, id string) {
	if id == "" {
		v.Add(field, "is required")
		return
	}
	if !ValidateUserID(id) {
		v.Add(field, "is not a valid user id")
	}
}

// ValidateName validates a display name. Empty means "keep the stored name".
func ValidateName(name string) bool {
	name = strings.TrimSpace(name)
	return utf8.RuneCountInString(name) <= 100
}

// SanitizeString trims whitespace and limits length to maxLen runes
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > maxLen {
		return string([]rune(s)[:maxLen])
	}
	return s
}
