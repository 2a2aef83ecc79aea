package types

import (
	"fmt"
	"unicode/utf8"
)

// Byte limits for the free-text fields carried by a stream.
const (
	MaxNameLen        = 64
	MaxDescriptionLen = 128
	MaxCategoryLen    = 32
	MaxExternalIDLen  = 32
)

// CheckText rejects text longer than limit bytes or that is not valid UTF-8.
// Text is never truncated.
func CheckText(field, value string, limit int) error {
	if len(value) > limit {
		return ValidationError{
			Field:   field,
			Message: fmt.Sprintf("length %d exceeds maximum of %d bytes", len(value), limit),
		}
	}
	if !utf8.ValidString(value) {
		return ValidationError{Field: field, Message: "must be valid UTF-8"}
	}
	return nil
}
