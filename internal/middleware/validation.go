package middleware

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	maxContentBytes = 100000
	maxIDLength     = 128
)

// ValidateMessageContent validates message content.
func ValidateMessageContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.New("content cannot be empty")
	}
	if len(content) > maxContentBytes {
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateID validates a conversation, message or job ID. IDs come from
// platform connectors, so any short token of letters, digits and ._:-
// is accepted.
func ValidateID(id string) error {
	if id == "" {
		return errors.New("id cannot be empty")
	}
	if len(id) > maxIDLength {
		return errors.New("id exceeds maximum length")
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return errors.New("invalid id format")
		}
	}
	return nil
}

// ValidateLanguage validates an optional BCP 47-style language tag.
func ValidateLanguage(tag string) error {
	if len(tag) > 35 {
		return errors.New("language tag exceeds maximum length")
	}
	for _, r := range tag {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-') {
			return errors.New("invalid language tag")
		}
	}
	return nil
}
