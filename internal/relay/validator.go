package relay

import (
	"fmt"
	"unicode/utf8"
)

const (
	// MaxMessageBytes caps the raw byte size of a relayed message.
	MaxMessageBytes = 4096
	// MaxTextChars caps the character count of a relayed message.
	MaxTextChars = 2000
)

// ValidateMessage checks that chat text meets the hygiene limits.
func ValidateMessage(text string) error {
	if len(text) == 0 {
		return fmt.Errorf("message is empty")
	}
	if len(text) > MaxMessageBytes {
		return fmt.Errorf("message exceeds %d byte limit", MaxMessageBytes)
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return fmt.Errorf("message exceeds %d character limit", MaxTextChars)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("message contains invalid UTF-8")
	}
	return nil
}
