package messaging

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// WhatsAppPrefix is the channel prefix Twilio puts in front of WhatsApp addresses.
const WhatsAppPrefix = "whatsapp:"

// nonDigitRegex matches everything that is not a digit.
var nonDigitRegex = regexp.MustCompile(`\D`)

// CanonicalizePhone strips the channel prefix and surrounding whitespace from a sender
// address. The result is the customer key used by the store.
func CanonicalizePhone(raw string) (string, error) {
	phone := strings.TrimSpace(raw)
	if len(phone) >= len(WhatsAppPrefix) && strings.EqualFold(phone[:len(WhatsAppPrefix)], WhatsAppPrefix) {
		phone = strings.TrimSpace(phone[len(WhatsAppPrefix):])
	}
	if phone == "" {
		return "", ErrEmptyRecipient
	}
	if phone != raw {
		slog.Debug("messaging.CanonicalizePhone: canonicalized", "original", raw, "canonical", phone)
	}
	return phone, nil
}

// Digits returns only the digits of phone, as required for WhatsApp JIDs.
// At least 6 digits must remain.
func Digits(phone string) (string, error) {
	digits := nonDigitRegex.ReplaceAllString(phone, "")
	if digits == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in %q", phone)
	}
	if len(digits) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", digits)
	}
	return digits, nil
}
