package bot

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// nameTriggers introduce a self-reported first name, checked in order.
var nameTriggers = []string{"meu nome é ", "me chamo ", "sou o ", "sou a "}

var nameCaser = cases.Title(language.BrazilianPortuguese)

// ExtractName returns the first word following a self-introduction phrase, with
// surrounding punctuation trimmed and capitalized. ok is false when no phrase matches.
func ExtractName(message string) (name string, ok bool) {
	lowered := strings.Map(unicode.ToLower, message)
	runes := []rune(message)

	for _, trigger := range nameTriggers {
		idx := strings.Index(lowered, trigger)
		if idx < 0 {
			continue
		}
		// strings.Map keeps one rune per rune, so rune offsets line up with message.
		start := utf8.RuneCountInString(lowered[:idx]) + utf8.RuneCountInString(trigger)
		words := strings.Fields(string(runes[start:]))
		if len(words) == 0 {
			return "", false
		}
		word := strings.Trim(words[0], ".,!?")
		if word == "" {
			return "", false
		}
		return nameCaser.String(word), true
	}
	return "", false
}
