package campaign

import "strings"

// BusinessNamePlaceholder is substituted with the configured business name.
const BusinessNamePlaceholder = "{business_name}"

// Render fills the {name} and {business_name} placeholders of a tier message.
// Any other text, braces included, is left as is.
func Render(template, name, businessName string) string {
	return strings.NewReplacer(
		"{name}", name,
		BusinessNamePlaceholder, businessName,
	).Replace(template)
}
