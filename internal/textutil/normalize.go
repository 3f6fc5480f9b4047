package textutil

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName returns name in Unicode NFC form.
func NormalizeName(name string) string {
	return norm.NFC.String(name)
}

// Label turns an identifier such as "link_failed" into "Link Failed".
func Label(value string) string {
	value = strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(value))
	if value == "" {
		return ""
	}
	return cases.Title(language.English).String(strings.ToLower(value))
}
