// Package dbstrings provides the string conversions used for table and
// column naming: case conversion and simple English pluralization.
package dbstrings

import (
	"strings"
	"unicode"
)

// ToPascalCase converts a snake_case string to PascalCase.
// Examples:
//
//	"user_id" -> "UserId"
//	"created_at" -> "CreatedAt"
func ToPascalCase(s string) string {
	parts := strings.Split(s, "_")
	for i, part := range parts {
		if len(part) > 0 {
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, "")
}

// ToSnakeCase converts a PascalCase or camelCase string to snake_case.
// Examples:
//
//	"SaleItem" -> "sale_item"
//	"createdAt" -> "created_at"
func ToSnakeCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				result.WriteRune('_')
			}
			result.WriteRune(unicode.ToLower(r))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

var irregularPlurals = map[string]string{
	"child":  "children",
	"person": "people",
	"man":    "men",
	"woman":  "women",
	"index":  "indices",
	"status": "statuses",
}

var irregularSingulars = func() map[string]string {
	m := make(map[string]string, len(irregularPlurals))
	for s, p := range irregularPlurals {
		m[p] = s
	}
	return m
}()

// ToPlural converts a singular English word to its plural form. It
// handles the common regular patterns plus a short irregular list;
// declarations needing anything fancier should name their table
// explicitly.
func ToPlural(s string) string {
	if p, ok := irregularPlurals[strings.ToLower(s)]; ok {
		return p
	}
	switch {
	case strings.HasSuffix(s, "y") && len(s) > 1 && !isVowel(s[len(s)-2]):
		return s[:len(s)-1] + "ies"
	case strings.HasSuffix(s, "s"), strings.HasSuffix(s, "x"),
		strings.HasSuffix(s, "z"), strings.HasSuffix(s, "ch"), strings.HasSuffix(s, "sh"):
		return s + "es"
	default:
		return s + "s"
	}
}

// ToSingular converts a plural English word back to its singular form.
func ToSingular(s string) string {
	if sg, ok := irregularSingulars[strings.ToLower(s)]; ok {
		return sg
	}
	switch {
	case strings.HasSuffix(s, "ies") && len(s) > 3:
		return s[:len(s)-3] + "y"
	case strings.HasSuffix(s, "ses"), strings.HasSuffix(s, "xes"),
		strings.HasSuffix(s, "zes"), strings.HasSuffix(s, "ches"), strings.HasSuffix(s, "shes"):
		return s[:len(s)-2]
	case strings.HasSuffix(s, "s") && len(s) > 1:
		return s[:len(s)-1]
	default:
		return s
	}
}

func isVowel(b byte) bool {
	switch b {
	case 'a', 'e', 'i', 'o', 'u', 'A', 'E', 'I', 'O', 'U':
		return true
	}
	return false
}
