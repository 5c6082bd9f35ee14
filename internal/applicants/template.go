package applicants

import "regexp"

// Values fill a message template.
type Values struct {
	Name      string
	FirstName string
	JobTitle  string
}

// Placeholders accept single or double braces, any case and inner whitespace.
var (
	namePlaceholder  = regexp.MustCompile(`(?i)\{\{\s*name\s*\}\}|\{\s*name\s*\}`)
	firstPlaceholder = regexp.MustCompile(`(?i)\{\{\s*(?:first_name|firstName)\s*\}\}|\{\s*(?:first_name|firstName)\s*\}`)
	titlePlaceholder = regexp.MustCompile(`(?i)\{\{\s*(?:job_title|jobTitle)\s*\}\}|\{\s*(?:job_title|jobTitle)\s*\}`)
)

// FillTemplate substitutes {name}, {first_name}/{firstName} and {job_title}/{jobTitle}.
// Missing values substitute the empty string.
func FillTemplate(tpl string, v Values) string {
	out := namePlaceholder.ReplaceAllLiteralString(tpl, v.Name)
	out = firstPlaceholder.ReplaceAllLiteralString(out, v.FirstName)
	return titlePlaceholder.ReplaceAllLiteralString(out, v.JobTitle)
}
