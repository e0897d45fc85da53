package textutil

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

var labelReplacer = strings.NewReplacer(
	" ", " ",
	" ", " ",
	" ", " ",
	"\ufeff", "",
	"�", "",
)

// NormalizeLabel returns a cleaned, ASCII-friendly representation of a KPI
// or column label scraped out of HTML.
func NormalizeLabel(raw string) string {
	text := norm.NFKC.String(raw)
	text = labelReplacer.Replace(text)
	text = whitespaceRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

var metricReplacer = strings.NewReplacer(
	",", "",
	"%", "",
	"₹", "",
	"Rs.", "",
	"−", "-",
)

// CleanMetric normalizes a scraped metric cell into bare numeric text.
// Dashes and empty cells become "", parenthesized values become negative.
func CleanMetric(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" || text == "-" || text == "--" {
		return ""
	}
	text = metricReplacer.Replace(text)
	if strings.HasPrefix(text, "(") && strings.HasSuffix(text, ")") {
		text = "-" + text[1:len(text)-1]
	}
	text = whitespaceRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// NormalizeCode canonicalizes an exchange identifier. Empty strings and the
// literal "0" (a null marker in the upstream data) normalize to "".
func NormalizeCode(raw string) string {
	code := strings.TrimSpace(raw)
	if code == "0" {
		return ""
	}
	return code
}

func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.Trim(name, " \n\t")
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}
