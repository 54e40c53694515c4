package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rai-lv/vendor-to-pim-mapping-system/internal/mapping"
)

// postProcess applies the field's extractor and regex filter to a resolved
// value. It returns false when the value should become null.
func postProcess(value string, fs *mapping.FieldSpec) (string, bool) {
	if fs.Extract == mapping.ExtractHTMLText {
		value = htmlText(value)
	}
	if fs.Match == nil {
		return value, true
	}
	v := applyRegexFilter(value, fs.Match)
	return v, v != ""
}

// htmlText parses value as an HTML fragment and returns its text with runs
// of whitespace collapsed. Vendors embed markup in long descriptions.
func htmlText(value string) string {
	if !strings.ContainsAny(value, "<&") {
		return strings.Join(strings.Fields(value), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(value))
	if err != nil {
		return strings.Join(strings.Fields(value), " ")
	}
	// Block elements would otherwise glue adjacent words together.
	doc.Find("br,p,li,div,tr").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// applyRegexFilter keeps capture group 1 when the pattern has one, else the
// whole match. No match yields "".
func applyRegexFilter(value string, re *regexp.Regexp) string {
	if value == "" || re == nil {
		return value
	}
	sm := re.FindStringSubmatch(value)
	if len(sm) == 0 {
		return ""
	}
	if len(sm) > 1 {
		return sm[1]
	}
	return sm[0]
}
