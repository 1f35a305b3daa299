package normalize

import (
	"regexp"
	"strings"
)

var measurementPatterns = []*regexp.Regexp{
	// 100 x 50, 600x600x20mm
	regexp.MustCompile(`\d+(?:\.\d+)?\s*(?:mm|cm|m)?\s*x\s*\d+(?:\.\d+)?(?:\s*(?:mm|cm|m))?(?:\s*x\s*\d+(?:\.\d+)?\s*(?:mm|cm|m)?)?`),
	// 2.5mm, 20 mm, 25 mpa, 4 sqmm
	regexp.MustCompile(`\b\d+(?:\.\d+)?\s*(?:mm2|sqmm|mm|cm|mpa|n/mm2|kn|kva|kw|amp|a|v|inch|")(?:\b|$)`),
	// 1:2:4 mix ratios
	regexp.MustCompile(`\b\d+(?:\.\d+)?:\d+(?:\.\d+)?(?::\d+(?:\.\d+)?)?\b`),
	// concrete grades: c25/30, m20
	regexp.MustCompile(`\bc\d{2}/\d{2}\b|\bm\d{2}\b`),
	// grade/class designations
	regexp.MustCompile(`\b(?:grade|class|type)\s*[a-z]?\d+[a-z]?\b`),
	// standards: bs 8500, iso 9001, din 1045
	regexp.MustCompile(`\b(?:bs|bs\s?en|iso|din|astm|is)\s*\d{2,5}\b`),
}

var spaceRemover = strings.NewReplacer(" ", "")

// ExtractMeasurements returns the dimensions, sizes, ratios, grades and
// standards referenced in a lower-cased description, with spaces removed.
func ExtractMeasurements(lowered string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, re := range measurementPatterns {
		for _, m := range re.FindAllString(lowered, -1) {
			key := spaceRemover.Replace(strings.TrimSpace(m))
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, key)
		}
	}
	return out
}
