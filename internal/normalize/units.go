package normalize

import (
	"regexp"
	"strings"
)

// Canonical unit codes.
const (
	UnitMetre       = "M"
	UnitSquareMetre = "M2"
	UnitCubicMetre  = "M3"
	UnitNumber      = "NR"
	UnitSum         = "SUM"
	UnitKilogram    = "KG"
	UnitTonne       = "TONNE"
	UnitLitre       = "L"
	UnitBag         = "BAG"
	UnitSet         = "SET"
	UnitHour        = "HR"
	UnitDay         = "DAY"
)

// unitAliases maps every accepted spelling, with spaces and dots removed, to
// its canonical code. Aliases sharing a code are interchangeable.
var unitAliases = map[string]string{
	"m": UnitMetre, "m1": UnitMetre, "lm": UnitMetre, "rm": UnitMetre, "rmt": UnitMetre,
	"lin m": UnitMetre, "linm": UnitMetre, "metre": UnitMetre, "meter": UnitMetre,
	"metres": UnitMetre, "meters": UnitMetre, "mtr": UnitMetre, "rn": UnitMetre,

	"m2": UnitSquareMetre, "sqm": UnitSquareMetre, "sm": UnitSquareMetre, "sqmt": UnitSquareMetre,
	"sqmtr": UnitSquareMetre, "msq": UnitSquareMetre,

	"m3": UnitCubicMetre, "cum": UnitCubicMetre, "cumt": UnitCubicMetre, "cbm": UnitCubicMetre,
	"cumtr": UnitCubicMetre, "mcu": UnitCubicMetre,

	"nr": UnitNumber, "no": UnitNumber, "nos": UnitNumber, "ea": UnitNumber, "each": UnitNumber,
	"pc": UnitNumber, "pcs": UnitNumber, "unit": UnitNumber, "units": UnitNumber,
	"item": UnitNumber, "items": UnitNumber, "number": UnitNumber,

	"sum": UnitSum, "ls": UnitSum, "lumpsum": UnitSum, "lot": UnitSum,

	"kg": UnitKilogram, "kgs": UnitKilogram, "kilogram": UnitKilogram, "kilograms": UnitKilogram,

	"t": UnitTonne, "ton": UnitTonne, "tons": UnitTonne, "tonne": UnitTonne, "tonnes": UnitTonne,
	"mt": UnitTonne,

	"l": UnitLitre, "ltr": UnitLitre, "ltrs": UnitLitre, "litre": UnitLitre, "liter": UnitLitre,
	"litres": UnitLitre, "liters": UnitLitre,

	"bag": UnitBag, "bags": UnitBag,
	"set": UnitSet, "sets": UnitSet,
	"hr": UnitHour, "hrs": UnitHour, "hour": UnitHour, "hours": UnitHour,
	"day": UnitDay, "days": UnitDay,
}

var unitKeyCleaner = strings.NewReplacer(" ", "", ".", "", "²", "2", "³", "3", "_", "", "-", "")

// NormalizeUnit returns the canonical code for a unit column value, or ""
// when the value is not a known unit.
func NormalizeUnit(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	if code, ok := unitAliases[s]; ok {
		return code
	}
	if code, ok := unitAliases[unitKeyCleaner.Replace(s)]; ok {
		return code
	}
	return ""
}

// UnitKey is the comparison key for a unit: its canonical code when known,
// otherwise the trimmed upper-cased text.
func UnitKey(s string) string {
	if code := NormalizeUnit(s); code != "" {
		return code
	}
	return strings.ToUpper(strings.TrimSpace(s))
}

// UnitsCompatible reports whether two units denote the same measure.
func UnitsCompatible(a, b string) bool {
	ka, kb := UnitKey(a), UnitKey(b)
	return ka != "" && ka == kb
}

// ResolveUnit picks the unit for a query. An explicit unit column value wins
// over a hint found in the description.
func ResolveUnit(column, description string) string {
	if code := NormalizeUnit(column); code != "" {
		return code
	}
	if strings.TrimSpace(column) != "" {
		return strings.ToUpper(strings.TrimSpace(column))
	}
	return ExtractUnit(fold(description))
}

var (
	unitAlt = `m2|m3|sq\.?\s?m|sqm|cu\.?\s?m|cum|cbm|lin\.?\s?m|rmt|rm|lm|m|nr|nos|no|each|ea|pcs|pc|item|sum|ls|kg|kgs|tonnes?|tons?|ltrs?|litres?|l|bags?|sets?|hrs?|days?`

	// "per m2", "/m3", "rate per each"
	perUnitPattern = regexp.MustCompile(`(?:\bper|/)\s*(` + unitAlt + `)\b`)
	// "(m2)", "[nr]"
	bracketUnitPattern = regexp.MustCompile(`[(\[]\s*(` + unitAlt + `)\s*[)\]]`)
	// "... in m3" at the end of a description
	trailingUnitPattern = regexp.MustCompile(`\bin\s+(` + unitAlt + `)\s*$`)
)

// ExtractUnit looks for a unit hint inside a lower-cased description and
// returns its canonical code, or "". Bare numbers with units ("20mm") are
// measurements, not pricing units, and are ignored.
func ExtractUnit(lowered string) string {
	for _, re := range []*regexp.Regexp{perUnitPattern, bracketUnitPattern, trailingUnitPattern} {
		if m := re.FindStringSubmatch(lowered); m != nil {
			if code := NormalizeUnit(m[1]); code != "" {
				return code
			}
		}
	}
	return ""
}
