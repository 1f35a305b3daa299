package normalize

import "strings"

// abbreviations expands common construction shorthand. Expansion is additive:
// the original token stays in the token list.
var abbreviations = map[string][]string{
	"exc":    {"excavation", "excavate", "earthwork"},
	"excav":  {"excavation", "excavate", "earthwork"},
	"rc":     {"reinforced", "concrete"},
	"rcc":    {"reinforced", "cement", "concrete"},
	"pcc":    {"plain", "cement", "concrete"},
	"conc":   {"concrete"},
	"reinf":  {"reinforcement"},
	"dpc":    {"damp", "proof", "course"},
	"dpm":    {"damp", "proof", "membrane"},
	"ms":     {"mild", "steel"},
	"tmt":    {"thermo", "mechanically", "treated", "steel", "bar"},
	"hysd":   {"high", "yield", "strength", "deformed", "bar"},
	"bw":     {"brick", "work", "brickwork"},
	"bwk":    {"brick", "work", "brickwork"},
	"pw":     {"plaster", "work"},
	"fw":     {"form", "work", "formwork"},
	"fwk":    {"form", "work", "formwork"},
	"gi":     {"galvanized", "iron"},
	"ci":     {"cast", "iron"},
	"di":     {"ductile", "iron"},
	"upvc":   {"unplasticised", "pvc"},
	"cpvc":   {"chlorinated", "polyvinyl", "chloride", "pvc"},
	"ppr":    {"polypropylene", "random"},
	"hdpe":   {"high", "density", "polyethylene"},
	"aac":    {"autoclaved", "aerated", "concrete", "block"},
	"opc":    {"ordinary", "portland", "cement"},
	"ppc":    {"portland", "pozzolana", "cement"},
	"src":    {"sulphate", "resistant", "cement"},
	"wbm":    {"water", "bound", "macadam"},
	"gsb":    {"granular", "sub", "base"},
	"dbm":    {"dense", "bituminous", "macadam"},
	"te":     {"testing", "earthing"},
	"swa":    {"steel", "wire", "armoured", "cable"},
	"xlpe":   {"cross", "linked", "polyethylene", "cable"},
	"mep":    {"mechanical", "electrical", "plumbing"},
	"ffl":    {"finished", "floor", "level"},
	"ngl":    {"natural", "ground", "level"},
	"incl":   {"including"},
	"thk":    {"thick"},
	"dia":    {"diameter"},
	"approx": {"approximately"},
}

// Expand returns the stems of every abbreviation expansion found in tokens
// that are not already present. The result is de-duplicated and keeps first
// occurrence order.
func Expand(tokens []string) []string {
	present := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		present[Stem(t)] = struct{}{}
	}

	var out []string
	for _, t := range tokens {
		for _, word := range abbreviations[t] {
			s := Stem(word)
			if _, ok := present[s]; ok {
				continue
			}
			present[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// ExpandToken returns the stems an abbreviation token expands to.
func ExpandToken(tok string) []string {
	words := abbreviations[tok]
	if len(words) == 0 {
		return nil
	}
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = Stem(w)
	}
	return out
}

// Abbreviation reports the expansion for tok, if any.
func Abbreviation(tok string) (string, bool) {
	words, ok := abbreviations[strings.ToLower(tok)]
	if !ok {
		return "", false
	}
	return strings.Join(words, " "), true
}
