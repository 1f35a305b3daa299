package scoring

import (
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hbollon/go-edlib"

	"github.com/Veraticus/boq-price-match/internal/model"
	"github.com/Veraticus/boq-price-match/internal/normalize"
)

type preparedQuery struct {
	norm         normalize.Text
	stemSet      map[string]struct{}
	expansions   [][]string
	specs        []string
	unitKey      string
	codeKey      string
	textCodes    []string
	contextStems []string
}

type preparedItem struct {
	norm          normalize.Text
	descStems     map[string]struct{}
	synonymStems  map[string]struct{}
	categoryStems map[string]struct{}
	keywordStems  map[string]struct{}
	byInitial     map[byte][]string
	specs         map[string]struct{}
	unitKey       string
	codeKey       string
}

// codePatterns recognise item codes written into a description.
var codePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b[A-Z]{1,3}\d{2,4}[A-Z]?\b`),
	regexp.MustCompile(`\b\d{2,3}-\d{2,3}\b`),
	regexp.MustCompile(`\b[A-Z]\.\d{2}\.\d{2}\b`),
}

var codeCleaner = strings.NewReplacer(" ", "", ".", "", "-", "", "/", "", "_", "")

func codeKey(code string) string {
	return codeCleaner.Replace(strings.ToUpper(strings.TrimSpace(code)))
}

// extractCodes returns the keys of every code-like token in a description.
func extractCodes(description string) []string {
	upper := strings.ToUpper(description)
	var out []string
	for _, re := range codePatterns {
		for _, m := range re.FindAllString(upper, -1) {
			out = append(out, codeKey(m))
		}
	}
	return out
}

func prepareQuery(q model.MatchQuery) *preparedQuery {
	norm := normalize.Normalize(q.Description)
	pq := &preparedQuery{
		norm:    norm,
		stemSet: norm.StemSet(),
		specs:   norm.Measurements,
		unitKey: normalize.ResolveUnit(q.Unit, q.Description),
		codeKey: codeKey(q.Code),
	}
	pq.expansions = make([][]string, len(norm.Tokens))
	for i, tok := range norm.Tokens {
		pq.expansions[i] = normalize.ExpandToken(tok)
	}

	pq.textCodes = extractCodes(q.Description)

	seen := make(map[string]struct{})
	for _, h := range q.ContextHeaders {
		for _, stem := range normalize.Normalize(h).Stems {
			if len(stem) < 3 {
				continue
			}
			if _, dup := seen[stem]; dup {
				continue
			}
			seen[stem] = struct{}{}
			pq.contextStems = append(pq.contextStems, stem)
		}
	}
	return pq
}

func stemSetOf(texts ...string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range texts {
		for _, s := range normalize.Normalize(t).Stems {
			set[s] = struct{}{}
		}
	}
	return set
}

func prepareItem(item model.PriceItem) *preparedItem {
	norm := normalize.Normalize(item.Description)
	it := &preparedItem{
		norm:          norm,
		descStems:     norm.StemSet(),
		categoryStems: stemSetOf(item.Category, item.Subcategory),
		keywordStems:  stemSetOf(item.Keywords...),
		synonymStems:  make(map[string]struct{}, len(norm.Synonyms)),
		byInitial:     make(map[byte][]string),
		specs:         make(map[string]struct{}, len(norm.Measurements)),
		unitKey:       normalize.UnitKey(item.Unit),
		codeKey:       codeKey(item.Code),
	}
	for _, s := range norm.Synonyms {
		it.synonymStems[s] = struct{}{}
	}
	for _, m := range norm.Measurements {
		it.specs[m] = struct{}{}
	}
	for s := range it.descStems {
		if len(s) >= 4 {
			it.byInitial[s[0]] = append(it.byInitial[s[0]], s)
		}
	}
	if item.Unit == "" {
		it.unitKey = norm.Unit
	}
	return it
}

// itemCache memoizes prepared items keyed by a hash of their content, so a
// reloaded catalog with unchanged items is not re-normalized. Items dropped
// from the catalog age out of the LRU.
type itemCache struct {
	lru *lru.Cache[uint64, *preparedItem]
}

func newItemCache(size int) *itemCache {
	if size <= 0 {
		size = defaultItemCacheSize
	}
	c, err := lru.New[uint64, *preparedItem](size)
	if err != nil {
		panic(err)
	}
	return &itemCache{lru: c}
}

// defaultItemCacheSize is also the floor for scorers: a sequential scan over
// more items than the cache holds never hits.
const defaultItemCacheSize = 50000

func itemKey(item model.PriceItem) uint64 {
	d := xxhash.New()
	for _, s := range []string{item.Code, item.Description, item.Category, item.Subcategory, item.Unit} {
		_, _ = d.WriteString(s)
		_, _ = d.WriteString("\x1f")
	}
	for _, k := range item.Keywords {
		_, _ = d.WriteString(k)
		_, _ = d.WriteString("\x1e")
	}
	return d.Sum64()
}

func (c *itemCache) get(item model.PriceItem) *preparedItem {
	key := itemKey(item)
	if it, ok := c.lru.Get(key); ok {
		return it
	}
	it := prepareItem(item)
	c.lru.Add(key, it)
	return it
}

func (c *itemCache) len() int {
	return c.lru.Len()
}

type codeMatch int

const (
	codeNone codeMatch = iota
	codeFragment
	codeExact
)

// minFragmentLen is the shortest code key that may match as a fragment of
// another.
const minFragmentLen = 5

// codeRelation compares a query's codes with an item code key. The explicit
// BOQ code matches exactly or as a fragment of the item code (or the item
// code of it). Codes found in the description only count when equal, since
// grades and sizes such as C25 or DN100 look like codes too.
func codeRelation(q *preparedQuery, item string) codeMatch {
	if item == "" {
		return codeNone
	}
	if q.codeKey != "" {
		if q.codeKey == item {
			return codeExact
		}
		if len(q.codeKey) >= minFragmentLen && len(item) >= minFragmentLen &&
			(strings.Contains(item, q.codeKey) || strings.Contains(q.codeKey, item)) {
			return codeFragment
		}
	}
	for _, c := range q.textCodes {
		if c == item {
			return codeExact
		}
	}
	return codeNone
}

// specOverlap is the share of the query's measurements, grades and
// standards that the item also names.
func specOverlap(q *preparedQuery, it *preparedItem) float64 {
	if len(q.specs) == 0 {
		return 0
	}
	hits := 0
	for _, m := range q.specs {
		if _, ok := it.specs[m]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(q.specs))
}

const (
	fuzzyThreshold = 0.9
	fuzzyCredit    = 0.8
	synonymCredit  = 0.7

	coverageWeight = 0.65
	diceWeight     = 0.35
)

// textSimilarity is the unweighted base similarity between a query and an
// item, in [0,1].
func textSimilarity(q *preparedQuery, it *preparedItem) float64 {
	if q.norm.Empty() || it.norm.Empty() {
		return 0
	}

	coverage := 1.0
	if !strings.Contains(it.norm.Canonical, q.norm.Canonical) {
		var credit float64
		for i, stem := range q.norm.Stems {
			credit += tokenCredit(stem, q.expansions[i], it)
		}
		coverage = credit / float64(len(q.norm.Stems))
	}

	shared := 0
	for s := range q.stemSet {
		if _, ok := it.descStems[s]; ok {
			shared++
		}
	}
	dice := 2 * float64(shared) / float64(len(q.stemSet)+len(it.descStems))

	score := coverageWeight*coverage + diceWeight*dice

	if lev, err := edlib.StringsSimilarity(q.norm.Canonical, it.norm.Canonical, edlib.Levenshtein); err == nil {
		if float64(lev) > score {
			score = float64(lev)
		}
	}
	return clip(score)
}

func tokenCredit(stem string, expansions []string, it *preparedItem) float64 {
	if _, ok := it.descStems[stem]; ok {
		return 1
	}
	if _, ok := it.keywordStems[stem]; ok {
		return 1
	}
	if _, ok := it.synonymStems[stem]; ok {
		return synonymCredit
	}
	for _, e := range expansions {
		if _, ok := it.descStems[e]; ok {
			return synonymCredit
		}
	}
	if len(stem) >= 4 && !strings.ContainsAny(stem, "0123456789") {
		for _, cand := range it.byInitial[stem[0]] {
			sim, err := edlib.StringsSimilarity(stem, cand, edlib.JaroWinkler)
			if err == nil && float64(sim) >= fuzzyThreshold {
				return fuzzyCredit
			}
		}
	}
	return 0
}
