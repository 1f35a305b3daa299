package model

import (
	"strings"

	"github.com/Veraticus/boq-price-match/internal/common"
)

// MethodKind is the family of scoring strategy behind a match method.
type MethodKind int

// Method kinds.
const (
	KindLocal MethodKind = iota + 1
	KindEmbedding
	KindHybrid
	KindDirectRerank
)

// ConfigKey returns the key used for per-kind thresholds and weights.
func (k MethodKind) ConfigKey() string {
	switch k {
	case KindLocal:
		return "local"
	case KindEmbedding:
		return "embedding"
	case KindHybrid:
		return "hybrid"
	case KindDirectRerank:
		return "rerank"
	default:
		return "default"
	}
}

func (k MethodKind) String() string {
	return k.ConfigKey()
}

// Provider names.
const (
	ProviderCohere    = "cohere"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderDeepInfra = "deepinfra"
)

// Method names reported on results that did not come from a scorer.
const (
	MethodLearned = "LEARNED"
)

// MatchMethod selects how a query is scored. The zero value is invalid; build
// one with ParseMatchMethod or use one of the predefined methods.
type MatchMethod struct {
	name     string
	Embedder string
	Reranker string
	Kind     MethodKind
}

// Predefined methods.
var (
	MethodLocal        = MatchMethod{name: "LOCAL", Kind: KindLocal}
	MethodCohere       = MatchMethod{name: "COHERE", Kind: KindEmbedding, Embedder: ProviderCohere}
	MethodOpenAI       = MatchMethod{name: "OPENAI", Kind: KindEmbedding, Embedder: ProviderOpenAI}
	MethodGemini       = MatchMethod{name: "GEMINI", Kind: KindEmbedding, Embedder: ProviderGemini}
	MethodCohereRerank = MatchMethod{name: "COHERE_RERANK", Kind: KindHybrid, Embedder: ProviderCohere, Reranker: ProviderCohere}
	MethodQwenRerank   = MatchMethod{name: "QWEN_RERANK", Kind: KindHybrid, Embedder: ProviderCohere, Reranker: ProviderDeepInfra}
	MethodQwen         = MatchMethod{name: "QWEN", Kind: KindDirectRerank, Reranker: ProviderDeepInfra}
)

var methodsByName = map[string]MatchMethod{
	MethodLocal.name:        MethodLocal,
	MethodCohere.name:       MethodCohere,
	MethodOpenAI.name:       MethodOpenAI,
	MethodGemini.name:       MethodGemini,
	MethodCohereRerank.name: MethodCohereRerank,
	MethodQwenRerank.name:   MethodQwenRerank,
	MethodQwen.name:         MethodQwen,
}

// ParseMatchMethod resolves a method name. Names are case-insensitive; an
// empty name selects LOCAL.
func ParseMatchMethod(s string) (MatchMethod, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "" {
		return MethodLocal, nil
	}
	m, ok := methodsByName[name]
	if !ok {
		return MatchMethod{}, common.NewInputError("method", "unknown match method "+s, common.ErrUnknownMethod)
	}
	return m, nil
}

// MethodNames lists every supported method name.
func MethodNames() []string {
	return []string{
		MethodLocal.name, MethodCohere.name, MethodOpenAI.name, MethodGemini.name,
		MethodCohereRerank.name, MethodQwenRerank.name, MethodQwen.name,
	}
}

func (m MatchMethod) String() string {
	return m.name
}

// IsZero reports whether the method was never set.
func (m MatchMethod) IsZero() bool {
	return m.Kind == 0
}

// MarshalText implements encoding.TextMarshaler.
func (m MatchMethod) MarshalText() ([]byte, error) {
	return []byte(m.name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *MatchMethod) UnmarshalText(b []byte) error {
	parsed, err := ParseMatchMethod(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
