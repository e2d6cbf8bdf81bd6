package domain

import "fmt"

// Category labels a query's complexity.
type Category string

const (
	// CategorySimple is a single-fact lookup answered by one retrieval call.
	CategorySimple Category = "simple"
	// CategoryComplex is a multi-part question requiring decomposition.
	CategoryComplex Category = "complex"
	// CategoryConversational is a follow-up about the dialog itself,
	// answerable without retrieval.
	CategoryConversational Category = "conversational"
)

// ParseCategory validates a raw category string.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategorySimple, CategoryComplex, CategoryConversational:
		return Category(s), nil
	default:
		return "", fmt.Errorf("%w: unknown category %q", ErrMalformedModelOutput, s)
	}
}

// Classification is the outcome of query classification.
type Classification struct {
	Category          Category `json:"category"`
	Reasoning         string   `json:"reasoning"`
	SuggestedApproach string   `json:"suggested_approach"`
}

// Strategy controls sub-query execution order for complex queries.
type Strategy string

const (
	// StrategyParallel runs all sub-query retrievals concurrently.
	StrategyParallel Strategy = "parallel"
	// StrategySequential runs sub-query retrievals one after another.
	// Ordering only: later sub-queries do not see earlier results.
	StrategySequential Strategy = "sequential"
)

// MaxSubQueries caps decomposition output.
const MaxSubQueries = 4

// Decomposition is the outcome of breaking a complex query into sub-queries.
// SubQueries is never empty: decomposition fails open to the original query.
type Decomposition struct {
	SubQueries           []string
	Strategy             Strategy
	SynthesisInstruction string
}

// Route is the closed set of pipeline branches produced by classification.
// Exactly one of ConversationalRoute, SimpleRoute, ComplexRoute.
type Route interface {
	route()
	Category() Category
}

// ConversationalRoute answers from dialog context alone; no retrieval.
type ConversationalRoute struct{}

// SimpleRoute retrieves once with the original query.
type SimpleRoute struct{}

// ComplexRoute fans out over decomposed sub-queries.
type ComplexRoute struct {
	Decomposition Decomposition
}

func (ConversationalRoute) route() {}
func (SimpleRoute) route()         {}
func (ComplexRoute) route()        {}

// Category implements Route.
func (ConversationalRoute) Category() Category { return CategoryConversational }

// Category implements Route.
func (SimpleRoute) Category() Category { return CategorySimple }

// Category implements Route.
func (ComplexRoute) Category() Category { return CategoryComplex }
