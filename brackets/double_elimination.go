package brackets

import "context"

// DoubleEliminationGenerator currently falls back to single-elimination
// semantics: the bracket shape and advancement arithmetic are identical and
// no loser bracket is produced. A true winner/loser bracket implementation
// replaces this strategy without touching the match state machine.
type DoubleEliminationGenerator struct {
	single *SingleEliminationGenerator
}

func NewDoubleEliminationGenerator() *DoubleEliminationGenerator {
	return &DoubleEliminationGenerator{single: NewSingleEliminationGenerator()}
}

func (g *DoubleEliminationGenerator) GetName() string {
	return "DoubleElimination"
}

func (g *DoubleEliminationGenerator) GenerateBracket(ctx context.Context, params GenerateBracketParams) (*Bracket, error) {
	return g.single.GenerateBracket(ctx, params)
}
