package brackets

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/arenaops/bracket-engine/models"
)

// BracketMatch is one slot in a generated bracket, before persistence.
// Positions are 0-based and dense within a round.
type BracketMatch struct {
	Round    int
	Position int

	TeamAID *int
	TeamBID *int

	// IsBye marks a match with no opponent: either a round-1 match for an
	// unpaired team or a later match whose second feeder does not exist.
	// Bye matches are born verified with ByeWinnerID as winner and never
	// enter reporting.
	IsBye       bool
	ByeWinnerID *int
}

// Bracket is the full generated structure for a tournament.
type Bracket struct {
	RoundsTotal int
	Seeds       []SeededTeam
	Matches     []*BracketMatch
}

// SeededTeam records the placement order assigned to a team.
type SeededTeam struct {
	TeamID int
	Seed   int
}

type GenerateBracketParams struct {
	Tournament *models.Tournament
	Teams      []*models.Team
	// Rand drives seed assignment. Nil means a time-seeded source; tests
	// and a future ranking input inject their own.
	Rand *rand.Rand
}

type BracketGenerator interface {
	GenerateBracket(ctx context.Context, params GenerateBracketParams) (*Bracket, error)
	GetName() string
}

// ForFormat dispatches to the generator strategy for the given format.
func ForFormat(format models.TournamentFormat) (BracketGenerator, error) {
	switch format {
	case models.FormatSingleElimination:
		return NewSingleEliminationGenerator(), nil
	case models.FormatDoubleElimination:
		return NewDoubleEliminationGenerator(), nil
	case models.FormatRoundRobin:
		return NewRoundRobinGenerator(), nil
	default:
		return nil, fmt.Errorf("unsupported tournament format %q", format)
	}
}
