package brackets

import (
	"context"
	"errors"
)

type RoundRobinGenerator struct{}

func NewRoundRobinGenerator() *RoundRobinGenerator {
	return &RoundRobinGenerator{}
}

func (g *RoundRobinGenerator) GetName() string {
	return "RoundRobin"
}

// GenerateBracket materializes every round-robin match up front using the
// circle method: one slot is fixed, the rest rotate by one each round, and
// position i plays position len-1-i. Odd team counts get a ghost slot whose
// pairing is skipped, representing that round's bye; this yields n rounds
// for odd n (n-1 for even) and exactly n*(n-1)/2 matches either way.
func (g *RoundRobinGenerator) GenerateBracket(ctx context.Context, params GenerateBracketParams) (*Bracket, error) {
	teams := params.Teams
	n := len(teams)
	if n < 2 {
		return nil, errors.New("not enough teams to generate a round robin schedule (minimum 2)")
	}

	order := shuffleTeams(teams, params.Rand)

	seeds := make([]SeededTeam, n)
	circle := make([]int, 0, n+1)
	for i, team := range order {
		seeds[i] = SeededTeam{TeamID: team.ID, Seed: i + 1}
		circle = append(circle, team.ID)
	}

	const ghost = 0
	if n%2 == 1 {
		circle = append(circle, ghost)
	}
	size := len(circle)
	roundsTotal := size - 1

	matches := make([]*BracketMatch, 0, n*(n-1)/2)
	for r := 1; r <= roundsTotal; r++ {
		position := 0
		for i := 0; i < size/2; i++ {
			a := circle[i]
			b := circle[size-1-i]
			if a == ghost || b == ghost {
				continue
			}
			aID, bID := a, b
			matches = append(matches, &BracketMatch{
				Round:    r,
				Position: position,
				TeamAID:  &aID,
				TeamBID:  &bID,
			})
			position++
		}
		rotate(circle)
	}

	return &Bracket{
		RoundsTotal: roundsTotal,
		Seeds:       seeds,
		Matches:     matches,
	}, nil
}

// rotate keeps circle[0] fixed and shifts the remainder right by one.
func rotate(circle []int) {
	last := circle[len(circle)-1]
	copy(circle[2:], circle[1:len(circle)-1])
	circle[1] = last
}
