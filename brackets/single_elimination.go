package brackets

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/arenaops/bracket-engine/models"
)

type SingleEliminationGenerator struct{}

func NewSingleEliminationGenerator() *SingleEliminationGenerator {
	return &SingleEliminationGenerator{}
}

func (g *SingleEliminationGenerator) GetName() string {
	return "SingleElimination"
}

// GenerateBracket seeds the teams, pairs consecutive seeds into round 1 and
// materializes every later round with empty slots for the advancement path.
// An unpaired trailing team gets a bye: its match is born verified and the
// team is written straight into its next-round slot. If that slot's sibling
// feeder does not exist either, the destination is a bye too and the team
// cascades upward until it meets a real opponent.
func (g *SingleEliminationGenerator) GenerateBracket(ctx context.Context, params GenerateBracketParams) (*Bracket, error) {
	teams := params.Teams
	n := len(teams)
	if n < 2 {
		return nil, errors.New("not enough teams to generate a single elimination bracket (minimum 2)")
	}

	order := shuffleTeams(teams, params.Rand)

	seeds := make([]SeededTeam, n)
	for i, team := range order {
		seeds[i] = SeededTeam{TeamID: team.ID, Seed: i + 1}
	}

	roundsTotal := int(math.Ceil(math.Log2(float64(n))))

	matches := make([]*BracketMatch, 0, n)
	byIndex := make(map[[2]int]*BracketMatch)

	addMatch := func(bm *BracketMatch) {
		matches = append(matches, bm)
		byIndex[[2]int{bm.Round, bm.Position}] = bm
	}

	// Round 1: consecutive seeds, two at a time.
	round1Count := 0
	for i := 0; i+1 < n; i += 2 {
		aID := order[i].ID
		bID := order[i+1].ID
		addMatch(&BracketMatch{
			Round:    1,
			Position: i / 2,
			TeamAID:  &aID,
			TeamBID:  &bID,
		})
		round1Count++
	}

	var bye *BracketMatch
	if n%2 == 1 {
		byeID := order[n-1].ID
		bye = &BracketMatch{
			Round:       1,
			Position:    (n - 1) / 2,
			TeamAID:     &byeID,
			IsBye:       true,
			ByeWinnerID: &byeID,
		}
		addMatch(bye)
		round1Count++
	}

	// Later rounds: ceil(prev/2) empty matches per round, dense positions.
	prev := round1Count
	for r := 2; r <= roundsTotal; r++ {
		count := (prev + 1) / 2
		for p := 0; p < count; p++ {
			addMatch(&BracketMatch{Round: r, Position: p})
		}
		prev = count
	}

	// The bye winner advances immediately. A destination whose other slot
	// has no feeder match can never fill, so it becomes a bye as well and
	// the winner keeps climbing until it lands opposite a real feeder.
	if bye != nil {
		current := bye
		for current.Round < roundsTotal {
			next := byIndex[[2]int{current.Round + 1, current.Position / 2}]
			if current.Position%2 != 0 {
				next.TeamBID = current.ByeWinnerID
				break
			}
			next.TeamAID = current.ByeWinnerID
			if byIndex[[2]int{current.Round, current.Position + 1}] != nil {
				break
			}
			next.IsBye = true
			next.ByeWinnerID = current.ByeWinnerID
			current = next
		}
	}

	return &Bracket{
		RoundsTotal: roundsTotal,
		Seeds:       seeds,
		Matches:     matches,
	}, nil
}

// shuffleTeams randomizes seed order. Skill-based seeding would replace this
// with a ranking input; callers control determinism through params.Rand.
func shuffleTeams(teams []*models.Team, rnd *rand.Rand) []*models.Team {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	order := make([]*models.Team, len(teams))
	copy(order, teams)
	rnd.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	return order
}
