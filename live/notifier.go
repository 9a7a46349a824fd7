package live

import "context"

// Event types published on the feed.
const (
	EventScoreReported      = "SCORE_REPORTED"
	EventMatchVerified      = "MATCH_VERIFIED"
	EventMatchDisputed      = "MATCH_DISPUTED"
	EventBracketGenerated   = "BRACKET_GENERATED"
	EventTournamentFinished = "TOURNAMENT_FINISHED"
)

// The Hub doubles as the engine's notification collaborator: every
// lifecycle event becomes a broadcast into the tournament's room.

func (h *Hub) ScoreReported(_ context.Context, tournamentID, matchID, recipientUserID int) {
	h.broadcast(Event{
		Type:         EventScoreReported,
		TournamentID: tournamentID,
		Payload: map[string]int{
			"match_id":          matchID,
			"recipient_user_id": recipientUserID,
		},
	})
}

func (h *Hub) MatchVerified(_ context.Context, tournamentID, matchID, winnerTeamID int) {
	h.broadcast(Event{
		Type:         EventMatchVerified,
		TournamentID: tournamentID,
		Payload: map[string]int{
			"match_id":       matchID,
			"winner_team_id": winnerTeamID,
		},
	})
}

func (h *Hub) MatchDisputed(_ context.Context, tournamentID, matchID, raisedByUserID int, reason string) {
	h.broadcast(Event{
		Type:         EventMatchDisputed,
		TournamentID: tournamentID,
		Payload: map[string]interface{}{
			"match_id":          matchID,
			"raised_by_user_id": raisedByUserID,
			"reason":            reason,
		},
	})
}

func (h *Hub) BracketGenerated(_ context.Context, tournamentID int) {
	h.broadcast(Event{
		Type:         EventBracketGenerated,
		TournamentID: tournamentID,
	})
}

func (h *Hub) TournamentFinished(_ context.Context, tournamentID, winnerTeamID int) {
	h.broadcast(Event{
		Type:         EventTournamentFinished,
		TournamentID: tournamentID,
		Payload: map[string]int{
			"winner_team_id": winnerTeamID,
		},
	})
}
