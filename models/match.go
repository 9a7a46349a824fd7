package models

import "time"

type MatchStatus string

const (
	MatchStatusPending  MatchStatus = "pending"
	MatchStatusReported MatchStatus = "reported"
	MatchStatusVerified MatchStatus = "verified"
)

type Match struct {
	ID              int  `json:"id" db:"id"`
	TournamentID    int  `json:"tournament_id" db:"tournament_id"`
	Round           int  `json:"round" db:"round"`
	BracketPosition int  `json:"bracket_position" db:"bracket_position"`
	TeamAID         *int `json:"team_a_id,omitempty" db:"team_a_id"`
	TeamBID         *int `json:"team_b_id,omitempty" db:"team_b_id"`

	ScoreA       *int        `json:"score_a,omitempty" db:"score_a"`
	ScoreB       *int        `json:"score_b,omitempty" db:"score_b"`
	WinnerTeamID *int        `json:"winner_team_id,omitempty" db:"winner_team_id"`
	LoserTeamID  *int        `json:"loser_team_id,omitempty" db:"loser_team_id"`
	Status       MatchStatus `json:"status" db:"status"`
	ReportedBy   *int        `json:"reported_by,omitempty" db:"reported_by"`
	VerifiedBy   *int        `json:"verified_by,omitempty" db:"verified_by"`

	PendingScheduledAt *time.Time `json:"pending_scheduled_at,omitempty" db:"pending_scheduled_at"`
	ScheduledAt        *time.Time `json:"scheduled_at,omitempty" db:"scheduled_at"`
	// ScheduleConfirmations is stored inline with the match row so the
	// negotiation protocol's conditional updates stay single-row. The
	// proposer is always the first entry.
	ScheduleConfirmations []int64 `json:"schedule_confirmations" db:"schedule_confirmations"`

	Notes     *string   `json:"notes,omitempty" db:"notes"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// HasTeam reports whether teamID occupies one of the two slots.
func (m *Match) HasTeam(teamID int) bool {
	if m.TeamAID != nil && *m.TeamAID == teamID {
		return true
	}
	return m.TeamBID != nil && *m.TeamBID == teamID
}

// HasConfirmation reports whether userID already confirmed the pending proposal.
func (m *Match) HasConfirmation(userID int) bool {
	for _, id := range m.ScheduleConfirmations {
		if id == int64(userID) {
			return true
		}
	}
	return false
}

// Proposer returns the user who made the pending schedule proposal.
func (m *Match) Proposer() (int, bool) {
	if m.PendingScheduledAt == nil || len(m.ScheduleConfirmations) == 0 {
		return 0, false
	}
	return int(m.ScheduleConfirmations[0]), true
}
