package models

import "time"

type TournamentFormat string

const (
	FormatSingleElimination TournamentFormat = "single_elimination"
	FormatDoubleElimination TournamentFormat = "double_elimination"
	FormatRoundRobin        TournamentFormat = "round_robin"
)

// TournamentStatus represents the lifecycle states, matching the ENUM in the DB.
type TournamentStatus string

const (
	StatusDraft              TournamentStatus = "draft"
	StatusOpenRegistration   TournamentStatus = "open_registration"
	StatusRegistrationClosed TournamentStatus = "registration_closed"
	StatusOngoing            TournamentStatus = "ongoing"
	StatusFinished           TournamentStatus = "finished"
	StatusCancelled          TournamentStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible from s.
func (s TournamentStatus) Terminal() bool {
	return s == StatusFinished || s == StatusCancelled
}

type Tournament struct {
	ID              int              `json:"id" db:"id"`
	Name            string           `json:"name" db:"name"`
	OrganizerUserID int              `json:"organizer_user_id" db:"organizer_user_id"`
	Format          TournamentFormat `json:"format" db:"format"`
	Status          TournamentStatus `json:"status" db:"status"`
	MaxTeams        int              `json:"max_teams" db:"max_teams"`
	TeamSize        int              `json:"team_size" db:"team_size"`
	TeamCount       int              `json:"team_count" db:"team_count"`
	RoundsTotal     *int             `json:"rounds_total,omitempty" db:"rounds_total"`
	CurrentRound    int              `json:"current_round" db:"current_round"`
	WinnerTeamID    *int             `json:"winner_team_id,omitempty" db:"winner_team_id"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`

	// Optional linked entities, populated by services, not mapped directly.
	Teams   []Team  `json:"teams,omitempty" db:"-"`
	Matches []Match `json:"matches,omitempty" db:"-"`
}
