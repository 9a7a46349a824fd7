package models

import "time"

type Team struct {
	ID            int       `json:"id" db:"id"`
	TournamentID  int       `json:"tournament_id" db:"tournament_id"`
	Name          string    `json:"name" db:"name"`
	CaptainUserID int       `json:"captain_user_id" db:"captain_user_id"`
	MemberCount   int       `json:"member_count" db:"member_count"`
	Wins          int       `json:"wins" db:"wins"`
	Losses        int       `json:"losses" db:"losses"`
	Points        int       `json:"points" db:"points"`
	Seed          *int      `json:"seed,omitempty" db:"seed"`
	Eliminated    bool      `json:"eliminated" db:"eliminated"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`

	Members []TeamMember `json:"members,omitempty" db:"-"`
}

type TeamMember struct {
	ID           int       `json:"id" db:"id"`
	TeamID       int       `json:"team_id" db:"team_id"`
	TournamentID int       `json:"tournament_id" db:"tournament_id"`
	UserID       int       `json:"user_id" db:"user_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
