package services

import (
	"context"
	"time"
)

// Notifier is the outbound notification collaborator. Every call is
// fire-and-forget: implementations log delivery failures, the engine never
// sees them and no state transition depends on one.
type Notifier interface {
	ScoreReported(ctx context.Context, tournamentID, matchID, recipientUserID int)
	MatchVerified(ctx context.Context, tournamentID, matchID, winnerTeamID int)
	MatchDisputed(ctx context.Context, tournamentID, matchID, raisedByUserID int, reason string)
	BracketGenerated(ctx context.Context, tournamentID int)
	TournamentFinished(ctx context.Context, tournamentID, winnerTeamID int)
}

// NopNotifier discards every notification.
type NopNotifier struct{}

func (NopNotifier) ScoreReported(context.Context, int, int, int) {}

func (NopNotifier) MatchVerified(context.Context, int, int, int) {}

func (NopNotifier) MatchDisputed(context.Context, int, int, int, string) {}

func (NopNotifier) BracketGenerated(context.Context, int) {}

func (NopNotifier) TournamentFinished(context.Context, int, int) {}

// DisputeEvent is handed to the external dispute collaborator when a captain
// contests a result. The collaborator owns dispute state; its only write
// path back into the engine is VerifyScore.
type DisputeEvent struct {
	TournamentID   int       `json:"tournament_id"`
	MatchID        int       `json:"match_id"`
	RaisedByUserID int       `json:"raised_by_user_id"`
	Reason         string    `json:"reason"`
	RaisedAt       time.Time `json:"raised_at"`
}

type DisputeSink interface {
	MatchDisputed(ctx context.Context, event DisputeEvent)
}

// NopDisputeSink discards dispute events.
type NopDisputeSink struct{}

func (NopDisputeSink) MatchDisputed(context.Context, DisputeEvent) {}
