package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arenaops/bracket-engine/models"
	"github.com/arenaops/bracket-engine/repositories"
)

// MatchService is the per-match state machine: scheduling negotiation,
// score reporting, two-party confirmation, admin verification and forfeits.
type MatchService interface {
	GetMatch(ctx context.Context, matchID int) (*models.Match, error)
	ListByTournament(ctx context.Context, tournamentID int, round *int, status *models.MatchStatus) ([]*models.Match, error)

	ProposeSchedule(ctx context.Context, matchID int, when time.Time, byCaptainID int) (*models.Match, error)
	DeclineSchedule(ctx context.Context, matchID, byCaptainID int) error

	ReportScore(ctx context.Context, matchID, scoreA, scoreB, byCaptainID int) (*models.Match, error)
	ConfirmScore(ctx context.Context, matchID, byCaptainID int) (*models.Match, error)
	VerifyScore(ctx context.Context, matchID, byAdminID int) (*models.Match, error)
	Forfeit(ctx context.Context, matchID, winnerTeamID, byAdminID int, notes string) (*models.Match, error)

	// FlagDispute emits the contested result to the dispute collaborator.
	// The engine's own state does not change; the collaborator's override
	// path re-enters through VerifyScore.
	FlagDispute(ctx context.Context, matchID, byCaptainID int, reason string) error
}

type matchService struct {
	matchRepo      repositories.MatchRepository
	teamRepo       repositories.TeamRepository
	tournamentRepo repositories.TournamentRepository
	lifecycle      TournamentService
	notifier       Notifier
	disputes       DisputeSink
	logger         *slog.Logger
}

func NewMatchService(
	matchRepo repositories.MatchRepository,
	teamRepo repositories.TeamRepository,
	tournamentRepo repositories.TournamentRepository,
	lifecycle TournamentService,
	notifier Notifier,
	disputes DisputeSink,
	logger *slog.Logger,
) MatchService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if disputes == nil {
		disputes = NopDisputeSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &matchService{
		matchRepo:      matchRepo,
		teamRepo:       teamRepo,
		tournamentRepo: tournamentRepo,
		lifecycle:      lifecycle,
		notifier:       notifier,
		disputes:       disputes,
		logger:         logger,
	}
}

func (s *matchService) GetMatch(ctx context.Context, matchID int) (*models.Match, error) {
	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrMatchNotFound, matchID)
		}
		return nil, err
	}
	return match, nil
}

func (s *matchService) ListByTournament(ctx context.Context, tournamentID int, round *int, status *models.MatchStatus) ([]*models.Match, error) {
	return s.matchRepo.ListByTournament(ctx, tournamentID, round, status)
}

func (s *matchService) ProposeSchedule(ctx context.Context, matchID int, when time.Time, byCaptainID int) (*models.Match, error) {
	match, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match.Status == models.MatchStatusVerified {
		return nil, fmt.Errorf("%w: match is already verified", ErrInvalidState)
	}
	if match.ScheduledAt != nil {
		return nil, fmt.Errorf("%w: match is already scheduled", ErrInvalidState)
	}
	if _, _, err := s.requireCaptain(ctx, match, byCaptainID); err != nil {
		return nil, err
	}

	switch {
	case match.PendingScheduledAt == nil:
		// First proposal wins: the conditional write fails for the loser
		// of a race, who must retry or confirm the winning proposal.
		if err := s.matchRepo.ProposeSchedule(ctx, matchID, when, byCaptainID); err != nil {
			if errors.Is(err, repositories.ErrScheduleConflict) {
				return nil, ErrProposalConflict
			}
			return nil, err
		}

	case !when.Equal(*match.PendingScheduledAt):
		proposer, ok := match.Proposer()
		if !ok || proposer != byCaptainID {
			return nil, ErrProposalConflict
		}
		// The proposer may replace their own proposal; confirmations reset
		// to the proposer alone.
		if err := s.matchRepo.ReplaceScheduleProposal(ctx, matchID, *match.PendingScheduledAt, when, byCaptainID); err != nil {
			if errors.Is(err, repositories.ErrScheduleConflict) {
				return nil, ErrProposalConflict
			}
			return nil, err
		}

	default:
		if match.HasConfirmation(byCaptainID) {
			return match, nil
		}
		if err := s.matchRepo.AddScheduleConfirmation(ctx, matchID, when, byCaptainID); err != nil {
			if errors.Is(err, repositories.ErrScheduleConflict) {
				return nil, ErrProposalConflict
			}
			return nil, err
		}
		refreshed, err := s.GetMatch(ctx, matchID)
		if err != nil {
			return nil, err
		}
		if len(refreshed.ScheduleConfirmations) >= 2 {
			if err := s.matchRepo.FinalizeSchedule(ctx, matchID, when); err != nil {
				if errors.Is(err, repositories.ErrScheduleConflict) {
					return nil, ErrProposalConflict
				}
				return nil, err
			}
		}
	}

	return s.GetMatch(ctx, matchID)
}

func (s *matchService) DeclineSchedule(ctx context.Context, matchID, byCaptainID int) error {
	match, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return err
	}
	if match.PendingScheduledAt == nil {
		return fmt.Errorf("%w: no schedule proposal is pending", ErrInvalidState)
	}
	if _, _, err := s.requireCaptain(ctx, match, byCaptainID); err != nil {
		return err
	}
	return s.matchRepo.ClearScheduleProposal(ctx, matchID)
}

func (s *matchService) ReportScore(ctx context.Context, matchID, scoreA, scoreB, byCaptainID int) (*models.Match, error) {
	match, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match.Status != models.MatchStatusPending {
		return nil, fmt.Errorf("%w: score can only be reported on a pending match", ErrInvalidState)
	}
	teamA, teamB, err := s.requireCaptain(ctx, match, byCaptainID)
	if err != nil {
		return nil, err
	}
	if scoreA == scoreB {
		return nil, ErrInvalidScore
	}

	winnerID, loserID := teamA.ID, teamB.ID
	if scoreB > scoreA {
		winnerID, loserID = teamB.ID, teamA.ID
	}

	if err := s.matchRepo.ReportScore(ctx, matchID, scoreA, scoreB, winnerID, loserID, byCaptainID, nil); err != nil {
		if errors.Is(err, repositories.ErrMatchStateConflict) {
			return nil, fmt.Errorf("%w: score was already reported", ErrInvalidState)
		}
		return nil, err
	}

	opposing := teamA.CaptainUserID
	if byCaptainID == teamA.CaptainUserID {
		opposing = teamB.CaptainUserID
	}
	s.notifier.ScoreReported(ctx, match.TournamentID, matchID, opposing)

	return s.GetMatch(ctx, matchID)
}

// ConfirmScore lets the opposing captain make a reported score
// authoritative, equivalent to admin verification.
func (s *matchService) ConfirmScore(ctx context.Context, matchID, byCaptainID int) (*models.Match, error) {
	match, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match.Status != models.MatchStatusReported {
		return nil, fmt.Errorf("%w: match has no reported score to confirm", ErrInvalidState)
	}
	if _, _, err := s.requireCaptain(ctx, match, byCaptainID); err != nil {
		return nil, err
	}
	if match.ReportedBy != nil && *match.ReportedBy == byCaptainID {
		return nil, fmt.Errorf("%w: the reporting captain cannot confirm their own score", ErrUnauthorized)
	}

	tournament, err := s.getTournament(ctx, match.TournamentID)
	if err != nil {
		return nil, err
	}
	return s.finalizeVerification(ctx, tournament, match, byCaptainID)
}

// VerifyScore is the operator path: anyone with tournament-edit rights may
// verify regardless of team affiliation.
func (s *matchService) VerifyScore(ctx context.Context, matchID, byAdminID int) (*models.Match, error) {
	match, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match.Status != models.MatchStatusReported {
		return nil, fmt.Errorf("%w: match has no reported score to verify", ErrInvalidState)
	}

	tournament, err := s.getTournament(ctx, match.TournamentID)
	if err != nil {
		return nil, err
	}
	if tournament.OrganizerUserID != byAdminID {
		return nil, fmt.Errorf("%w: user %d cannot verify matches of tournament %d", ErrUnauthorized, byAdminID, tournament.ID)
	}
	return s.finalizeVerification(ctx, tournament, match, byAdminID)
}

func (s *matchService) Forfeit(ctx context.Context, matchID, winnerTeamID, byAdminID int, notes string) (*models.Match, error) {
	match, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match.Status == models.MatchStatusVerified {
		return nil, fmt.Errorf("%w: match is already verified", ErrInvalidState)
	}
	if !match.HasTeam(winnerTeamID) {
		return nil, fmt.Errorf("%w: team %d is not in match %d", ErrTeamNotFound, winnerTeamID, matchID)
	}
	if match.TeamAID == nil || match.TeamBID == nil {
		return nil, fmt.Errorf("%w: match slots are not fully populated", ErrInvalidState)
	}

	tournament, err := s.getTournament(ctx, match.TournamentID)
	if err != nil {
		return nil, err
	}
	if tournament.OrganizerUserID != byAdminID {
		return nil, fmt.Errorf("%w: user %d cannot forfeit matches of tournament %d", ErrUnauthorized, byAdminID, tournament.ID)
	}

	scoreA, scoreB := 1, 0
	loserTeamID := *match.TeamBID
	if winnerTeamID == *match.TeamBID {
		scoreA, scoreB = 0, 1
		loserTeamID = *match.TeamAID
	}

	var notesPtr *string
	if notes != "" {
		notesPtr = &notes
	}
	if err := s.matchRepo.ApplyForfeit(ctx, matchID, scoreA, scoreB, winnerTeamID, loserTeamID, byAdminID, notesPtr); err != nil {
		if errors.Is(err, repositories.ErrMatchStateConflict) {
			return nil, fmt.Errorf("%w: match was verified concurrently", ErrInvalidState)
		}
		return nil, err
	}

	match, err = s.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	return s.finalizeVerification(ctx, tournament, match, byAdminID)
}

func (s *matchService) FlagDispute(ctx context.Context, matchID, byCaptainID int, reason string) error {
	match, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return err
	}
	if match.Status == models.MatchStatusPending {
		return fmt.Errorf("%w: there is no result to dispute yet", ErrInvalidState)
	}
	if _, _, err := s.requireCaptain(ctx, match, byCaptainID); err != nil {
		return err
	}

	event := DisputeEvent{
		TournamentID:   match.TournamentID,
		MatchID:        matchID,
		RaisedByUserID: byCaptainID,
		Reason:         reason,
		RaisedAt:       time.Now().UTC(),
	}
	s.disputes.MatchDisputed(ctx, event)
	s.notifier.MatchDisputed(ctx, match.TournamentID, matchID, byCaptainID, reason)
	return nil
}

// finalizeVerification is the shared tail of ConfirmScore, VerifyScore and
// Forfeit: promote to verified (the conditional update makes replays fail
// instead of double-crediting), update standings, then advance or check
// round-robin completion.
func (s *matchService) finalizeVerification(ctx context.Context, tournament *models.Tournament, match *models.Match, verifierUserID int) (*models.Match, error) {
	if match.WinnerTeamID == nil || match.LoserTeamID == nil {
		return nil, fmt.Errorf("%w: reported match is missing a winner", ErrInvalidState)
	}
	winnerID, loserID := *match.WinnerTeamID, *match.LoserTeamID

	if err := s.matchRepo.MarkVerified(ctx, match.ID, verifierUserID); err != nil {
		if errors.Is(err, repositories.ErrMatchStateConflict) {
			return nil, fmt.Errorf("%w: match is not awaiting verification", ErrInvalidState)
		}
		return nil, err
	}

	eliminateLoser := tournament.Format != models.FormatRoundRobin
	if err := s.teamRepo.ApplyMatchResult(ctx, winnerID, loserID, eliminateLoser); err != nil {
		return nil, fmt.Errorf("match %d verified but standings update failed: %w", match.ID, err)
	}

	s.notifier.MatchVerified(ctx, tournament.ID, match.ID, winnerID)

	if tournament.Format == models.FormatRoundRobin {
		if _, err := s.lifecycle.FinishIfComplete(ctx, tournament.ID); err != nil {
			s.logger.ErrorContext(ctx, "round robin completion check failed",
				slog.Int("tournament_id", tournament.ID), slog.Any("error", err))
		}
	} else {
		if err := s.advanceWinner(ctx, tournament, match.Round, match.BracketPosition, winnerID); err != nil {
			return nil, err
		}
	}

	return s.GetMatch(ctx, match.ID)
}

func (s *matchService) getTournament(ctx context.Context, tournamentID int) (*models.Tournament, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrTournamentNotFound, tournamentID)
		}
		return nil, err
	}
	return tournament, nil
}

// requireCaptain loads both teams and checks the caller captains one of
// them.
func (s *matchService) requireCaptain(ctx context.Context, match *models.Match, userID int) (*models.Team, *models.Team, error) {
	if match.TeamAID == nil || match.TeamBID == nil {
		return nil, nil, fmt.Errorf("%w: match slots are not fully populated", ErrInvalidState)
	}
	teamA, err := s.teamRepo.GetByID(ctx, *match.TeamAID)
	if err != nil {
		return nil, nil, err
	}
	teamB, err := s.teamRepo.GetByID(ctx, *match.TeamBID)
	if err != nil {
		return nil, nil, err
	}
	if userID != teamA.CaptainUserID && userID != teamB.CaptainUserID {
		return nil, nil, fmt.Errorf("%w: user %d captains neither team of match %d", ErrUnauthorized, userID, match.ID)
	}
	return teamA, teamB, nil
}
