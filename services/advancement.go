package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/arenaops/bracket-engine/models"
	"github.com/arenaops/bracket-engine/repositories"
)

// advanceWinner propagates a verified winner into the next round of an
// elimination bracket: position/2 addresses the destination match, the
// position's parity picks the slot. A missing destination means the
// verified match was the final.
func (s *matchService) advanceWinner(ctx context.Context, tournament *models.Tournament, round, position, winnerTeamID int) error {
	nextRound := round + 1
	nextPosition := position / 2

	next, err := s.matchRepo.GetByRoundPosition(ctx, tournament.ID, nextRound, nextPosition)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return s.finishElimination(ctx, tournament, winnerTeamID)
		}
		return err
	}

	slot := repositories.SlotA
	if position%2 != 0 {
		slot = repositories.SlotB
	}
	if err := s.matchRepo.SetSlotTeam(ctx, next.ID, slot, winnerTeamID); err != nil {
		if errors.Is(err, repositories.ErrMatchStateConflict) {
			// Slot already filled: a replayed advancement is a no-op.
			return nil
		}
		return err
	}

	if err := s.tournamentRepo.AdvanceCurrentRound(ctx, tournament.ID, nextRound); err != nil {
		s.logger.WarnContext(ctx, "failed to advance current round marker",
			slog.Int("tournament_id", tournament.ID), slog.Any("error", err))
	}

	// With an odd match count in a round, the last winner lands in a slot
	// whose opposite feeder match does not exist. That destination can
	// never fill: resolve it as a bye and keep advancing.
	if slot == repositories.SlotA && next.TeamBID == nil {
		siblingPosition := position + 1
		_, err := s.matchRepo.GetByRoundPosition(ctx, tournament.ID, round, siblingPosition)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repositories.ErrMatchNotFound) {
			return err
		}
		if err := s.matchRepo.ResolveBye(ctx, next.ID, winnerTeamID); err != nil {
			if errors.Is(err, repositories.ErrMatchStateConflict) {
				return nil
			}
			return err
		}
		return s.advanceWinner(ctx, tournament, nextRound, nextPosition, winnerTeamID)
	}
	return nil
}

func (s *matchService) finishElimination(ctx context.Context, tournament *models.Tournament, winnerTeamID int) error {
	if err := s.tournamentRepo.SetWinnerAndFinish(ctx, tournament.ID, winnerTeamID); err != nil {
		if errors.Is(err, repositories.ErrTournamentStatusConflict) {
			// Already finished by a concurrent verification.
			return nil
		}
		return err
	}
	s.notifier.TournamentFinished(ctx, tournament.ID, winnerTeamID)
	return nil
}
