package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"strings"

	"github.com/arenaops/bracket-engine/brackets"
	"github.com/arenaops/bracket-engine/models"
	"github.com/arenaops/bracket-engine/repositories"
	"golang.org/x/sync/errgroup"
)

// TournamentService is the lifecycle controller: it gates registration,
// owns the registration_closed -> ongoing transition that triggers bracket
// generation, and detects round-robin completion.
type TournamentService interface {
	Create(ctx context.Context, params CreateTournamentParams) (*models.Tournament, error)
	Get(ctx context.Context, id int) (*models.Tournament, error)
	List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error)
	OpenRegistration(ctx context.Context, id, byUserID int) error
	CloseRegistration(ctx context.Context, id, byUserID int) error
	Start(ctx context.Context, id, byUserID int) (*models.Tournament, error)
	Cancel(ctx context.Context, id, byUserID int) error
	Delete(ctx context.Context, id, byUserID int) error
	// GetBracket returns the tournament with teams and matches attached.
	GetBracket(ctx context.Context, id int) (*models.Tournament, error)
	// FinishIfComplete finishes a round-robin tournament once every match
	// is verified. Completion is derived from the matches themselves, so
	// there is no second source of truth to keep in sync.
	FinishIfComplete(ctx context.Context, id int) (bool, error)
}

type CreateTournamentParams struct {
	Name            string
	OrganizerUserID int
	Format          models.TournamentFormat
	MaxTeams        int
	TeamSize        int
}

type tournamentService struct {
	tournamentRepo repositories.TournamentRepository
	teamRepo       repositories.TeamRepository
	matchRepo      repositories.MatchRepository
	notifier       Notifier
	logger         *slog.Logger
	rand           *rand.Rand
}

func NewTournamentService(
	tournamentRepo repositories.TournamentRepository,
	teamRepo repositories.TeamRepository,
	matchRepo repositories.MatchRepository,
	notifier Notifier,
	logger *slog.Logger,
	seedSource *rand.Rand,
) TournamentService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &tournamentService{
		tournamentRepo: tournamentRepo,
		teamRepo:       teamRepo,
		matchRepo:      matchRepo,
		notifier:       notifier,
		logger:         logger,
		rand:           seedSource,
	}
}

func isValidStatusTransition(current, next models.TournamentStatus) bool {
	allowedTransitions := map[models.TournamentStatus][]models.TournamentStatus{
		models.StatusDraft:              {models.StatusOpenRegistration, models.StatusCancelled},
		models.StatusOpenRegistration:   {models.StatusRegistrationClosed, models.StatusCancelled},
		models.StatusRegistrationClosed: {models.StatusOpenRegistration, models.StatusOngoing, models.StatusCancelled},
		models.StatusOngoing:            {models.StatusFinished, models.StatusCancelled},
		models.StatusFinished:           {},
		models.StatusCancelled:          {},
	}
	for _, allowed := range allowedTransitions[current] {
		if next == allowed {
			return true
		}
	}
	return false
}

func (s *tournamentService) Create(ctx context.Context, params CreateTournamentParams) (*models.Tournament, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: tournament name is required", ErrInvalidState)
	}
	if params.MaxTeams < 2 {
		return nil, fmt.Errorf("%w: max_teams must be at least 2", ErrCapacityExceeded)
	}
	if params.TeamSize < 1 {
		return nil, fmt.Errorf("%w: team_size must be at least 1", ErrCapacityExceeded)
	}
	if _, err := brackets.ForFormat(params.Format); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	tournament := &models.Tournament{
		Name:            name,
		OrganizerUserID: params.OrganizerUserID,
		Format:          params.Format,
		Status:          models.StatusDraft,
		MaxTeams:        params.MaxTeams,
		TeamSize:        params.TeamSize,
	}
	if err := s.tournamentRepo.Create(ctx, tournament); err != nil {
		return nil, err
	}
	return tournament, nil
}

func (s *tournamentService) Get(ctx context.Context, id int) (*models.Tournament, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrTournamentNotFound, id)
		}
		return nil, err
	}
	return tournament, nil
}

func (s *tournamentService) List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	return s.tournamentRepo.List(ctx, filter)
}

func (s *tournamentService) OpenRegistration(ctx context.Context, id, byUserID int) error {
	return s.transition(ctx, id, byUserID, models.StatusOpenRegistration)
}

func (s *tournamentService) CloseRegistration(ctx context.Context, id, byUserID int) error {
	return s.transition(ctx, id, byUserID, models.StatusRegistrationClosed)
}

func (s *tournamentService) Cancel(ctx context.Context, id, byUserID int) error {
	return s.transition(ctx, id, byUserID, models.StatusCancelled)
}

func (s *tournamentService) transition(ctx context.Context, id, byUserID int, to models.TournamentStatus) error {
	tournament, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.requireOrganizer(tournament, byUserID); err != nil {
		return err
	}
	if !isValidStatusTransition(tournament.Status, to) {
		return fmt.Errorf("%w: cannot move from %s to %s", ErrInvalidState, tournament.Status, to)
	}
	if err := s.tournamentRepo.UpdateStatusIfCurrent(ctx, id, tournament.Status, to); err != nil {
		if errors.Is(err, repositories.ErrTournamentStatusConflict) {
			return fmt.Errorf("%w: tournament state changed concurrently", ErrInvalidState)
		}
		return err
	}
	return nil
}

// Start moves registration_closed -> ongoing and generates the bracket.
// The conditional status update is the generation's entry guard: of two
// concurrent Start calls, exactly one passes it, so a second bracket can
// never be written.
func (s *tournamentService) Start(ctx context.Context, id, byUserID int) (*models.Tournament, error) {
	tournament, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireOrganizer(tournament, byUserID); err != nil {
		return nil, err
	}
	if tournament.Status != models.StatusRegistrationClosed {
		return nil, fmt.Errorf("%w: tournament must be in %s to start", ErrInvalidState, models.StatusRegistrationClosed)
	}
	if tournament.TeamCount < 2 {
		return nil, fmt.Errorf("%w: have %d", ErrNotEnoughTeams, tournament.TeamCount)
	}

	if err := s.tournamentRepo.UpdateStatusIfCurrent(ctx, id, models.StatusRegistrationClosed, models.StatusOngoing); err != nil {
		if errors.Is(err, repositories.ErrTournamentStatusConflict) {
			return nil, fmt.Errorf("%w: tournament was started concurrently", ErrInvalidState)
		}
		return nil, err
	}
	tournament.Status = models.StatusOngoing

	if err := s.generateBracket(ctx, tournament); err != nil {
		// Generation failed after the guard passed; clear any partially
		// written matches and hand the transition back so the operator can
		// retry. Leftover rows would collide with the retried generation.
		if cleanupErr := s.matchRepo.DeleteByTournament(ctx, id); cleanupErr != nil {
			s.logger.ErrorContext(ctx, "failed to clear partial bracket after generation failure",
				slog.Int("tournament_id", id), slog.Any("error", cleanupErr))
		}
		if revertErr := s.tournamentRepo.UpdateStatusIfCurrent(ctx, id, models.StatusOngoing, models.StatusRegistrationClosed); revertErr != nil {
			s.logger.ErrorContext(ctx, "failed to revert tournament after generation failure",
				slog.Int("tournament_id", id), slog.Any("error", revertErr))
		}
		return nil, err
	}

	s.notifier.BracketGenerated(ctx, id)
	return s.Get(ctx, id)
}

func (s *tournamentService) generateBracket(ctx context.Context, tournament *models.Tournament) error {
	teams, err := s.teamRepo.ListByTournament(ctx, tournament.ID)
	if err != nil {
		return fmt.Errorf("failed to list teams for tournament %d: %w", tournament.ID, err)
	}

	generator, err := brackets.ForFormat(tournament.Format)
	if err != nil {
		return err
	}

	bracket, err := generator.GenerateBracket(ctx, brackets.GenerateBracketParams{
		Tournament: tournament,
		Teams:      teams,
		Rand:       s.rand,
	})
	if err != nil {
		return fmt.Errorf("failed to generate %s bracket for tournament %d: %w", generator.GetName(), tournament.ID, err)
	}

	seeds := make([]repositories.TeamSeed, len(bracket.Seeds))
	for i, seed := range bracket.Seeds {
		seeds[i] = repositories.TeamSeed{TeamID: seed.TeamID, Seed: seed.Seed}
	}
	if err := s.teamRepo.UpdateSeeds(ctx, tournament.ID, seeds); err != nil {
		return fmt.Errorf("failed to persist seeds for tournament %d: %w", tournament.ID, err)
	}

	matches := make([]*models.Match, 0, len(bracket.Matches))
	for _, bm := range bracket.Matches {
		match := &models.Match{
			TournamentID:    tournament.ID,
			Round:           bm.Round,
			BracketPosition: bm.Position,
			TeamAID:         bm.TeamAID,
			TeamBID:         bm.TeamBID,
			Status:          models.MatchStatusPending,
		}
		if bm.IsBye {
			// Byes never enter the reporting protocol.
			match.Status = models.MatchStatusVerified
			match.WinnerTeamID = bm.ByeWinnerID
		}
		matches = append(matches, match)
	}
	if err := s.matchRepo.CreateBatch(ctx, matches); err != nil {
		return fmt.Errorf("failed to persist bracket for tournament %d: %w", tournament.ID, err)
	}

	if err := s.tournamentRepo.SetBracketShape(ctx, tournament.ID, bracket.RoundsTotal, 1); err != nil {
		return fmt.Errorf("failed to record bracket shape for tournament %d: %w", tournament.ID, err)
	}
	return nil
}

func (s *tournamentService) Delete(ctx context.Context, id, byUserID int) error {
	tournament, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.requireOrganizer(tournament, byUserID); err != nil {
		return err
	}
	return s.tournamentRepo.Delete(ctx, id)
}

func (s *tournamentService) GetBracket(ctx context.Context, id int) (*models.Tournament, error) {
	tournament, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		teams, err := s.teamRepo.ListByTournament(gCtx, id)
		if err != nil {
			return fmt.Errorf("failed to fetch teams for tournament %d: %w", id, err)
		}
		tournament.Teams = make([]models.Team, 0, len(teams))
		for _, team := range teams {
			tournament.Teams = append(tournament.Teams, *team)
		}
		return nil
	})
	g.Go(func() error {
		matches, err := s.matchRepo.ListByTournament(gCtx, id, nil, nil)
		if err != nil {
			return fmt.Errorf("failed to fetch matches for tournament %d: %w", id, err)
		}
		tournament.Matches = make([]models.Match, 0, len(matches))
		for _, match := range matches {
			tournament.Matches = append(tournament.Matches, *match)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tournament, nil
}

func (s *tournamentService) FinishIfComplete(ctx context.Context, id int) (bool, error) {
	tournament, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if tournament.Status != models.StatusOngoing {
		return false, nil
	}

	unverified, err := s.matchRepo.CountUnverified(ctx, id)
	if err != nil {
		return false, err
	}
	if unverified > 0 {
		return false, nil
	}

	winner, err := s.standingsLeader(ctx, id)
	if err != nil {
		return false, err
	}

	if err := s.tournamentRepo.SetWinnerAndFinish(ctx, id, winner.ID); err != nil {
		if errors.Is(err, repositories.ErrTournamentStatusConflict) {
			// Another verification path finished it first.
			return false, nil
		}
		return false, err
	}
	s.notifier.TournamentFinished(ctx, id, winner.ID)
	return true, nil
}

// standingsLeader ranks by points, then wins, then registration order.
func (s *tournamentService) standingsLeader(ctx context.Context, tournamentID int) (*models.Team, error) {
	teams, err := s.teamRepo.ListByTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if len(teams) == 0 {
		return nil, fmt.Errorf("%w: tournament %d has no teams", ErrTeamNotFound, tournamentID)
	}
	sort.SliceStable(teams, func(i, j int) bool {
		if teams[i].Points != teams[j].Points {
			return teams[i].Points > teams[j].Points
		}
		if teams[i].Wins != teams[j].Wins {
			return teams[i].Wins > teams[j].Wins
		}
		return teams[i].ID < teams[j].ID
	})
	return teams[0], nil
}

func (s *tournamentService) requireOrganizer(tournament *models.Tournament, userID int) error {
	if tournament.OrganizerUserID != userID {
		return fmt.Errorf("%w: user %d does not organize tournament %d", ErrUnauthorized, userID, tournament.ID)
	}
	return nil
}
