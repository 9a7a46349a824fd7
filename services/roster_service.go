package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/arenaops/bracket-engine/models"
	"github.com/arenaops/bracket-engine/repositories"
)

// RosterService owns team creation and membership while registration is
// open. The external invitation collaborator enters through AddMember like
// any other caller.
type RosterService interface {
	CreateTeam(ctx context.Context, tournamentID int, name string, captainUserID int) (*models.Team, error)
	JoinTeam(ctx context.Context, teamID, userID int) error
	AddMember(ctx context.Context, teamID, byCaptainID, userID int) error
	RemoveMember(ctx context.Context, teamID, byUserID, memberUserID int) error
	GetTeam(ctx context.Context, teamID int) (*models.Team, error)
	ListTeams(ctx context.Context, tournamentID int) ([]*models.Team, error)
}

type rosterService struct {
	teamRepo       repositories.TeamRepository
	tournamentRepo repositories.TournamentRepository
}

func NewRosterService(
	teamRepo repositories.TeamRepository,
	tournamentRepo repositories.TournamentRepository,
) RosterService {
	return &rosterService{
		teamRepo:       teamRepo,
		tournamentRepo: tournamentRepo,
	}
}

func (s *rosterService) CreateTeam(ctx context.Context, tournamentID int, name string, captainUserID int) (*models.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrTeamNameRequired
	}

	tournament, err := s.getTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if tournament.Status != models.StatusOpenRegistration {
		return nil, fmt.Errorf("%w: registration is not open", ErrInvalidState)
	}
	if tournament.TeamCount >= tournament.MaxTeams {
		return nil, fmt.Errorf("%w: tournament already has %d teams", ErrCapacityExceeded, tournament.TeamCount)
	}

	if err := s.ensureNotRostered(ctx, tournamentID, captainUserID); err != nil {
		return nil, err
	}

	team := &models.Team{
		TournamentID:  tournamentID,
		Name:          name,
		CaptainUserID: captainUserID,
	}
	if err := s.teamRepo.Create(ctx, team); err != nil {
		return nil, s.mapRosterError(ctx, tournamentID, err)
	}
	return team, nil
}

// JoinTeam is a voluntary join by the user themselves.
func (s *rosterService) JoinTeam(ctx context.Context, teamID, userID int) error {
	return s.addMember(ctx, teamID, userID, userID)
}

// AddMember lets the captain (or the invitation collaborator acting for the
// captain) add a user to the roster.
func (s *rosterService) AddMember(ctx context.Context, teamID, byCaptainID, userID int) error {
	return s.addMember(ctx, teamID, byCaptainID, userID)
}

func (s *rosterService) addMember(ctx context.Context, teamID, byUserID, userID int) error {
	team, err := s.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	// Self-join needs no captain approval; anyone else must be added by
	// the captain.
	if byUserID != userID && byUserID != team.CaptainUserID {
		return fmt.Errorf("%w: only the captain can add members", ErrUnauthorized)
	}

	tournament, err := s.getTournament(ctx, team.TournamentID)
	if err != nil {
		return err
	}
	if tournament.Status != models.StatusOpenRegistration {
		return fmt.Errorf("%w: registration is not open", ErrInvalidState)
	}
	if team.MemberCount >= tournament.TeamSize {
		return fmt.Errorf("%w: team %q is full", ErrCapacityExceeded, team.Name)
	}

	if err := s.ensureNotRostered(ctx, team.TournamentID, userID); err != nil {
		return err
	}

	if err := s.teamRepo.AddMember(ctx, teamID, team.TournamentID, userID, tournament.TeamSize); err != nil {
		return s.mapRosterError(ctx, team.TournamentID, err)
	}
	return nil
}

func (s *rosterService) RemoveMember(ctx context.Context, teamID, byUserID, memberUserID int) error {
	team, err := s.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if memberUserID == team.CaptainUserID {
		return ErrProtectedRole
	}
	// A member may leave voluntarily; otherwise only the captain removes.
	if byUserID != memberUserID && byUserID != team.CaptainUserID {
		return fmt.Errorf("%w: only the captain or the member themselves can do this", ErrUnauthorized)
	}

	tournament, err := s.getTournament(ctx, team.TournamentID)
	if err != nil {
		return err
	}
	if tournament.Status != models.StatusOpenRegistration {
		return fmt.Errorf("%w: registration is not open", ErrInvalidState)
	}

	if err := s.teamRepo.RemoveMember(ctx, teamID, memberUserID); err != nil {
		if errors.Is(err, repositories.ErrTeamMemberNotFound) {
			return fmt.Errorf("%w: user %d is not on team %d", ErrMemberNotFound, memberUserID, teamID)
		}
		return err
	}
	return nil
}

func (s *rosterService) GetTeam(ctx context.Context, teamID int) (*models.Team, error) {
	team, err := s.teamRepo.GetByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrTeamNotFound, teamID)
		}
		return nil, err
	}
	return team, nil
}

func (s *rosterService) ListTeams(ctx context.Context, tournamentID int) ([]*models.Team, error) {
	if _, err := s.getTournament(ctx, tournamentID); err != nil {
		return nil, err
	}
	return s.teamRepo.ListByTournament(ctx, tournamentID)
}

func (s *rosterService) getTournament(ctx context.Context, tournamentID int) (*models.Tournament, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrTournamentNotFound, tournamentID)
		}
		return nil, err
	}
	return tournament, nil
}

func (s *rosterService) ensureNotRostered(ctx context.Context, tournamentID, userID int) error {
	membership, err := s.teamRepo.FindMembership(ctx, tournamentID, userID)
	if err != nil {
		return fmt.Errorf("failed to check roster membership: %w", err)
	}
	if membership != nil {
		return fmt.Errorf("%w: user %d", ErrAlreadyRostered, userID)
	}
	return nil
}

// mapRosterError translates repository conflicts into the service taxonomy.
// A capacity conflict from a conditional write can also mean the
// registration window closed underneath us, so the tournament is re-read.
func (s *rosterService) mapRosterError(ctx context.Context, tournamentID int, err error) error {
	switch {
	case errors.Is(err, repositories.ErrTeamNameConflict):
		return fmt.Errorf("%w: team name taken in this tournament", ErrDuplicateName)
	case errors.Is(err, repositories.ErrTeamMemberConflict):
		return fmt.Errorf("%w (concurrent roster change)", ErrAlreadyRostered)
	case errors.Is(err, repositories.ErrTeamCapacityReached):
		return fmt.Errorf("%w: team is full", ErrCapacityExceeded)
	case errors.Is(err, repositories.ErrTournamentCapacityReached):
		if t, readErr := s.tournamentRepo.GetByID(ctx, tournamentID); readErr == nil && t.Status != models.StatusOpenRegistration {
			return fmt.Errorf("%w: registration is not open", ErrInvalidState)
		}
		return fmt.Errorf("%w: tournament is full", ErrCapacityExceeded)
	default:
		return err
	}
}
