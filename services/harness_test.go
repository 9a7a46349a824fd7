package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arenaops/bracket-engine/models"
	"github.com/arenaops/bracket-engine/repositories"
)

const organizerID = 1

type testEnv struct {
	store          *fakeStore
	tournamentRepo repositories.TournamentRepository
	teamRepo       repositories.TeamRepository
	matchRepo      repositories.MatchRepository
	notifier       *recordingNotifier
	disputes       *recordingDisputeSink

	roster      RosterService
	tournaments TournamentService
	matches     MatchService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := newFakeStore()
	env := &testEnv{
		store:          store,
		tournamentRepo: &fakeTournamentRepo{s: store},
		teamRepo:       &fakeTeamRepo{s: store},
		matchRepo:      &fakeMatchRepo{s: store},
		notifier:       newRecordingNotifier(),
		disputes:       &recordingDisputeSink{},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.roster = NewRosterService(env.teamRepo, env.tournamentRepo)
	env.tournaments = NewTournamentService(
		env.tournamentRepo, env.teamRepo, env.matchRepo,
		env.notifier, logger, rand.New(rand.NewSource(1)),
	)
	env.matches = NewMatchService(
		env.matchRepo, env.teamRepo, env.tournamentRepo,
		env.tournaments, env.notifier, env.disputes, logger,
	)
	return env
}

// captainID gives every team a distinct captain derived from its creation
// order, so tests can recover the captain from the team row.
func captainID(index int) int { return 100 + index }

func (env *testEnv) createOpenTournament(t *testing.T, format models.TournamentFormat, maxTeams int) *models.Tournament {
	t.Helper()

	tournament, err := env.tournaments.Create(context.Background(), CreateTournamentParams{
		Name:            fmt.Sprintf("%s cup", format),
		OrganizerUserID: organizerID,
		Format:          format,
		MaxTeams:        maxTeams,
		TeamSize:        3,
	})
	require.NoError(t, err)
	require.NoError(t, env.tournaments.OpenRegistration(context.Background(), tournament.ID, organizerID))
	return tournament
}

func (env *testEnv) registerTeams(t *testing.T, tournamentID, count int) []*models.Team {
	t.Helper()

	teams := make([]*models.Team, count)
	for i := 0; i < count; i++ {
		team, err := env.roster.CreateTeam(context.Background(), tournamentID, fmt.Sprintf("Team %d", i+1), captainID(i))
		require.NoError(t, err)
		teams[i] = team
	}
	return teams
}

// startTournament drives a tournament from scratch to ongoing with a
// generated bracket.
func (env *testEnv) startTournament(t *testing.T, format models.TournamentFormat, teamCount int) *models.Tournament {
	t.Helper()

	tournament := env.createOpenTournament(t, format, teamCount)
	env.registerTeams(t, tournament.ID, teamCount)
	require.NoError(t, env.tournaments.CloseRegistration(context.Background(), tournament.ID, organizerID))

	started, err := env.tournaments.Start(context.Background(), tournament.ID, organizerID)
	require.NoError(t, err)
	return started
}

func (env *testEnv) team(t *testing.T, teamID int) *models.Team {
	t.Helper()
	team, err := env.teamRepo.GetByID(context.Background(), teamID)
	require.NoError(t, err)
	return team
}

func (env *testEnv) captainOf(t *testing.T, teamID int) int {
	t.Helper()
	return env.team(t, teamID).CaptainUserID
}

func (env *testEnv) match(t *testing.T, matchID int) *models.Match {
	t.Helper()
	match, err := env.matchRepo.GetByID(context.Background(), matchID)
	require.NoError(t, err)
	return match
}

// reportAndVerify pushes a pending match through reporting by slot A's
// captain and verification by the organizer.
func (env *testEnv) reportAndVerify(t *testing.T, match *models.Match, winnerTeamID int) *models.Match {
	t.Helper()

	require.NotNil(t, match.TeamAID)
	require.NotNil(t, match.TeamBID)

	scoreA, scoreB := 2, 1
	if winnerTeamID == *match.TeamBID {
		scoreA, scoreB = 1, 2
	}
	_, err := env.matches.ReportScore(context.Background(), match.ID, scoreA, scoreB, env.captainOf(t, *match.TeamAID))
	require.NoError(t, err)

	verified, err := env.matches.VerifyScore(context.Background(), match.ID, organizerID)
	require.NoError(t, err)
	return verified
}
