package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/arenaops/bracket-engine/models"
	"github.com/arenaops/bracket-engine/repositories"
)

// fakeStore backs the in-memory repository fakes. A single mutex stands in
// for the database's row-level atomicity, so every conditional write keeps
// the same lost-update semantics the SQL implementations have.
type fakeStore struct {
	mu  sync.Mutex
	seq int

	tournaments map[int]*models.Tournament
	teams       map[int]*models.Team
	members     map[int]*models.TeamMember
	matches     map[int]*models.Match
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tournaments: make(map[int]*models.Tournament),
		teams:       make(map[int]*models.Team),
		members:     make(map[int]*models.TeamMember),
		matches:     make(map[int]*models.Match),
	}
}

func (s *fakeStore) nextID() int {
	s.seq++
	return s.seq
}

func copyTournament(t *models.Tournament) *models.Tournament {
	c := *t
	c.Teams = nil
	c.Matches = nil
	return &c
}

func copyTeam(t *models.Team) *models.Team {
	c := *t
	c.Members = nil
	return &c
}

func copyMatch(m *models.Match) *models.Match {
	c := *m
	c.ScheduleConfirmations = append([]int64(nil), m.ScheduleConfirmations...)
	return &c
}

type fakeTournamentRepo struct{ s *fakeStore }

func (r *fakeTournamentRepo) Create(_ context.Context, t *models.Tournament) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.tournaments {
		if existing.OrganizerUserID == t.OrganizerUserID && existing.Name == t.Name {
			return repositories.ErrTournamentNameConflict
		}
	}

	t.ID = r.s.nextID()
	t.TeamCount = 0
	t.CurrentRound = 0
	t.CreatedAt = time.Now()
	r.s.tournaments[t.ID] = copyTournament(t)
	return nil
}

func (r *fakeTournamentRepo) GetByID(_ context.Context, id int) (*models.Tournament, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	return copyTournament(t), nil
}

func (r *fakeTournamentRepo) List(_ context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	result := make([]models.Tournament, 0)
	ids := make([]int, 0, len(r.s.tournaments))
	for id := range r.s.tournaments {
		ids = append(ids, id)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ids)))

	for _, id := range ids {
		t := r.s.tournaments[id]
		if filter.OrganizerUserID != nil && t.OrganizerUserID != *filter.OrganizerUserID {
			continue
		}
		if filter.Format != nil && t.Format != *filter.Format {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		result = append(result, *copyTournament(t))
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []models.Tournament{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (r *fakeTournamentRepo) UpdateStatusIfCurrent(_ context.Context, id int, from, to models.TournamentStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.tournaments[id]
	if !ok || t.Status != from {
		return repositories.ErrTournamentStatusConflict
	}
	t.Status = to
	return nil
}

func (r *fakeTournamentRepo) SetBracketShape(_ context.Context, id, roundsTotal, currentRound int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.tournaments[id]
	if !ok || t.RoundsTotal != nil {
		return repositories.ErrTournamentStatusConflict
	}
	t.RoundsTotal = &roundsTotal
	t.CurrentRound = currentRound
	return nil
}

func (r *fakeTournamentRepo) AdvanceCurrentRound(_ context.Context, id, round int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	if round > t.CurrentRound {
		t.CurrentRound = round
	}
	return nil
}

func (r *fakeTournamentRepo) SetWinnerAndFinish(_ context.Context, id, winnerTeamID int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.tournaments[id]
	if !ok || t.Status != models.StatusOngoing {
		return repositories.ErrTournamentStatusConflict
	}
	t.Status = models.StatusFinished
	t.WinnerTeamID = &winnerTeamID
	return nil
}

func (r *fakeTournamentRepo) Delete(_ context.Context, id int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.tournaments[id]; !ok {
		return repositories.ErrTournamentNotFound
	}
	delete(r.s.tournaments, id)
	for tid, team := range r.s.teams {
		if team.TournamentID == id {
			delete(r.s.teams, tid)
		}
	}
	for mid, member := range r.s.members {
		if member.TournamentID == id {
			delete(r.s.members, mid)
		}
	}
	for mid, match := range r.s.matches {
		if match.TournamentID == id {
			delete(r.s.matches, mid)
		}
	}
	return nil
}

type fakeTeamRepo struct{ s *fakeStore }

func (r *fakeTeamRepo) Create(_ context.Context, team *models.Team) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.tournaments[team.TournamentID]
	if !ok || t.Status != models.StatusOpenRegistration || t.TeamCount >= t.MaxTeams {
		return repositories.ErrTournamentCapacityReached
	}
	for _, existing := range r.s.teams {
		if existing.TournamentID == team.TournamentID && existing.Name == team.Name {
			return repositories.ErrTeamNameConflict
		}
	}
	for _, member := range r.s.members {
		if member.TournamentID == team.TournamentID && member.UserID == team.CaptainUserID {
			return repositories.ErrTeamMemberConflict
		}
	}

	t.TeamCount++
	team.ID = r.s.nextID()
	team.MemberCount = 1
	team.CreatedAt = time.Now()
	r.s.teams[team.ID] = copyTeam(team)

	memberID := r.s.nextID()
	r.s.members[memberID] = &models.TeamMember{
		ID:           memberID,
		TeamID:       team.ID,
		TournamentID: team.TournamentID,
		UserID:       team.CaptainUserID,
		CreatedAt:    time.Now(),
	}
	return nil
}

func (r *fakeTeamRepo) GetByID(_ context.Context, id int) (*models.Team, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	team, ok := r.s.teams[id]
	if !ok {
		return nil, repositories.ErrTeamNotFound
	}
	return copyTeam(team), nil
}

func (r *fakeTeamRepo) ListByTournament(_ context.Context, tournamentID int) ([]*models.Team, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	teams := make([]*models.Team, 0)
	for _, team := range r.s.teams {
		if team.TournamentID == tournamentID {
			teams = append(teams, copyTeam(team))
		}
	}
	sort.Slice(teams, func(i, j int) bool {
		a, b := teams[i], teams[j]
		switch {
		case a.Seed != nil && b.Seed != nil && *a.Seed != *b.Seed:
			return *a.Seed < *b.Seed
		case a.Seed != nil && b.Seed == nil:
			return true
		case a.Seed == nil && b.Seed != nil:
			return false
		default:
			return a.ID < b.ID
		}
	})
	return teams, nil
}

func (r *fakeTeamRepo) AddMember(_ context.Context, teamID, tournamentID, userID, teamSize int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	team, ok := r.s.teams[teamID]
	if !ok || team.MemberCount >= teamSize {
		return repositories.ErrTeamCapacityReached
	}
	for _, member := range r.s.members {
		if member.TournamentID == tournamentID && member.UserID == userID {
			return repositories.ErrTeamMemberConflict
		}
	}

	team.MemberCount++
	memberID := r.s.nextID()
	r.s.members[memberID] = &models.TeamMember{
		ID:           memberID,
		TeamID:       teamID,
		TournamentID: tournamentID,
		UserID:       userID,
		CreatedAt:    time.Now(),
	}
	return nil
}

func (r *fakeTeamRepo) RemoveMember(_ context.Context, teamID, userID int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, member := range r.s.members {
		if member.TeamID == teamID && member.UserID == userID {
			delete(r.s.members, id)
			if team, ok := r.s.teams[teamID]; ok {
				team.MemberCount--
			}
			return nil
		}
	}
	return repositories.ErrTeamMemberNotFound
}

func (r *fakeTeamRepo) FindMembership(_ context.Context, tournamentID, userID int) (*models.TeamMember, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, member := range r.s.members {
		if member.TournamentID == tournamentID && member.UserID == userID {
			c := *member
			return &c, nil
		}
	}
	return nil, nil
}

func (r *fakeTeamRepo) ListMembers(_ context.Context, teamID int) ([]models.TeamMember, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	members := make([]models.TeamMember, 0)
	for _, member := range r.s.members {
		if member.TeamID == teamID {
			members = append(members, *member)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members, nil
}

func (r *fakeTeamRepo) UpdateSeeds(_ context.Context, tournamentID int, seeds []repositories.TeamSeed) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, seed := range seeds {
		team, ok := r.s.teams[seed.TeamID]
		if !ok || team.TournamentID != tournamentID {
			return repositories.ErrTeamNotFound
		}
		s := seed.Seed
		team.Seed = &s
	}
	return nil
}

func (r *fakeTeamRepo) ApplyMatchResult(_ context.Context, winnerTeamID, loserTeamID int, eliminateLoser bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	winner, ok := r.s.teams[winnerTeamID]
	if !ok {
		return repositories.ErrTeamNotFound
	}
	loser, ok := r.s.teams[loserTeamID]
	if !ok {
		return repositories.ErrTeamNotFound
	}

	winner.Wins++
	winner.Points += 3
	loser.Losses++
	loser.Points++
	loser.Eliminated = loser.Eliminated || eliminateLoser
	return nil
}

type fakeMatchRepo struct{ s *fakeStore }

func (r *fakeMatchRepo) CreateBatch(_ context.Context, matches []*models.Match) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, m := range matches {
		for _, existing := range r.s.matches {
			if existing.TournamentID == m.TournamentID && existing.Round == m.Round && existing.BracketPosition == m.BracketPosition {
				return fmt.Errorf("duplicate match R%dP%d for tournament %d", m.Round, m.BracketPosition, m.TournamentID)
			}
		}
		m.ID = r.s.nextID()
		m.CreatedAt = time.Now()
		if m.ScheduleConfirmations == nil {
			m.ScheduleConfirmations = []int64{}
		}
		r.s.matches[m.ID] = copyMatch(m)
	}
	return nil
}

func (r *fakeMatchRepo) DeleteByTournament(_ context.Context, tournamentID int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, m := range r.s.matches {
		if m.TournamentID == tournamentID {
			delete(r.s.matches, id)
		}
	}
	return nil
}

func (r *fakeMatchRepo) GetByID(_ context.Context, id int) (*models.Match, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	return copyMatch(m), nil
}

func (r *fakeMatchRepo) GetByRoundPosition(_ context.Context, tournamentID, round, position int) (*models.Match, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, m := range r.s.matches {
		if m.TournamentID == tournamentID && m.Round == round && m.BracketPosition == position {
			return copyMatch(m), nil
		}
	}
	return nil, repositories.ErrMatchNotFound
}

func (r *fakeMatchRepo) ListByTournament(_ context.Context, tournamentID int, round *int, status *models.MatchStatus) ([]*models.Match, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	matches := make([]*models.Match, 0)
	for _, m := range r.s.matches {
		if m.TournamentID != tournamentID {
			continue
		}
		if round != nil && m.Round != *round {
			continue
		}
		if status != nil && m.Status != *status {
			continue
		}
		matches = append(matches, copyMatch(m))
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Round != matches[j].Round {
			return matches[i].Round < matches[j].Round
		}
		return matches[i].BracketPosition < matches[j].BracketPosition
	})
	return matches, nil
}

func (r *fakeMatchRepo) CountUnverified(_ context.Context, tournamentID int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	count := 0
	for _, m := range r.s.matches {
		if m.TournamentID == tournamentID && m.Status != models.MatchStatusVerified {
			count++
		}
	}
	return count, nil
}

func (r *fakeMatchRepo) ProposeSchedule(_ context.Context, matchID int, when time.Time, byUserID int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.matches[matchID]
	if !ok || m.PendingScheduledAt != nil || m.ScheduledAt != nil {
		return repositories.ErrScheduleConflict
	}
	w := when
	m.PendingScheduledAt = &w
	m.ScheduleConfirmations = []int64{int64(byUserID)}
	return nil
}

func (r *fakeMatchRepo) ReplaceScheduleProposal(_ context.Context, matchID int, oldWhen, newWhen time.Time, byUserID int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.matches[matchID]
	if !ok || m.PendingScheduledAt == nil || !m.PendingScheduledAt.Equal(oldWhen) {
		return repositories.ErrScheduleConflict
	}
	w := newWhen
	m.PendingScheduledAt = &w
	m.ScheduleConfirmations = []int64{int64(byUserID)}
	return nil
}

func (r *fakeMatchRepo) AddScheduleConfirmation(_ context.Context, matchID int, when time.Time, byUserID int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.matches[matchID]
	if !ok || m.PendingScheduledAt == nil || !m.PendingScheduledAt.Equal(when) {
		return repositories.ErrScheduleConflict
	}
	for _, id := range m.ScheduleConfirmations {
		if id == int64(byUserID) {
			return repositories.ErrScheduleConflict
		}
	}
	m.ScheduleConfirmations = append(m.ScheduleConfirmations, int64(byUserID))
	return nil
}

func (r *fakeMatchRepo) FinalizeSchedule(_ context.Context, matchID int, when time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.matches[matchID]
	if !ok || m.PendingScheduledAt == nil || !m.PendingScheduledAt.Equal(when) {
		return repositories.ErrScheduleConflict
	}
	w := when
	m.ScheduledAt = &w
	m.PendingScheduledAt = nil
	m.ScheduleConfirmations = []int64{}
	return nil
}

func (r *fakeMatchRepo) ClearScheduleProposal(_ context.Context, matchID int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.matches[matchID]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	m.PendingScheduledAt = nil
	m.ScheduleConfirmations = []int64{}
	return nil
}

func (r *fakeMatchRepo) ReportScore(_ context.Context, matchID, scoreA, scoreB, winnerTeamID, loserTeamID, reportedBy int, notes *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.matches[matchID]
	if !ok || m.Status != models.MatchStatusPending {
		return repositories.ErrMatchStateConflict
	}
	m.ScoreA = &scoreA
	m.ScoreB = &scoreB
	m.WinnerTeamID = &winnerTeamID
	m.LoserTeamID = &loserTeamID
	m.Status = models.MatchStatusReported
	m.ReportedBy = &reportedBy
	if notes != nil {
		m.Notes = notes
	}
	return nil
}

func (r *fakeMatchRepo) ApplyForfeit(_ context.Context, matchID, scoreA, scoreB, winnerTeamID, loserTeamID, byUserID int, notes *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.matches[matchID]
	if !ok || m.Status == models.MatchStatusVerified {
		return repositories.ErrMatchStateConflict
	}
	m.ScoreA = &scoreA
	m.ScoreB = &scoreB
	m.WinnerTeamID = &winnerTeamID
	m.LoserTeamID = &loserTeamID
	m.Status = models.MatchStatusReported
	m.ReportedBy = &byUserID
	m.Notes = notes
	return nil
}

func (r *fakeMatchRepo) MarkVerified(_ context.Context, matchID, verifiedBy int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.matches[matchID]
	if !ok || m.Status != models.MatchStatusReported {
		return repositories.ErrMatchStateConflict
	}
	m.Status = models.MatchStatusVerified
	m.VerifiedBy = &verifiedBy
	return nil
}

func (r *fakeMatchRepo) SetSlotTeam(_ context.Context, matchID int, slot repositories.MatchSlot, teamID int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.matches[matchID]
	if !ok {
		return repositories.ErrMatchStateConflict
	}
	if slot == repositories.SlotA {
		if m.TeamAID != nil {
			return repositories.ErrMatchStateConflict
		}
		m.TeamAID = &teamID
	} else {
		if m.TeamBID != nil {
			return repositories.ErrMatchStateConflict
		}
		m.TeamBID = &teamID
	}
	return nil
}

func (r *fakeMatchRepo) ResolveBye(_ context.Context, matchID, winnerTeamID int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.matches[matchID]
	if !ok || m.Status != models.MatchStatusPending || m.TeamBID != nil {
		return repositories.ErrMatchStateConflict
	}
	m.WinnerTeamID = &winnerTeamID
	m.Status = models.MatchStatusVerified
	return nil
}

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	mu       sync.Mutex
	reported []int
	verified []int
	disputed []int
	brackets []int
	finished map[int]int
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{finished: make(map[int]int)}
}

func (n *recordingNotifier) ScoreReported(_ context.Context, _, matchID, _ int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reported = append(n.reported, matchID)
}

func (n *recordingNotifier) MatchVerified(_ context.Context, _, matchID, _ int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verified = append(n.verified, matchID)
}

func (n *recordingNotifier) MatchDisputed(_ context.Context, _, matchID, _ int, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.disputed = append(n.disputed, matchID)
}

func (n *recordingNotifier) BracketGenerated(_ context.Context, tournamentID int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.brackets = append(n.brackets, tournamentID)
}

func (n *recordingNotifier) TournamentFinished(_ context.Context, tournamentID, winnerTeamID int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.finished[tournamentID] = winnerTeamID
}

func (n *recordingNotifier) finishedWinner(tournamentID int) (int, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	winner, ok := n.finished[tournamentID]
	return winner, ok
}

// recordingDisputeSink captures dispute events for assertions.
type recordingDisputeSink struct {
	mu     sync.Mutex
	events []DisputeEvent
}

func (s *recordingDisputeSink) MatchDisputed(_ context.Context, event DisputeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}
