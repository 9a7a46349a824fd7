package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/arenaops/bracket-engine/models"
	"github.com/lib/pq"
)

var (
	ErrMatchNotFound = errors.New("match not found")
	// ErrMatchStateConflict signals a conditional update that expected a
	// different match status (e.g. a replayed report or verification).
	ErrMatchStateConflict = errors.New("match is not in the expected state")
	// ErrScheduleConflict signals that a conditional schedule write lost a
	// race or found an unexpected pending proposal.
	ErrScheduleConflict = errors.New("schedule proposal changed concurrently")
)

// MatchSlot addresses one of a match's two team slots.
type MatchSlot int

const (
	SlotA MatchSlot = iota
	SlotB
)

type MatchRepository interface {
	CreateBatch(ctx context.Context, matches []*models.Match) error
	GetByID(ctx context.Context, id int) (*models.Match, error)
	GetByRoundPosition(ctx context.Context, tournamentID, round, position int) (*models.Match, error)
	ListByTournament(ctx context.Context, tournamentID int, round *int, status *models.MatchStatus) ([]*models.Match, error)
	CountUnverified(ctx context.Context, tournamentID int) (int, error)
	// DeleteByTournament clears a partially written bracket so a failed
	// generation can be retried.
	DeleteByTournament(ctx context.Context, tournamentID int) error

	// Schedule negotiation. Each write is a single conditional statement so
	// two captains racing each other cannot both succeed.
	ProposeSchedule(ctx context.Context, matchID int, when time.Time, byUserID int) error
	ReplaceScheduleProposal(ctx context.Context, matchID int, oldWhen, newWhen time.Time, byUserID int) error
	AddScheduleConfirmation(ctx context.Context, matchID int, when time.Time, byUserID int) error
	FinalizeSchedule(ctx context.Context, matchID int, when time.Time) error
	ClearScheduleProposal(ctx context.Context, matchID int) error

	// Lifecycle writes, all guarded on the current status.
	ReportScore(ctx context.Context, matchID, scoreA, scoreB, winnerTeamID, loserTeamID, reportedBy int, notes *string) error
	// ApplyForfeit overwrites any unverified result with the forfeit
	// outcome, leaving the match reported and ready for verification.
	ApplyForfeit(ctx context.Context, matchID, scoreA, scoreB, winnerTeamID, loserTeamID, byUserID int, notes *string) error
	MarkVerified(ctx context.Context, matchID, verifiedBy int) error
	SetSlotTeam(ctx context.Context, matchID int, slot MatchSlot, teamID int) error
	ResolveBye(ctx context.Context, matchID, winnerTeamID int) error
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

const matchColumns = `
	id, tournament_id, round, bracket_position, team_a_id, team_b_id,
	score_a, score_b, winner_team_id, loser_team_id, status, reported_by,
	verified_by, pending_scheduled_at, scheduled_at, schedule_confirmations,
	notes, created_at`

func scanMatch(row interface{ Scan(...interface{}) error }, m *models.Match) error {
	var confirmations pq.Int64Array
	err := row.Scan(
		&m.ID, &m.TournamentID, &m.Round, &m.BracketPosition, &m.TeamAID,
		&m.TeamBID, &m.ScoreA, &m.ScoreB, &m.WinnerTeamID, &m.LoserTeamID,
		&m.Status, &m.ReportedBy, &m.VerifiedBy, &m.PendingScheduledAt,
		&m.ScheduledAt, &confirmations, &m.Notes, &m.CreatedAt,
	)
	if err != nil {
		return err
	}
	m.ScheduleConfirmations = []int64(confirmations)
	return nil
}

func (r *postgresMatchRepository) CreateBatch(ctx context.Context, matches []*models.Match) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		query := `
			INSERT INTO matches
				(tournament_id, round, bracket_position, team_a_id, team_b_id,
				 status, winner_team_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, created_at`
		for _, m := range matches {
			err := tx.QueryRowContext(ctx, query,
				m.TournamentID, m.Round, m.BracketPosition, m.TeamAID, m.TeamBID,
				m.Status, m.WinnerTeamID,
			).Scan(&m.ID, &m.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to insert match R%dP%d: %w", m.Round, m.BracketPosition, err)
			}
		}
		return nil
	})
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id int) (*models.Match, error) {
	query := `SELECT` + matchColumns + ` FROM matches WHERE id = $1`

	match := &models.Match{}
	err := scanMatch(r.db.QueryRowContext(ctx, query, id), match)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan match %d: %w", id, err)
	}
	return match, nil
}

func (r *postgresMatchRepository) GetByRoundPosition(ctx context.Context, tournamentID, round, position int) (*models.Match, error) {
	query := `SELECT` + matchColumns + `
		FROM matches
		WHERE tournament_id = $1 AND round = $2 AND bracket_position = $3`

	match := &models.Match{}
	err := scanMatch(r.db.QueryRowContext(ctx, query, tournamentID, round, position), match)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan match R%dP%d: %w", round, position, err)
	}
	return match, nil
}

func (r *postgresMatchRepository) ListByTournament(ctx context.Context, tournamentID int, roundFilter *int, statusFilter *models.MatchStatus) ([]*models.Match, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT` + matchColumns + ` FROM matches WHERE tournament_id = $1`)

	args := []interface{}{tournamentID}
	placeholderIndex := 2

	if roundFilter != nil {
		queryBuilder.WriteString(" AND round = $")
		queryBuilder.WriteString(strconv.Itoa(placeholderIndex))
		args = append(args, *roundFilter)
		placeholderIndex++
	}
	if statusFilter != nil {
		queryBuilder.WriteString(" AND status = $")
		queryBuilder.WriteString(strconv.Itoa(placeholderIndex))
		args = append(args, *statusFilter)
	}

	queryBuilder.WriteString(" ORDER BY round ASC, bracket_position ASC")

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		var match models.Match
		if scanErr := scanMatch(rows, &match); scanErr != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", scanErr)
		}
		matches = append(matches, &match)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during match rows iteration: %w", err)
	}
	return matches, nil
}

func (r *postgresMatchRepository) CountUnverified(ctx context.Context, tournamentID int) (int, error) {
	query := `SELECT COUNT(*) FROM matches WHERE tournament_id = $1 AND status <> $2`

	var count int
	if err := r.db.QueryRowContext(ctx, query, tournamentID, models.MatchStatusVerified).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unverified matches for tournament %d: %w", tournamentID, err)
	}
	return count, nil
}

func (r *postgresMatchRepository) DeleteByTournament(ctx context.Context, tournamentID int) error {
	query := `DELETE FROM matches WHERE tournament_id = $1`
	if _, err := r.db.ExecContext(ctx, query, tournamentID); err != nil {
		return fmt.Errorf("failed to delete matches for tournament %d: %w", tournamentID, err)
	}
	return nil
}

func (r *postgresMatchRepository) ProposeSchedule(ctx context.Context, matchID int, when time.Time, byUserID int) error {
	// First proposal wins: succeeds only while no proposal is pending and
	// the match is not yet scheduled.
	query := `
		UPDATE matches
		SET pending_scheduled_at = $1, schedule_confirmations = ARRAY[$2]::bigint[]
		WHERE id = $3 AND pending_scheduled_at IS NULL AND scheduled_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, when, int64(byUserID), matchID)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrScheduleConflict)
}

func (r *postgresMatchRepository) ReplaceScheduleProposal(ctx context.Context, matchID int, oldWhen, newWhen time.Time, byUserID int) error {
	query := `
		UPDATE matches
		SET pending_scheduled_at = $1, schedule_confirmations = ARRAY[$2]::bigint[]
		WHERE id = $3 AND pending_scheduled_at = $4`
	result, err := r.db.ExecContext(ctx, query, newWhen, int64(byUserID), matchID, oldWhen)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrScheduleConflict)
}

func (r *postgresMatchRepository) AddScheduleConfirmation(ctx context.Context, matchID int, when time.Time, byUserID int) error {
	query := `
		UPDATE matches
		SET schedule_confirmations = array_append(schedule_confirmations, $1)
		WHERE id = $2 AND pending_scheduled_at = $3
		  AND NOT (schedule_confirmations @> ARRAY[$1]::bigint[])`
	result, err := r.db.ExecContext(ctx, query, int64(byUserID), matchID, when)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrScheduleConflict)
}

func (r *postgresMatchRepository) FinalizeSchedule(ctx context.Context, matchID int, when time.Time) error {
	query := `
		UPDATE matches
		SET scheduled_at = $1, pending_scheduled_at = NULL, schedule_confirmations = '{}'
		WHERE id = $2 AND pending_scheduled_at = $1`
	result, err := r.db.ExecContext(ctx, query, when, matchID)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrScheduleConflict)
}

func (r *postgresMatchRepository) ClearScheduleProposal(ctx context.Context, matchID int) error {
	query := `
		UPDATE matches
		SET pending_scheduled_at = NULL, schedule_confirmations = '{}'
		WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, matchID)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) ReportScore(ctx context.Context, matchID, scoreA, scoreB, winnerTeamID, loserTeamID, reportedBy int, notes *string) error {
	query := `
		UPDATE matches
		SET score_a = $1, score_b = $2, winner_team_id = $3, loser_team_id = $4,
			status = $5, reported_by = $6, notes = COALESCE($7, notes)
		WHERE id = $8 AND status = $9`
	result, err := r.db.ExecContext(ctx, query,
		scoreA, scoreB, winnerTeamID, loserTeamID,
		models.MatchStatusReported, reportedBy, notes,
		matchID, models.MatchStatusPending,
	)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrMatchStateConflict)
}

func (r *postgresMatchRepository) ApplyForfeit(ctx context.Context, matchID, scoreA, scoreB, winnerTeamID, loserTeamID, byUserID int, notes *string) error {
	query := `
		UPDATE matches
		SET score_a = $1, score_b = $2, winner_team_id = $3, loser_team_id = $4,
			status = $5, reported_by = $6, notes = $7
		WHERE id = $8 AND status IN ($9, $10)`
	result, err := r.db.ExecContext(ctx, query,
		scoreA, scoreB, winnerTeamID, loserTeamID,
		models.MatchStatusReported, byUserID, notes,
		matchID, models.MatchStatusPending, models.MatchStatusReported,
	)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrMatchStateConflict)
}

func (r *postgresMatchRepository) MarkVerified(ctx context.Context, matchID, verifiedBy int) error {
	query := `
		UPDATE matches SET status = $1, verified_by = $2
		WHERE id = $3 AND status = $4`
	result, err := r.db.ExecContext(ctx, query,
		models.MatchStatusVerified, verifiedBy, matchID, models.MatchStatusReported,
	)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrMatchStateConflict)
}

func (r *postgresMatchRepository) SetSlotTeam(ctx context.Context, matchID int, slot MatchSlot, teamID int) error {
	column := "team_a_id"
	if slot == SlotB {
		column = "team_b_id"
	}
	// The slot-empty guard makes a replayed advancement a no-op conflict
	// rather than an overwrite.
	query := fmt.Sprintf(`UPDATE matches SET %s = $1 WHERE id = $2 AND %s IS NULL`, column, column)
	result, err := r.db.ExecContext(ctx, query, teamID, matchID)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrMatchStateConflict)
}

func (r *postgresMatchRepository) ResolveBye(ctx context.Context, matchID, winnerTeamID int) error {
	query := `
		UPDATE matches SET winner_team_id = $1, status = $2
		WHERE id = $3 AND status = $4 AND team_b_id IS NULL`
	result, err := r.db.ExecContext(ctx, query,
		winnerTeamID, models.MatchStatusVerified, matchID, models.MatchStatusPending,
	)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrMatchStateConflict)
}
