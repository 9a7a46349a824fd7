package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/arenaops/bracket-engine/models"
	"github.com/lib/pq"
)

var (
	ErrTournamentNotFound     = errors.New("tournament not found")
	ErrTournamentNameConflict = errors.New("tournament name conflict for this organizer")
	// ErrTournamentStatusConflict signals that a conditional status update
	// found the row in a different state than expected.
	ErrTournamentStatusConflict = errors.New("tournament status changed concurrently")
)

type ListTournamentsFilter struct {
	OrganizerUserID *int
	Format          *models.TournamentFormat
	Status          *models.TournamentStatus
	Limit           int
	Offset          int
}

type TournamentRepository interface {
	Create(ctx context.Context, tournament *models.Tournament) error
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error)
	// UpdateStatusIfCurrent performs the compare-and-set transition guard:
	// the status is changed only if it still equals `from`.
	UpdateStatusIfCurrent(ctx context.Context, id int, from, to models.TournamentStatus) error
	SetBracketShape(ctx context.Context, id, roundsTotal, currentRound int) error
	AdvanceCurrentRound(ctx context.Context, id, round int) error
	SetWinnerAndFinish(ctx context.Context, id, winnerTeamID int) error
	Delete(ctx context.Context, id int) error
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

const tournamentColumns = `
	id, name, organizer_user_id, format, status, max_teams, team_size,
	team_count, rounds_total, current_round, winner_team_id, created_at`

func scanTournament(row interface{ Scan(...interface{}) error }, t *models.Tournament) error {
	return row.Scan(
		&t.ID, &t.Name, &t.OrganizerUserID, &t.Format, &t.Status, &t.MaxTeams,
		&t.TeamSize, &t.TeamCount, &t.RoundsTotal, &t.CurrentRound,
		&t.WinnerTeamID, &t.CreatedAt,
	)
}

func (r *postgresTournamentRepository) Create(ctx context.Context, t *models.Tournament) error {
	query := `
		INSERT INTO tournaments (name, organizer_user_id, format, status, max_teams, team_size)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, team_count, current_round, created_at`

	err := r.db.QueryRowContext(ctx, query,
		t.Name, t.OrganizerUserID, t.Format, t.Status, t.MaxTeams, t.TeamSize,
	).Scan(&t.ID, &t.TeamCount, &t.CurrentRound, &t.CreatedAt)

	return r.handleTournamentError(err)
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1`

	t := &models.Tournament{}
	err := scanTournament(r.db.QueryRowContext(ctx, query, id), t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to scan tournament %d: %w", id, err)
	}
	return t, nil
}

func (r *postgresTournamentRepository) List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE 1=1`

	args := []interface{}{}
	argID := 1

	if filter.OrganizerUserID != nil {
		query += fmt.Sprintf(" AND organizer_user_id = $%d", argID)
		args = append(args, *filter.OrganizerUserID)
		argID++
	}
	if filter.Format != nil {
		query += fmt.Sprintf(" AND format = $%d", argID)
		args = append(args, *filter.Format)
		argID++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argID)
		args = append(args, *filter.Status)
		argID++
	}

	query += " ORDER BY created_at DESC, id DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argID)
		args = append(args, filter.Limit)
		argID++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argID)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tournaments := make([]models.Tournament, 0)
	for rows.Next() {
		var t models.Tournament
		if scanErr := scanTournament(rows, &t); scanErr != nil {
			return nil, scanErr
		}
		tournaments = append(tournaments, t)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return tournaments, nil
}

func (r *postgresTournamentRepository) UpdateStatusIfCurrent(ctx context.Context, id int, from, to models.TournamentStatus) error {
	query := `UPDATE tournaments SET status = $1 WHERE id = $2 AND status = $3`
	result, err := r.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentStatusConflict)
}

func (r *postgresTournamentRepository) SetBracketShape(ctx context.Context, id, roundsTotal, currentRound int) error {
	// rounds_total is written once at generation and never mutated after.
	query := `
		UPDATE tournaments SET rounds_total = $1, current_round = $2
		WHERE id = $3 AND rounds_total IS NULL`
	result, err := r.db.ExecContext(ctx, query, roundsTotal, currentRound, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrTournamentStatusConflict)
}

func (r *postgresTournamentRepository) AdvanceCurrentRound(ctx context.Context, id, round int) error {
	query := `UPDATE tournaments SET current_round = GREATEST(current_round, $1) WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, round, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) SetWinnerAndFinish(ctx context.Context, id, winnerTeamID int) error {
	query := `
		UPDATE tournaments SET status = $1, winner_team_id = $2
		WHERE id = $3 AND status = $4`
	result, err := r.db.ExecContext(ctx, query, models.StatusFinished, winnerTeamID, id, models.StatusOngoing)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentStatusConflict)
}

func (r *postgresTournamentRepository) Delete(ctx context.Context, id int) error {
	// Teams and matches cascade with the tournament row.
	query := `DELETE FROM tournaments WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) handleTournamentError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		if pqErr.Code == "23505" && pqErr.Constraint == "tournaments_organizer_id_name_key" {
			return ErrTournamentNameConflict
		}
	}
	return err
}
