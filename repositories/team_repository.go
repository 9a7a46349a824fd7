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
	ErrTeamNotFound        = errors.New("team not found")
	ErrTeamNameConflict    = errors.New("team name is already in use in this tournament")
	ErrTeamMemberNotFound  = errors.New("team membership not found")
	ErrTeamMemberConflict  = errors.New("user already belongs to a team in this tournament")
	ErrTeamCapacityReached = errors.New("team member capacity reached")
	// ErrTournamentCapacityReached covers both a full tournament and a
	// registration window that closed between the read and the write; the
	// caller distinguishes by re-reading the tournament.
	ErrTournamentCapacityReached = errors.New("tournament team capacity reached")
)

// TeamSeed is a seed assignment produced by bracket generation.
type TeamSeed struct {
	TeamID int
	Seed   int
}

type TeamRepository interface {
	// Create inserts the team, its captain membership row, and bumps the
	// owning tournament's team_count, all in one transaction so the
	// counters never diverge from the membership rows.
	Create(ctx context.Context, team *models.Team) error
	GetByID(ctx context.Context, id int) (*models.Team, error)
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.Team, error)
	// AddMember inserts the membership row and bumps member_count only
	// while member_count < teamSize.
	AddMember(ctx context.Context, teamID, tournamentID, userID, teamSize int) error
	RemoveMember(ctx context.Context, teamID, userID int) error
	// FindMembership returns (nil, nil) when the user is not rostered in
	// the tournament.
	FindMembership(ctx context.Context, tournamentID, userID int) (*models.TeamMember, error)
	ListMembers(ctx context.Context, teamID int) ([]models.TeamMember, error)
	UpdateSeeds(ctx context.Context, tournamentID int, seeds []TeamSeed) error
	// ApplyMatchResult credits the winner with a win (+3 points) and the
	// loser with a loss (+1 point), optionally eliminating the loser.
	ApplyMatchResult(ctx context.Context, winnerTeamID, loserTeamID int, eliminateLoser bool) error
}

type postgresTeamRepository struct {
	db *sql.DB
}

func NewPostgresTeamRepository(db *sql.DB) TeamRepository {
	return &postgresTeamRepository{db: db}
}

const teamColumns = `
	id, tournament_id, name, captain_user_id, member_count, wins, losses,
	points, seed, eliminated, created_at`

func scanTeam(row interface{ Scan(...interface{}) error }, t *models.Team) error {
	return row.Scan(
		&t.ID, &t.TournamentID, &t.Name, &t.CaptainUserID, &t.MemberCount,
		&t.Wins, &t.Losses, &t.Points, &t.Seed, &t.Eliminated, &t.CreatedAt,
	)
}

func (r *postgresTeamRepository) Create(ctx context.Context, team *models.Team) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		countQuery := `
			UPDATE tournaments SET team_count = team_count + 1
			WHERE id = $1 AND status = $2 AND team_count < max_teams`
		result, err := tx.ExecContext(ctx, countQuery, team.TournamentID, models.StatusOpenRegistration)
		if err != nil {
			return err
		}
		if err := checkAffectedRows(result, ErrTournamentCapacityReached); err != nil {
			return err
		}

		insertQuery := `
			INSERT INTO teams (tournament_id, name, captain_user_id, member_count)
			VALUES ($1, $2, $3, 1)
			RETURNING id, created_at`
		err = tx.QueryRowContext(ctx, insertQuery,
			team.TournamentID, team.Name, team.CaptainUserID,
		).Scan(&team.ID, &team.CreatedAt)
		if err != nil {
			return r.handleTeamError(err)
		}
		team.MemberCount = 1

		memberQuery := `
			INSERT INTO team_members (team_id, tournament_id, user_id)
			VALUES ($1, $2, $3)`
		if _, err := tx.ExecContext(ctx, memberQuery, team.ID, team.TournamentID, team.CaptainUserID); err != nil {
			return r.handleTeamError(err)
		}
		return nil
	})
}

func (r *postgresTeamRepository) GetByID(ctx context.Context, id int) (*models.Team, error) {
	query := `SELECT` + teamColumns + ` FROM teams WHERE id = $1`

	team := &models.Team{}
	err := scanTeam(r.db.QueryRowContext(ctx, query, id), team)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to scan team %d: %w", id, err)
	}
	return team, nil
}

func (r *postgresTeamRepository) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Team, error) {
	query := `SELECT` + teamColumns + `
		FROM teams WHERE tournament_id = $1
		ORDER BY seed ASC NULLS LAST, id ASC`

	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query teams for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	teams := make([]*models.Team, 0)
	for rows.Next() {
		var team models.Team
		if scanErr := scanTeam(rows, &team); scanErr != nil {
			return nil, scanErr
		}
		teams = append(teams, &team)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return teams, nil
}

func (r *postgresTeamRepository) AddMember(ctx context.Context, teamID, tournamentID, userID, teamSize int) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		countQuery := `
			UPDATE teams SET member_count = member_count + 1
			WHERE id = $1 AND member_count < $2`
		result, err := tx.ExecContext(ctx, countQuery, teamID, teamSize)
		if err != nil {
			return err
		}
		if err := checkAffectedRows(result, ErrTeamCapacityReached); err != nil {
			return err
		}

		memberQuery := `
			INSERT INTO team_members (team_id, tournament_id, user_id)
			VALUES ($1, $2, $3)`
		if _, err := tx.ExecContext(ctx, memberQuery, teamID, tournamentID, userID); err != nil {
			return r.handleTeamError(err)
		}
		return nil
	})
}

func (r *postgresTeamRepository) RemoveMember(ctx context.Context, teamID, userID int) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		deleteQuery := `DELETE FROM team_members WHERE team_id = $1 AND user_id = $2`
		result, err := tx.ExecContext(ctx, deleteQuery, teamID, userID)
		if err != nil {
			return err
		}
		if err := checkAffectedRows(result, ErrTeamMemberNotFound); err != nil {
			return err
		}

		countQuery := `UPDATE teams SET member_count = member_count - 1 WHERE id = $1`
		result, err = tx.ExecContext(ctx, countQuery, teamID)
		if err != nil {
			return err
		}
		return checkAffectedRows(result, ErrTeamNotFound)
	})
}

func (r *postgresTeamRepository) FindMembership(ctx context.Context, tournamentID, userID int) (*models.TeamMember, error) {
	query := `
		SELECT id, team_id, tournament_id, user_id, created_at
		FROM team_members
		WHERE tournament_id = $1 AND user_id = $2`

	member := &models.TeamMember{}
	err := r.db.QueryRowContext(ctx, query, tournamentID, userID).Scan(
		&member.ID, &member.TeamID, &member.TournamentID, &member.UserID, &member.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan membership: %w", err)
	}
	return member, nil
}

func (r *postgresTeamRepository) ListMembers(ctx context.Context, teamID int) ([]models.TeamMember, error) {
	query := `
		SELECT id, team_id, tournament_id, user_id, created_at
		FROM team_members WHERE team_id = $1
		ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]models.TeamMember, 0)
	for rows.Next() {
		var m models.TeamMember
		if scanErr := rows.Scan(&m.ID, &m.TeamID, &m.TournamentID, &m.UserID, &m.CreatedAt); scanErr != nil {
			return nil, scanErr
		}
		members = append(members, m)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return members, nil
}

func (r *postgresTeamRepository) UpdateSeeds(ctx context.Context, tournamentID int, seeds []TeamSeed) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		query := `UPDATE teams SET seed = $1 WHERE id = $2 AND tournament_id = $3`
		for _, s := range seeds {
			result, err := tx.ExecContext(ctx, query, s.Seed, s.TeamID, tournamentID)
			if err != nil {
				return err
			}
			if err := checkAffectedRows(result, ErrTeamNotFound); err != nil {
				return fmt.Errorf("failed to seed team %d: %w", s.TeamID, err)
			}
		}
		return nil
	})
}

func (r *postgresTeamRepository) ApplyMatchResult(ctx context.Context, winnerTeamID, loserTeamID int, eliminateLoser bool) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		winQuery := `UPDATE teams SET wins = wins + 1, points = points + 3 WHERE id = $1`
		result, err := tx.ExecContext(ctx, winQuery, winnerTeamID)
		if err != nil {
			return err
		}
		if err := checkAffectedRows(result, ErrTeamNotFound); err != nil {
			return err
		}

		lossQuery := `
			UPDATE teams SET losses = losses + 1, points = points + 1,
				eliminated = eliminated OR $2
			WHERE id = $1`
		result, err = tx.ExecContext(ctx, lossQuery, loserTeamID, eliminateLoser)
		if err != nil {
			return err
		}
		return checkAffectedRows(result, ErrTeamNotFound)
	})
}

func (r *postgresTeamRepository) handleTeamError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		switch pqErr.Constraint {
		case "teams_tournament_id_name_key":
			return ErrTeamNameConflict
		case "team_members_tournament_id_user_id_key":
			return ErrTeamMemberConflict
		}
	}
	return err
}
