// Package repository provides data access for solutions.
package repository

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fixdesk/hub/internal/huberrors"
	"github.com/fixdesk/hub/internal/models"
)

const solutionColumns = `solution_id, problem_description, solution_text, success_count, created_at, updated_at`

// SolutionsRepository handles data access for solutions.
type SolutionsRepository struct {
	db *pgxpool.Pool
}

// NewSolutionsRepository creates a new solutions repository.
func NewSolutionsRepository(db *pgxpool.Pool) *SolutionsRepository {
	return &SolutionsRepository{db: db}
}

// FindByProblem returns every solution stored for the exact problem description,
// highest success_count first. Ties have no defined order.
func (r *SolutionsRepository) FindByProblem(ctx context.Context, problem string) ([]models.Solution, error) {
	query := `
		SELECT ` + solutionColumns + `
		FROM solutions
		WHERE md5(problem_description) = md5($1::text) AND problem_description = $1
		ORDER BY success_count DESC
	`

	rows, err := r.db.Query(ctx, query, problem)
	if err != nil {
		return nil, huberrors.NewStoreReadError(fmt.Errorf("failed to find solutions: %w", err))
	}
	defer rows.Close()

	solutions := []models.Solution{}

	for rows.Next() {
		s, err := scanSolution(rows)
		if err != nil {
			return nil, huberrors.NewStoreReadError(fmt.Errorf("failed to scan solution: %w", err))
		}

		solutions = append(solutions, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, huberrors.NewStoreReadError(fmt.Errorf("error iterating solutions: %w", err))
	}

	return solutions, nil
}

// Insert persists a new solution with success_count 0 and returns it with the assigned id.
func (r *SolutionsRepository) Insert(ctx context.Context, problem, text string) (*models.Solution, error) {
	query := `
		INSERT INTO solutions (problem_description, solution_text, success_count)
		VALUES ($1, $2, 0)
		RETURNING ` + solutionColumns

	s, err := scanSolution(r.db.QueryRow(ctx, query, problem, text))
	if err != nil {
		return nil, huberrors.NewStoreWriteError(fmt.Errorf("failed to insert solution: %w", err))
	}

	return s, nil
}

// GetByID retrieves a single solution by id.
func (r *SolutionsRepository) GetByID(ctx context.Context, id models.SolutionID) (*models.Solution, error) {
	query := `
		SELECT ` + solutionColumns + `
		FROM solutions
		WHERE solution_id = $1
	`

	s, err := scanSolution(r.db.QueryRow(ctx, query, int64(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, huberrors.NewNotFoundError("solution", "solution not found")
		}

		return nil, huberrors.NewStoreReadError(fmt.Errorf("failed to get solution: %w", err))
	}

	return s, nil
}

// IncrementSuccess adds 1 to success_count once per occurrence of each id, all in one
// transaction. Each row is bumped by a single relative UPDATE so concurrent feedback is never
// lost, and rows are locked in ascending id order so overlapping batches cannot deadlock.
// Ids matching no row are returned in request order; they are not an error.
func (r *SolutionsRepository) IncrementSuccess(ctx context.Context, ids []models.SolutionID) ([]models.SolutionID, error) {
	query := `
		UPDATE solutions
		SET success_count = success_count + $2, updated_at = NOW()
		WHERE solution_id = $1
	`

	occurrences := make(map[models.SolutionID]int64, len(ids))
	for _, id := range ids {
		occurrences[id]++
	}

	found := make(map[models.SolutionID]bool, len(occurrences))

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		for _, id := range slices.Sorted(maps.Keys(occurrences)) {
			tag, err := tx.Exec(ctx, query, int64(id), occurrences[id])
			if err != nil {
				return fmt.Errorf("failed to increment solution %d: %w", id, err)
			}

			found[id] = tag.RowsAffected() > 0
		}

		return nil
	})
	if err != nil {
		return nil, huberrors.NewStoreWriteError(err)
	}

	var unknown []models.SolutionID

	for _, id := range ids {
		if !found[id] {
			unknown = append(unknown, id)
		}
	}

	return unknown, nil
}

func scanSolution(row pgx.Row) (*models.Solution, error) {
	var (
		s  models.Solution
		id int64
	)

	s.CreatedAt = new(time.Time)
	s.UpdatedAt = new(time.Time)

	if err := row.Scan(&id, &s.ProblemDescription, &s.SolutionText, &s.SuccessCount, s.CreatedAt, s.UpdatedAt); err != nil {
		return nil, err
	}

	sid := models.SolutionID(id)
	s.ID = &sid

	return &s, nil
}
