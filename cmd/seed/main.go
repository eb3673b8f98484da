// Command seed pre-loads solutions from a CSV file with the columns
// problem_description,solution_text. Rows are inserted with a success count of 0.
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fixdesk/hub/internal/config"
	"github.com/fixdesk/hub/internal/models"
	"github.com/fixdesk/hub/internal/observability"
	"github.com/fixdesk/hub/internal/repository"
	"github.com/fixdesk/hub/pkg/database"
)

var (
	errMissingColumns = errors.New("header must contain problem_description and solution_text")
	errBlankField     = errors.New("problem_description and solution_text must not be blank")
)

type seedRow struct {
	line     int
	problem  string
	solution string
}

type solutionInserter interface {
	Insert(ctx context.Context, problem, solutionText string) (*models.Solution, error)
}

func main() {
	file := flag.String("file", "", "path to the CSV file (default: stdin)")
	dryRun := flag.Bool("dry-run", false, "validate the file without writing")
	flag.Parse()

	os.Exit(run(*file, *dryRun))
}

func run(path string, dryRun bool) int {
	ctx := context.Background()

	cfg := config.LoadUnvalidated()

	slog.SetDefault(observability.NewLogger(os.Stderr, cfg.LogLevel))

	var in io.Reader = os.Stdin

	if path != "" {
		f, err := os.Open(path) //nolint:gosec // operator-supplied path
		if err != nil {
			slog.Error("Failed to open seed file", "path", path, "error", err)

			return 1
		}
		defer f.Close()

		in = f
	}

	rows, err := readSeedRows(in)
	if err != nil {
		slog.Error("Invalid seed file", "error", err)

		return 1
	}

	if dryRun {
		slog.Info("Seed file is valid", "rows", len(rows))

		return 0
	}

	db, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)

		return 1
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		slog.Error("Failed to apply migrations", "error", err)

		return 1
	}

	inserted, err := seed(ctx, repository.NewSolutionsRepository(db), rows)
	if err != nil {
		slog.Error("Seeding stopped", "inserted", inserted, "error", err)

		return 1
	}

	slog.Info("Seeding complete", "inserted", inserted)

	return 0
}

// readSeedRows parses a header row followed by data rows. Column order is taken from the header;
// extra columns are ignored. Fields are trimmed and must be non-blank.
func readSeedRows(r io.Reader) ([]seedRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	problemCol, solutionCol := -1, -1

	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case "problem_description":
			problemCol = i
		case "solution_text":
			solutionCol = i
		}
	}

	if problemCol < 0 || solutionCol < 0 {
		return nil, errMissingColumns
	}

	var rows []seedRow

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		line, _ := reader.FieldPos(0)

		if problemCol >= len(record) || solutionCol >= len(record) {
			return nil, fmt.Errorf("line %d: %w", line, errMissingColumns)
		}

		row := seedRow{
			line:     line,
			problem:  strings.TrimSpace(record[problemCol]),
			solution: strings.TrimSpace(record[solutionCol]),
		}
		if row.problem == "" || row.solution == "" {
			return nil, fmt.Errorf("line %d: %w", line, errBlankField)
		}

		rows = append(rows, row)
	}

	return rows, nil
}

// seed inserts rows in order and stops at the first store error.
func seed(ctx context.Context, store solutionInserter, rows []seedRow) (int, error) {
	for i, row := range rows {
		if _, err := store.Insert(ctx, row.problem, row.solution); err != nil {
			return i, fmt.Errorf("line %d: %w", row.line, err)
		}
	}

	return len(rows), nil
}
