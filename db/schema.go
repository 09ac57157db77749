package db

import (
	"context"
	"database/sql"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/metagnosis/errors"
)

// ApplySchema executes every statement of a DDL script in one transaction.
// Scripts are expected to use IF NOT EXISTS so repeated calls are no-ops.
// If logger is provided, logs the number of statements applied; callers
// pass a logger already tagged with their symbol.
func ApplySchema(ctx context.Context, database *sql.DB, schema string, logger *zap.SugaredLogger) error {
	statements := SplitStatements(schema)
	if len(statements) == 0 {
		return nil
	}

	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin schema transaction")
	}

	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = errors.WithSecondaryError(err, rbErr)
			}
			return errors.Wrapf(err, "apply schema statement %d", i+1)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit schema")
	}

	if logger != nil {
		logger.Debugw("Schema applied", "statements", len(statements))
	}
	return nil
}

// SplitStatements splits a DDL script on semicolons, dropping blank
// statements and full-line "--" comments. Semicolons inside string
// literals are not supported.
func SplitStatements(schema string) []string {
	var out []string
	for _, raw := range strings.Split(schema, ";") {
		var lines []string
		for _, line := range strings.Split(raw, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "--") {
				continue
			}
			lines = append(lines, line)
		}
		stmt := strings.TrimSpace(strings.Join(lines, "\n"))
		if stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
