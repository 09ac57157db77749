package commands

import (
	"database/sql"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/teranos/metagnosis/am"
	"github.com/teranos/metagnosis/db"
	"github.com/teranos/metagnosis/errors"
)

// loadConfig loads and validates the active configuration.
func loadConfig() (*am.Config, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.NewFatalConfigError(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openDatabase opens the configured database, creating its directory.
func openDatabase(cfg *am.Config, log *zap.SugaredLogger) (*sql.DB, error) {
	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, am.DefaultDirPermissions); err != nil {
			return nil, errors.Wrapf(err, "failed to create %s", dir)
		}
	}
	return db.Open(cfg.Database.Path, log)
}
