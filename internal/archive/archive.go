package archive

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"stockwatch/internal/config"
	"stockwatch/internal/domain"
)

// Archiver persists raw pages and reading snapshots for offline inspection.
// Both operations are best-effort side effects: failures are logged by the
// implementation and never surface to the fetch/parse critical path.
// Params: strategy name with raw body, or one reading set.
// Returns: none; delivery is fire-and-forget by contract.
type Archiver interface {
	SavePage(strategy string, body []byte)
	SaveSnapshot(readings []domain.Reading)
}

// FileArchiver writes debug pages and goods snapshots to local directories.
// Params: archive config and logger.
// Returns: filesystem-backed archiver.
type FileArchiver struct {
	dir      string
	pagesDir string
	logger   *slog.Logger
}

// Nop is an archiver that drops everything.
// Params: none.
// Returns: no-op archiver used when archiving is disabled.
type Nop struct{}

// SavePage drops the page body.
// Params: strategy name and raw body.
// Returns: none.
func (Nop) SavePage(string, []byte) {}

// SaveSnapshot drops the reading set.
// Params: reading slice.
// Returns: none.
func (Nop) SaveSnapshot([]domain.Reading) {}

// New builds an archiver from configuration.
// Params: archive config and logger.
// Returns: file archiver, or Nop when archiving is disabled.
func New(cfg config.ArchiveConfig, logger *slog.Logger) Archiver {
	if !cfg.Enabled {
		return Nop{}
	}
	return &FileArchiver{
		dir:      cfg.Dir,
		pagesDir: cfg.PagesDir,
		logger:   logger,
	}
}

// SavePage writes one raw retrieved page for offline inspection.
// One file per strategy: the latest retrieval wins.
// Params: strategy name and raw document body.
// Returns: none; write failures are logged only.
func (a *FileArchiver) SavePage(strategy string, body []byte) {
	path := filepath.Join(a.pagesDir, fmt.Sprintf("page_%s.html", strategy))
	if err := writeFile(a.pagesDir, path, body); err != nil {
		a.logger.Warn("page archive failed", "strategy", strategy, "error", err.Error())
		return
	}
	a.logger.Debug("page archived", "strategy", strategy, "path", path, "bytes", len(body))
}

// SaveSnapshot writes the latest reading set as goods.json.
// Params: reading slice from one successful acquisition.
// Returns: none; write failures are logged only.
func (a *FileArchiver) SaveSnapshot(readings []domain.Reading) {
	encoded, err := json.MarshalIndent(readings, "", "    ")
	if err != nil {
		a.logger.Warn("snapshot encode failed", "error", err.Error())
		return
	}
	path := filepath.Join(a.dir, "goods.json")
	if err := writeFile(a.dir, path, encoded); err != nil {
		a.logger.Warn("snapshot archive failed", "error", err.Error())
		return
	}
	a.logger.Debug("snapshot archived", "path", path, "readings", len(readings))
}

// writeFile ensures the directory exists and writes one file.
// Params: directory, file path, and payload.
// Returns: mkdir or write error.
func writeFile(dir, path string, payload []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %q: %w", dir, err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write %q: %w", path, err)
	}
	return nil
}
