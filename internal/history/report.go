// SPDX-License-Identifier: MIT

package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/ManuGH/refcap/internal/log"
	"github.com/ManuGH/refcap/internal/model"
)

// WriteReport persists the final session record as an indented JSON
// file named run_<id>.json under reportDir, and returns the path.
// renameio stages a temp file, fsyncs and renames, so readers never
// observe a partial report.
func WriteReport(ctx context.Context, reportDir string, rec *model.SessionRecord) (string, error) {
	logger := log.FromContext(ctx)

	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	path := filepath.Join(reportDir, fmt.Sprintf("run_%s.json", rec.SessionID))

	pendingFile, err := renameio.NewPendingFile(path)
	if err != nil {
		return "", fmt.Errorf("create pending report file: %w", err)
	}
	defer func() {
		// renameio removes the temp file if it was never committed.
		if err := pendingFile.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending report file")
		}
	}()

	enc := json.NewEncoder(pendingFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return "", fmt.Errorf("write report data: %w", err)
	}

	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return "", fmt.Errorf("atomically replace report file: %w", err)
	}

	return path, nil
}
