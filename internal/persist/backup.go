package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/piwi3910/CrateFit/internal/model"
	"github.com/piwi3910/CrateFit/internal/task"
)

// BackupVersion is written into every backup file.
const BackupVersion = "1.0.0"

// BackupData is the top-level structure for import/export of all application data.
type BackupData struct {
	Version   string          `json:"version"`
	CreatedAt string          `json:"created_at"`
	Config    model.AppConfig `json:"config"`
	Tasks     []task.Snapshot `json:"tasks"`
}

// ExportArchive writes the config and every archived task to a single
// JSON file at exportPath.
func ExportArchive(ctx context.Context, exportPath string, config model.AppConfig, archive task.Archive) error {
	tasks, err := archive.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}
	if tasks == nil {
		tasks = []task.Snapshot{}
	}
	backup := BackupData{
		Version:   BackupVersion,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Config:    config,
		Tasks:     tasks,
	}
	data, err := json.MarshalIndent(backup, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal backup data: %w", err)
	}

	dir := filepath.Dir(exportPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	if err := os.WriteFile(exportPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write backup file: %w", err)
	}
	return nil
}

// ImportBackup reads a backup JSON file and returns the contained data.
// The caller decides whether to apply the config and restore the tasks.
func ImportBackup(importPath string) (BackupData, error) {
	data, err := os.ReadFile(importPath)
	if err != nil {
		return BackupData{}, fmt.Errorf("failed to read backup file: %w", err)
	}
	var backup BackupData
	if err := json.Unmarshal(data, &backup); err != nil {
		return BackupData{}, fmt.Errorf("failed to parse backup file: %w", err)
	}
	if backup.Version == "" {
		return BackupData{}, fmt.Errorf("invalid backup file: missing version field")
	}
	if backup.Tasks == nil {
		backup.Tasks = []task.Snapshot{}
	}
	return backup, nil
}

// RestoreBackup saves every terminal task from backup into archive and
// returns how many were restored. Tasks that were still active when the
// backup was taken are skipped.
func RestoreBackup(ctx context.Context, archive task.Archive, backup BackupData) (int, error) {
	restored := 0
	for _, snap := range backup.Tasks {
		if !snap.Status.IsTerminal() {
			continue
		}
		if err := archive.Save(ctx, snap); err != nil {
			return restored, fmt.Errorf("failed to restore task %s: %w", snap.ID, err)
		}
		restored++
	}
	return restored, nil
}
