package persist

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/piwi3910/CrateFit/internal/model"
	"github.com/piwi3910/CrateFit/internal/task"
)

func TestExportAndImportBackup(t *testing.T) {
	ctx := context.Background()
	archive := newTestArchive(t)
	for _, id := range []string{"t1", "t2"} {
		if err := archive.Save(ctx, completedSnapshot(id)); err != nil {
			t.Fatal(err)
		}
	}

	cfg := model.DefaultAppConfig()
	cfg.DefaultPopulationSize = 80
	path := filepath.Join(t.TempDir(), "out", "backup.json")

	if err := ExportArchive(ctx, path, cfg, archive); err != nil {
		t.Fatalf("ExportArchive failed: %v", err)
	}

	backup, err := ImportBackup(path)
	if err != nil {
		t.Fatalf("ImportBackup failed: %v", err)
	}
	if backup.Version != BackupVersion {
		t.Errorf("expected version %s, got %s", BackupVersion, backup.Version)
	}
	if backup.CreatedAt == "" {
		t.Error("expected CreatedAt to be set")
	}
	if backup.Config.DefaultPopulationSize != 80 {
		t.Errorf("expected population 80, got %d", backup.Config.DefaultPopulationSize)
	}
	if len(backup.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(backup.Tasks))
	}
}

func TestExportEmptyArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.json")
	if err := ExportArchive(context.Background(), path, model.DefaultAppConfig(), newTestArchive(t)); err != nil {
		t.Fatalf("ExportArchive failed: %v", err)
	}
	backup, err := ImportBackup(path)
	if err != nil {
		t.Fatalf("ImportBackup failed: %v", err)
	}
	if backup.Tasks == nil || len(backup.Tasks) != 0 {
		t.Errorf("expected empty task list, got %v", backup.Tasks)
	}
}

func TestImportBackupMissingVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.json")
	if err := os.WriteFile(path, []byte(`{"config":{}}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ImportBackup(path); err == nil {
		t.Fatal("expected error for missing version")
	}
}

func TestImportBackupInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.json")
	if err := os.WriteFile(path, []byte("{{{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ImportBackup(path); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestImportBackupMissingFile(t *testing.T) {
	if _, err := ImportBackup(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestRestoreBackupSkipsActiveTasks(t *testing.T) {
	ctx := context.Background()
	running := completedSnapshot("live")
	running.Status = task.StatusRunning
	running.Result = nil

	backup := BackupData{
		Version: BackupVersion,
		Tasks:   []task.Snapshot{completedSnapshot("done"), running},
	}
	archive := newTestArchive(t)

	n, err := RestoreBackup(ctx, archive, backup)
	if err != nil {
		t.Fatalf("RestoreBackup failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 restored task, got %d", n)
	}
	if _, err := archive.Load(ctx, "done"); err != nil {
		t.Errorf("restored task not found: %v", err)
	}
	if _, err := archive.Load(ctx, "live"); err != task.ErrNotFound {
		t.Errorf("active task should be skipped, got %v", err)
	}
}
