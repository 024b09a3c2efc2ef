// Package rollback creates, validates and executes RollbackPoints so a
// completed Organizer move can be reversed (spec §4.6). Each active point is
// mirrored to a durable JSON sidecar file (written atomically via renameio)
// alongside the Store record, so a crash between "move succeeded" and "Store
// commit" still leaves a recoverable trail on disk (SPEC_FULL.md D.3).
package rollback

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/chim331u/mediabutler/internal/mberrors"
	"github.com/chim331u/mediabutler/internal/model"
	"github.com/chim331u/mediabutler/internal/vfs"
)

// Repository is the persistence port rollback needs from Store (spec §4.7's
// rollback_points table). Store implements this against SQLite; tests use an
// in-memory fake.
type Repository interface {
	Insert(ctx context.Context, rp model.RollbackPoint) error
	Get(ctx context.Context, id string) (model.RollbackPoint, bool, error)
	NewestActiveByHash(ctx context.Context, fileHash string) (model.RollbackPoint, bool, error)
	SoftDelete(ctx context.Context, id string) error
	ActiveOlderThan(ctx context.Context, cutoff time.Time) ([]model.RollbackPoint, error)
}

// ValidationReport is validate's pre-flight result (spec §4.6).
type ValidationReport struct {
	SuccessProbability float64
	Issues             []string
}

func (r ValidationReport) OK() bool { return len(r.Issues) == 0 }

// Manager implements spec §4.6's create/execute/validate/cleanup/rollback_last.
type Manager struct {
	repo      Repository
	fs        vfs.FileSystem
	sidecarDir string
	mu        sync.Mutex
}

// New returns a Manager. sidecarDir, if non-empty, receives a durable JSON
// manifest per active rollback point (D.3); pass "" to skip sidecar mirroring.
func New(repo Repository, fs vfs.FileSystem, sidecarDir string) *Manager {
	return &Manager{repo: repo, fs: fs, sidecarDir: sidecarDir}
}

// Create persists a RollbackPoint before the Organizer invokes FileMover
// (spec §4.6). Best-effort: a sidecar-write failure is not fatal.
func (m *Manager) Create(ctx context.Context, fileHash, operationType, original, target, info string) (string, error) {
	id := uuid.NewString()
	rp := model.RollbackPoint{
		ID:            id,
		FileHash:      fileHash,
		OperationType: operationType,
		OriginalPath:  original,
		TargetPath:    target,
		Info:          info,
		CreatedAt:     time.Now().UTC(),
		Active:        true,
	}

	if err := m.repo.Insert(ctx, rp); err != nil {
		return "", mberrors.New(mberrors.Transient, "rollback.create", "failed to persist rollback point", err)
	}

	m.writeSidecar(rp) // best-effort
	return id, nil
}

// Execute validates and, on success, moves target back to original and
// soft-deletes the point (spec §4.6).
func (m *Manager) Execute(ctx context.Context, rollbackID string, forceOverwrite bool) error {
	rp, ok, err := m.repo.Get(ctx, rollbackID)
	if err != nil {
		return mberrors.New(mberrors.Transient, "rollback.execute", "failed to load rollback point", err)
	}
	if !ok || !rp.Active {
		return mberrors.New(mberrors.NotFound, "rollback.execute", "rollback point not found or already applied", nil)
	}

	report := m.validateInternal(rp, forceOverwrite)
	if !report.OK() {
		return mberrors.New(mberrors.Conflict, "rollback.execute", fmt.Sprintf("rollback validation failed: %v", report.Issues), nil)
	}

	if err := m.fs.Rename(rp.TargetPath, rp.OriginalPath); err != nil {
		return mberrors.New(mberrors.Transient, "rollback.execute", "failed to move file back to its original path", err)
	}

	if err := m.repo.SoftDelete(ctx, rp.ID); err != nil {
		return mberrors.New(mberrors.Transient, "rollback.execute", "file restored but rollback point not marked inactive", err)
	}
	m.removeSidecar(rp.ID)
	return nil
}

// Validate returns a pre-flight report without mutating anything (spec §4.6).
func (m *Manager) Validate(ctx context.Context, rollbackID string) (ValidationReport, error) {
	rp, ok, err := m.repo.Get(ctx, rollbackID)
	if err != nil {
		return ValidationReport{}, mberrors.New(mberrors.Transient, "rollback.validate", "failed to load rollback point", err)
	}
	if !ok {
		return ValidationReport{}, mberrors.New(mberrors.NotFound, "rollback.validate", "rollback point not found", nil)
	}
	return m.validateInternal(rp, false), nil
}

func (m *Manager) validateInternal(rp model.RollbackPoint, forceOverwrite bool) ValidationReport {
	var issues []string

	if _, err := m.fs.Stat(rp.TargetPath); err != nil {
		issues = append(issues, "target file no longer exists at "+rp.TargetPath)
	}

	parent := filepath.Dir(rp.OriginalPath)
	if _, err := m.fs.Enumerate(parent); err != nil {
		issues = append(issues, "original parent directory no longer exists: "+parent)
	}

	if !forceOverwrite {
		if _, err := m.fs.Stat(rp.OriginalPath); err == nil {
			issues = append(issues, "a file already exists at the original path "+rp.OriginalPath)
		}
	}

	prob := 1.0
	if len(issues) > 0 {
		prob = 0.0
	}
	return ValidationReport{SuccessProbability: prob, Issues: issues}
}

// Cleanup soft-deletes active points older than cutoff (spec §4.6).
func (m *Manager) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	expired, err := m.repo.ActiveOlderThan(ctx, olderThan)
	if err != nil {
		return 0, mberrors.New(mberrors.Transient, "rollback.cleanup", "failed to list expired rollback points", err)
	}
	count := 0
	for _, rp := range expired {
		if err := m.repo.SoftDelete(ctx, rp.ID); err != nil {
			continue
		}
		m.removeSidecar(rp.ID)
		count++
	}
	return count, nil
}

// RollbackLast picks the newest active point for fileHash and executes it
// (spec §4.6).
func (m *Manager) RollbackLast(ctx context.Context, fileHash string) error {
	rp, ok, err := m.repo.NewestActiveByHash(ctx, fileHash)
	if err != nil {
		return mberrors.New(mberrors.Transient, "rollback.rollback_last", "failed to find rollback point", err)
	}
	if !ok {
		return mberrors.New(mberrors.NotFound, "rollback.rollback_last", "no active rollback point for hash", nil)
	}
	return m.Execute(ctx, rp.ID, false)
}

// sidecarManifest is the durable on-disk mirror of an active RollbackPoint.
type sidecarManifest struct {
	ID            string    `json:"id"`
	FileHash      string    `json:"file_hash"`
	OperationType string    `json:"operation_type"`
	OriginalPath  string    `json:"original_path"`
	TargetPath    string    `json:"target_path"`
	Info          string    `json:"info"`
	CreatedAt     time.Time `json:"created_at"`
}

func (m *Manager) sidecarPath(id string) string {
	return filepath.Join(m.sidecarDir, id+".json")
}

func (m *Manager) writeSidecar(rp model.RollbackPoint) {
	if m.sidecarDir == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.sidecarDir, 0o755); err != nil {
		return
	}

	data, err := json.Marshal(sidecarManifest{
		ID: rp.ID, FileHash: rp.FileHash, OperationType: rp.OperationType,
		OriginalPath: rp.OriginalPath, TargetPath: rp.TargetPath,
		Info: rp.Info, CreatedAt: rp.CreatedAt,
	})
	if err != nil {
		return
	}

	pf, err := renameio.NewPendingFile(m.sidecarPath(rp.ID))
	if err != nil {
		return
	}
	defer pf.Cleanup()

	if _, err := pf.Write(data); err != nil {
		return
	}
	_ = pf.CloseAtomicallyReplace()
}

func (m *Manager) removeSidecar(id string) {
	if m.sidecarDir == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = os.Remove(m.sidecarPath(id))
}

// RecoverSidecars lists manifests present on disk but not reflected as
// active points in repo — evidence of a crash between file move and Store
// commit — for operator inspection on startup.
func (m *Manager) RecoverSidecars(ctx context.Context) ([]model.RollbackPoint, error) {
	if m.sidecarDir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(m.sidecarDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []model.RollbackPoint
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.sidecarDir, e.Name()))
		if err != nil {
			continue
		}
		var sm sidecarManifest
		if err := json.Unmarshal(data, &sm); err != nil {
			continue
		}
		if rp, found, err := m.repo.Get(ctx, sm.ID); err == nil && found && rp.Active {
			continue
		}
		out = append(out, model.RollbackPoint{
			ID: sm.ID, FileHash: sm.FileHash, OperationType: sm.OperationType,
			OriginalPath: sm.OriginalPath, TargetPath: sm.TargetPath,
			Info: sm.Info, CreatedAt: sm.CreatedAt, Active: true,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
