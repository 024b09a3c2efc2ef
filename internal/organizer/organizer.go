// Package organizer orchestrates moving one classified file into its final
// library location (spec §4.9): load the TrackedFile, build its target path,
// validate the move is safe, record a rollback point, perform the move, and
// reflect the outcome back through FileService. Each step is traced and the
// whole call is one metrics-observed duration.
package organizer

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/chim331u/mediabutler/internal/errorclassifier"
	"github.com/chim331u/mediabutler/internal/filemover"
	"github.com/chim331u/mediabutler/internal/mberrors"
	"github.com/chim331u/mediabutler/internal/metrics"
	"github.com/chim331u/mediabutler/internal/model"
	"github.com/chim331u/mediabutler/internal/pathbuilder"
	"github.com/chim331u/mediabutler/internal/rollback"
	"github.com/chim331u/mediabutler/internal/tracing"
	"github.com/chim331u/mediabutler/internal/vfs"
)

const tracerName = "mediabutler/organizer"

// Repository is the narrow read port organizer needs to load a TrackedFile.
type Repository interface {
	GetByHash(ctx context.Context, hash string, includeInactive bool) (model.TrackedFile, bool, error)
}

// FileService is the subset of fileservice.Service organizer drives.
type FileService interface {
	Confirm(ctx context.Context, hash, category string) (model.TrackedFile, error)
	BeginMove(ctx context.Context, hash string) (model.TrackedFile, error)
	MarkMoved(ctx context.Context, hash, actualPath string) (model.TrackedFile, error)
	RecordError(ctx context.Context, hash, message, details string) (model.TrackedFile, error)
}

// Result is organize's success outcome.
type Result struct {
	TrackedFile model.TrackedFile
	RollbackID  string
	Receipt     filemover.MoveReceipt
}

// ValidationIssue is one safety-validate failure (spec §4.9 step 3).
type ValidationIssue struct {
	Code    string
	Message string
}

// PreviewResult is preview's non-mutating outcome (spec §4.9).
type PreviewResult struct {
	TargetPath       string
	IsSafe           bool
	ValidationIssues []ValidationIssue
	SiblingCount     int
	RequiredSpace    uint64
	AvailableSpace   uint64
}

// Organizer implements spec §4.9.
type Organizer struct {
	repo        Repository
	fs          vfs.FileSystem
	fileService FileService
	rollback    *rollback.Manager
	mover       *filemover.Mover
	pathOptions pathbuilder.Options
	metrics     *metrics.Registry
}

// New returns an Organizer. metricsReg may be nil (no-op observation).
func New(repo Repository, fs vfs.FileSystem, fileService FileService, rb *rollback.Manager, mover *filemover.Mover, pathOptions pathbuilder.Options, metricsReg *metrics.Registry) *Organizer {
	return &Organizer{repo: repo, fs: fs, fileService: fileService, rollback: rb, mover: mover, pathOptions: pathOptions, metrics: metricsReg}
}

// Organize runs the full 7-step pipeline for fileHash into category (spec §4.9).
func (o *Organizer) Organize(ctx context.Context, fileHash, category string) (Result, error) {
	start := time.Now()
	defer func() {
		if o.metrics != nil {
			o.metrics.OrganizeDurat.Observe(time.Since(start).Seconds())
		}
	}()

	// Step 1: load.
	ctx1, span1 := tracing.StartStep(ctx, tracerName, "organizer", 1, fileHash)
	tf, ok, err := o.repo.GetByHash(ctx1, fileHash, false)
	span1.End()
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, mberrors.New(mberrors.NotFound, "organizer.organize", "no tracked file for hash", nil)
	}

	// Step 2: build target path.
	_, span2 := tracing.StartStep(ctx, tracerName, "organizer", 2, fileHash)
	buildResult, err := pathbuilder.Build(o.fs, fileHash, tf.FileName, category, o.pathOptions)
	span2.End()
	if err != nil {
		return Result{}, mberrors.New(mberrors.Path, "organizer.organize", "failed to build target path", err)
	}
	if !buildResult.Report.OK() {
		return o.fail(ctx, fileHash, mberrors.New(mberrors.Path, "organizer.organize", fmt.Sprintf("path build reported issues: %v", buildResult.Report.Errors), nil))
	}

	// Step 3: safety-validate.
	ctx3, span3 := tracing.StartStep(ctx, tracerName, "organizer", 3, fileHash)
	issues := o.safetyValidate(ctx3, tf, buildResult.TargetPath)
	span3.End()
	if len(issues) > 0 {
		kind := mberrors.Validation
		for _, i := range issues {
			if i.Code == "SPACE" {
				kind = mberrors.Space
			}
		}
		return o.fail(ctx, fileHash, mberrors.New(kind, "organizer.organize", fmt.Sprintf("safety validation failed: %v", issues), nil))
	}

	// Step 4: rollback.create (best-effort).
	ctx4, span4 := tracing.StartStep(ctx, tracerName, "organizer", 4, fileHash)
	rollbackID, rbErr := o.rollback.Create(ctx4, fileHash, "MOVE", tf.OriginalPath, buildResult.TargetPath, "")
	span4.End()
	if rbErr != nil {
		rollbackID = "" // not fatal and not logged; the result carries an empty RollbackID
	}

	// A batch item (spec §4.12) may still be CLASSIFIED — never explicitly
	// confirmed — so drive it through CONFIRM here to reach READY_TO_MOVE
	// before BEGIN_MOVE fires; READY_TO_MOVE items skip straight through.
	if tf.Status == model.StatusClassified {
		if _, err := o.fileService.Confirm(ctx, fileHash, category); err != nil {
			return o.fail(ctx, fileHash, err)
		}
	}

	if _, err := o.fileService.BeginMove(ctx, fileHash); err != nil {
		return o.fail(ctx, fileHash, err)
	}

	// Step 5: move.
	ctx5, span5 := tracing.StartStep(ctx, tracerName, "organizer", 5, fileHash)
	receipt, moveErr := o.mover.Move(ctx5, tf.OriginalPath, buildResult.TargetPath)
	span5.End()
	if moveErr != nil {
		return o.fail(ctx, fileHash, moveErr)
	}
	if o.metrics != nil {
		o.metrics.MoveBytesTotal.Add(float64(receipt.FileSizeBytes))
	}

	// Step 6: success update.
	ctx6, span6 := tracing.StartStep(ctx, tracerName, "organizer", 6, fileHash)
	moved, err := o.fileService.MarkMoved(ctx6, fileHash, receipt.TargetPath)
	span6.End()
	if err != nil {
		return Result{}, err
	}

	return Result{TrackedFile: moved, RollbackID: rollbackID, Receipt: receipt}, nil
}

// fail runs step 7: classify the error and record it against the TrackedFile.
func (o *Organizer) fail(ctx context.Context, fileHash string, organizeErr error) (Result, error) {
	ctx7, span7 := tracing.StartStep(ctx, tracerName, "organizer", 7, fileHash)
	defer span7.End()

	classification := errorclassifier.Classify(ctx7, errorclassifier.ErrorContext{
		Err:           organizeErr,
		OperationType: "ORGANIZE",
		FileHash:      fileHash,
	})
	if o.metrics != nil && classification.CanRetry {
		o.metrics.RetryTotal.WithLabelValues("ORGANIZE").Inc()
	}
	if _, recErr := o.fileService.RecordError(ctx7, fileHash, classification.UserMessage, classification.TechnicalDetails); recErr != nil {
		return Result{}, recErr
	}
	return Result{}, organizeErr
}

// safetyValidate runs spec §4.9 step 3's checks without mutating anything:
// Preview (and, through it, batch_validate) shares this helper with Organize,
// so it must never create the target directory itself (spec §4.9: preview
// "never mutates"; §4.12: batch_validate "runs the pre-flight without
// executing"). Directory creation happens only inside filemover.Mover.Move,
// which Organize alone reaches in step 5 — if the target parent truly can't
// be created, that move fails there and is reported through RecordError.
func (o *Organizer) safetyValidate(ctx context.Context, tf model.TrackedFile, targetPath string) []ValidationIssue {
	var issues []ValidationIssue

	info, err := o.fs.Stat(tf.OriginalPath)
	if err != nil {
		issues = append(issues, ValidationIssue{Code: "SOURCE", Message: "source file does not exist or is unreadable: " + tf.OriginalPath})
		return issues
	}

	parent := filepath.Dir(targetPath)
	if free, err := o.fs.FreeSpace(parent); err == nil {
		required := uint64(float64(info.Size) * 1.1)
		if free < required {
			issues = append(issues, ValidationIssue{Code: "SPACE", Message: "insufficient free space at target volume"})
		}
	}

	if len(targetPath) > 240 {
		issues = append(issues, ValidationIssue{Code: "PATH_LENGTH", Message: "target path exceeds 240 characters"})
	}

	return issues
}

// Preview runs steps 1-3 plus sibling discovery and space computation,
// never mutating anything (spec §4.9).
func (o *Organizer) Preview(ctx context.Context, fileHash, category string) (PreviewResult, error) {
	tf, ok, err := o.repo.GetByHash(ctx, fileHash, false)
	if err != nil {
		return PreviewResult{}, err
	}
	if !ok {
		return PreviewResult{}, mberrors.New(mberrors.NotFound, "organizer.preview", "no tracked file for hash", nil)
	}

	buildResult, err := pathbuilder.Build(o.fs, fileHash, tf.FileName, category, o.pathOptions)
	if err != nil {
		return PreviewResult{}, mberrors.New(mberrors.Path, "organizer.preview", "failed to build target path", err)
	}

	var issues []ValidationIssue
	for _, e := range buildResult.Report.Errors {
		issues = append(issues, ValidationIssue{Code: "PATH", Message: e})
	}
	issues = append(issues, o.safetyValidate(ctx, tf, buildResult.TargetPath)...)

	siblingCount := 0
	if entries, err := o.fs.Enumerate(filepath.Dir(tf.OriginalPath)); err == nil {
		base := trimExt(filepath.Base(tf.OriginalPath))
		for _, e := range entries {
			if !e.IsDir && trimExt(e.Name) == base && e.Name != filepath.Base(tf.OriginalPath) {
				siblingCount++
			}
		}
	}

	required := uint64(float64(tf.FileSize) * 1.1)
	available, _ := o.fs.FreeSpace(filepath.Dir(buildResult.TargetPath))

	return PreviewResult{
		TargetPath:       buildResult.TargetPath,
		IsSafe:           len(issues) == 0,
		ValidationIssues: issues,
		SiblingCount:     siblingCount,
		RequiredSpace:    required,
		AvailableSpace:   available,
	}, nil
}

func trimExt(name string) string {
	ext := filepath.Ext(name)
	return name[:len(name)-len(ext)]
}
