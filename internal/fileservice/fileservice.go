// Package fileservice is the only component that mutates a TrackedFile (spec
// §4.8). Every operation fires one transition on a per-call fsm.Machine
// seeded from the row's persisted status, performs its side effect as the
// fsm action (so a failing action leaves status unchanged), persists through
// one Store unit-of-work, and appends one ProcessingLog entry.
package fileservice

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/chim331u/mediabutler/internal/clock"
	"github.com/chim331u/mediabutler/internal/fsm"
	"github.com/chim331u/mediabutler/internal/mberrors"
	"github.com/chim331u/mediabutler/internal/model"
	"github.com/chim331u/mediabutler/internal/pathbuilder"
	"github.com/chim331u/mediabutler/internal/vfs"
)

// Event is one of FileService's state-machine edges (spec §4.8, plus the
// BeginMove/BeginRetry edges the distilled spec's operation list implies but
// never names, needed to complete the graph between Confirm/MarkMoved and
// between RecordError/reset-by-retry).
type Event string

const (
	EventClassify            Event = "CLASSIFY"
	EventConfirm             Event = "CONFIRM"
	EventBeginMove           Event = "BEGIN_MOVE"
	EventMarkMoved           Event = "MARK_MOVED"
	EventRecordErrorRetry    Event = "RECORD_ERROR_RETRY"
	EventRecordErrorTerminal Event = "RECORD_ERROR_TERMINAL"
	EventResetError          Event = "RESET_ERROR"
	EventIgnore              Event = "IGNORE"
	EventBeginRetry          Event = "BEGIN_RETRY"
)

var transitionTable = []fsm.Transition[model.Status, Event]{
	{From: model.StatusNew, Event: EventClassify, To: model.StatusClassified},
	{From: model.StatusProcessing, Event: EventClassify, To: model.StatusClassified},

	{From: model.StatusClassified, Event: EventConfirm, To: model.StatusReadyToMove},

	{From: model.StatusReadyToMove, Event: EventBeginMove, To: model.StatusMoving},
	{From: model.StatusMoving, Event: EventMarkMoved, To: model.StatusMoved},

	{From: model.StatusProcessing, Event: EventRecordErrorRetry, To: model.StatusRetry},
	{From: model.StatusReadyToMove, Event: EventRecordErrorRetry, To: model.StatusRetry},
	{From: model.StatusMoving, Event: EventRecordErrorRetry, To: model.StatusRetry},

	{From: model.StatusProcessing, Event: EventRecordErrorTerminal, To: model.StatusError},
	{From: model.StatusReadyToMove, Event: EventRecordErrorTerminal, To: model.StatusError},
	{From: model.StatusMoving, Event: EventRecordErrorTerminal, To: model.StatusError},

	{From: model.StatusError, Event: EventResetError, To: model.StatusNew},
	{From: model.StatusRetry, Event: EventResetError, To: model.StatusNew},

	{From: model.StatusRetry, Event: EventBeginRetry, To: model.StatusProcessing},

	{From: model.StatusNew, Event: EventIgnore, To: model.StatusIgnored},
	{From: model.StatusProcessing, Event: EventIgnore, To: model.StatusIgnored},
	{From: model.StatusClassified, Event: EventIgnore, To: model.StatusIgnored},
	{From: model.StatusReadyToMove, Event: EventIgnore, To: model.StatusIgnored},
	{From: model.StatusMoving, Event: EventIgnore, To: model.StatusIgnored},
	{From: model.StatusError, Event: EventIgnore, To: model.StatusIgnored},
	{From: model.StatusRetry, Event: EventIgnore, To: model.StatusIgnored},
}

// Repository is the persistence port FileService needs from Store.
type Repository interface {
	GetByHash(ctx context.Context, hash string, includeInactive bool) (model.TrackedFile, bool, error)
	InsertTrackedFile(ctx context.Context, tf model.TrackedFile) error
	UpdateTrackedFile(ctx context.Context, tf model.TrackedFile) error
	AppendLog(ctx context.Context, log model.ProcessingLog) error
}

// Service implements spec §4.8's operations.
type Service struct {
	repo        Repository
	fs          vfs.FileSystem
	clock       clock.Clock
	maxRetry    int
	pathOptions pathbuilder.Options
}

// New returns a Service. maxRetry is spec §3's MAX_RETRY (default 3).
func New(repo Repository, fs vfs.FileSystem, c clock.Clock, maxRetry int, pathOptions pathbuilder.Options) *Service {
	return &Service{repo: repo, fs: fs, clock: c, maxRetry: maxRetry, pathOptions: pathOptions}
}

func newMachine(initial model.Status) *fsm.Machine[model.Status, Event] {
	return fsm.New(initial, transitionTable)
}

// Register computes the file's SHA-256 and inserts it at NEW, or returns the
// existing row unchanged if one is already tracked for that hash (spec §4.8).
func (s *Service) Register(ctx context.Context, path string, fileName string, fileSize int64) (model.TrackedFile, error) {
	hash, err := s.hashFile(path)
	if err != nil {
		return model.TrackedFile{}, mberrors.New(mberrors.Path, "fileservice.register", "failed to hash file", err)
	}

	existing, ok, err := s.repo.GetByHash(ctx, hash, true)
	if err != nil {
		return model.TrackedFile{}, err
	}
	if ok {
		return existing, nil
	}

	tf := model.TrackedFile{
		Hash:         hash,
		OriginalPath: path,
		FileName:     fileName,
		FileSize:     fileSize,
		Status:       model.StatusNew,
		Audit:        model.Audit{Active: true},
	}
	if err := s.repo.InsertTrackedFile(ctx, tf); err != nil {
		return model.TrackedFile{}, err
	}
	s.logInfo(ctx, hash, "FILE_DISCOVERY", "registered new file", 0)
	return tf, nil
}

func (s *Service) hashFile(path string) (string, error) {
	r, err := s.fs.Open(path)
	if err != nil {
		return "", err
	}
	defer r.Close()

	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// UpdateClassification moves NEW|PROCESSING -> CLASSIFIED (spec §4.8).
func (s *Service) UpdateClassification(ctx context.Context, hash, suggestedCategory string, confidence float64) (model.TrackedFile, error) {
	return s.transition(ctx, hash, EventClassify, func(tf *model.TrackedFile) error {
		now := s.clock.NowUTC()
		tf.SuggestedCategory = suggestedCategory
		tf.Confidence = confidence
		tf.ClassifiedAt = &now
		return nil
	}, "CLASSIFICATION", "classified")
}

// Confirm moves CLASSIFIED -> READY_TO_MOVE, computing target_path via
// PathBuilder; a PathBuilder failure leaves the row unchanged (spec §4.8).
func (s *Service) Confirm(ctx context.Context, hash, category string) (model.TrackedFile, error) {
	return s.transition(ctx, hash, EventConfirm, func(tf *model.TrackedFile) error {
		result, err := pathbuilder.Build(s.fs, hash, tf.FileName, category, s.pathOptions)
		if err != nil {
			return mberrors.New(mberrors.Path, "fileservice.confirm", "failed to build target path", err)
		}
		if !result.Report.OK() {
			return mberrors.New(mberrors.Path, "fileservice.confirm", fmt.Sprintf("path build reported issues: %v", result.Report.Errors), nil)
		}
		tf.Category = category
		tf.TargetPath = result.TargetPath
		return nil
	}, "CONFIRMATION", "confirmed")
}

// BeginMove moves READY_TO_MOVE -> MOVING; called by Organizer immediately
// before invoking FileMover.
func (s *Service) BeginMove(ctx context.Context, hash string) (model.TrackedFile, error) {
	return s.transition(ctx, hash, EventBeginMove, func(tf *model.TrackedFile) error {
		return nil
	}, "ORGANIZATION", "move started")
}

// MarkMoved moves MOVING -> MOVED, recording the actual target path (spec §4.8).
func (s *Service) MarkMoved(ctx context.Context, hash, actualPath string) (model.TrackedFile, error) {
	return s.transition(ctx, hash, EventMarkMoved, func(tf *model.TrackedFile) error {
		now := s.clock.NowUTC()
		tf.MovedToPath = actualPath
		tf.MovedAt = &now
		return nil
	}, "ORGANIZATION", "moved")
}

// RecordError increments retry_count and transitions to ERROR (once
// retry_count reaches maxRetry) or RETRY otherwise (spec §4.8). A row already
// in ERROR is returned unchanged.
func (s *Service) RecordError(ctx context.Context, hash, message, details string) (model.TrackedFile, error) {
	tf, ok, err := s.repo.GetByHash(ctx, hash, false)
	if err != nil {
		return model.TrackedFile{}, err
	}
	if !ok {
		return model.TrackedFile{}, mberrors.New(mberrors.NotFound, "fileservice.record_error", "no tracked file for hash", nil)
	}
	if tf.Status == model.StatusError {
		return tf, nil
	}

	nextRetryCount := tf.RetryCount + 1
	event := EventRecordErrorRetry
	if nextRetryCount >= s.maxRetry {
		event = EventRecordErrorTerminal
	}

	return s.transition(ctx, hash, event, func(tf *model.TrackedFile) error {
		now := s.clock.NowUTC()
		tf.RetryCount = nextRetryCount
		tf.LastError = message
		tf.LastErrorAt = &now
		return nil
	}, "ERROR_HANDLING", details)
}

// ResetError moves ERROR|RETRY -> NEW, clearing error fields (spec §4.8).
func (s *Service) ResetError(ctx context.Context, hash string) (model.TrackedFile, error) {
	return s.transition(ctx, hash, EventResetError, func(tf *model.TrackedFile) error {
		tf.RetryCount = 0
		tf.LastError = ""
		tf.LastErrorAt = nil
		return nil
	}, "ERROR_HANDLING", "error reset")
}

// BeginRetry moves RETRY -> PROCESSING; called by the Queue when re-enqueuing
// a job after a retryable failure's backoff elapses.
func (s *Service) BeginRetry(ctx context.Context, hash string) (model.TrackedFile, error) {
	return s.transition(ctx, hash, EventBeginRetry, func(tf *model.TrackedFile) error {
		return nil
	}, "ERROR_HANDLING", "retrying")
}

// Ignore moves any non-MOVED state to IGNORED (spec §4.8).
func (s *Service) Ignore(ctx context.Context, hash string) (model.TrackedFile, error) {
	tf, ok, err := s.repo.GetByHash(ctx, hash, false)
	if err != nil {
		return model.TrackedFile{}, err
	}
	if !ok {
		return model.TrackedFile{}, mberrors.New(mberrors.NotFound, "fileservice.ignore", "no tracked file for hash", nil)
	}
	if tf.Status == model.StatusMoved {
		return model.TrackedFile{}, mberrors.New(mberrors.IllegalTransition, "fileservice.ignore", "a moved file cannot be ignored", nil)
	}
	return s.transition(ctx, hash, EventIgnore, func(tf *model.TrackedFile) error { return nil }, "LIFECYCLE", "ignored")
}

// SoftDelete sets active = false (spec §4.8); no fsm transition involved.
func (s *Service) SoftDelete(ctx context.Context, hash, reason string) error {
	tf, ok, err := s.repo.GetByHash(ctx, hash, false)
	if err != nil {
		return err
	}
	if !ok {
		return mberrors.New(mberrors.NotFound, "fileservice.soft_delete", "no tracked file for hash", nil)
	}
	tf.Active = false
	tf.Note = reason
	if err := s.repo.UpdateTrackedFile(ctx, tf); err != nil {
		return err
	}
	s.logInfo(ctx, hash, "LIFECYCLE", "soft-deleted: "+reason, 0)
	return nil
}

// transition loads the row, fires event through an ephemeral Machine seeded
// at the row's persisted status (mutate runs as the fsm action, so a mutate
// error leaves the row untouched), persists the result, and appends one log.
func (s *Service) transition(ctx context.Context, hash string, event Event, mutate func(tf *model.TrackedFile) error, logCategory, logMessage string) (model.TrackedFile, error) {
	tf, ok, err := s.repo.GetByHash(ctx, hash, false)
	if err != nil {
		return model.TrackedFile{}, err
	}
	if !ok {
		return model.TrackedFile{}, mberrors.New(mberrors.NotFound, "fileservice.transition", "no tracked file for hash", nil)
	}

	machine := newMachine(tf.Status)
	next := tf

	finalState, err := machine.Fire(event, func(from, to model.Status) error {
		if mutateErr := mutate(&next); mutateErr != nil {
			return mutateErr
		}
		next.Status = to
		return s.repo.UpdateTrackedFile(ctx, next)
	})
	if err != nil {
		var noTransition *fsm.ErrNoTransition[model.Status, Event]
		if asNoTransition(err, &noTransition) {
			return model.TrackedFile{}, mberrors.New(mberrors.IllegalTransition, "fileservice.transition", fmt.Sprintf("cannot fire %s from %s", event, tf.Status), err)
		}
		return model.TrackedFile{}, err
	}

	next.Status = finalState
	s.logInfo(ctx, hash, logCategory, logMessage, 0)
	return next, nil
}

func asNoTransition(err error, target **fsm.ErrNoTransition[model.Status, Event]) bool {
	e, ok := err.(*fsm.ErrNoTransition[model.Status, Event])
	if !ok {
		return false
	}
	*target = e
	return true
}

func (s *Service) logInfo(ctx context.Context, hash, category, message string, durationMS int64) {
	_ = s.repo.AppendLog(ctx, model.ProcessingLog{
		FileHash: hash, Level: model.LogInfo, Category: category, Message: message, DurationMS: durationMS,
	})
}
