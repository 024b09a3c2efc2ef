// Package filemover implements the core's single-file move + sibling move
// with pre-flight checks and partial-failure semantics (spec §4.4).
package filemover

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/chim331u/mediabutler/internal/mberrors"
	"github.com/chim331u/mediabutler/internal/vfs"
)

// siblingExtensions are the extensions considered a "related file" of a
// primary video file (spec §4.4).
var siblingExtensions = map[string]bool{
	".srt": true, ".sub": true, ".ass": true, ".nfo": true, ".jpg": true, ".png": true,
}

const copyBufferSize = 32 * 1024
const spaceSafetyFactor = 1.1

// MoveReceipt is FileMover.Move's success result (spec §4.4).
type MoveReceipt struct {
	TargetPath     string
	FileSizeBytes  int64
	SiblingsMoved  []string
	SiblingsFailed []SiblingFailure
	DurationMS     int64
}

// SiblingFailure records a non-fatal sibling move error.
type SiblingFailure struct {
	Path string
	Err  error
}

// Mover moves files through a vfs.FileSystem.
type Mover struct {
	FS vfs.FileSystem
}

// New returns a Mover backed by fsys.
func New(fsys vfs.FileSystem) *Mover {
	return &Mover{FS: fsys}
}

// Move performs the pre-flight checks, moves source to target, then moves
// any sibling files discovered alongside source (spec §4.4).
func (m *Mover) Move(ctx context.Context, source, target string) (MoveReceipt, error) {
	start := time.Now()

	info, err := m.FS.Stat(source)
	if err != nil {
		return MoveReceipt{}, mberrors.New(mberrors.Path, "filemover.move", "source does not exist or is unreadable", err)
	}

	parent := filepath.Dir(target)
	if err := m.FS.MkdirAll(parent, 0o755); err != nil {
		return MoveReceipt{}, mberrors.New(mberrors.Permission, "filemover.move", "cannot create target parent directory", err)
	}

	free, err := m.FS.FreeSpace(parent)
	if err == nil {
		required := uint64(float64(info.Size) * spaceSafetyFactor)
		if free < required {
			return MoveReceipt{}, mberrors.New(mberrors.Space, "filemover.move", "insufficient free space at target volume", nil)
		}
	}

	if err := m.moveOne(ctx, source, target); err != nil {
		return MoveReceipt{}, err
	}

	receipt := MoveReceipt{TargetPath: target, FileSizeBytes: info.Size}

	siblings, siblingErr := m.discoverSiblings(source)
	if siblingErr == nil {
		for _, sib := range siblings {
			sibTarget := deriveSiblingTarget(target, source, sib)
			if err := m.moveOne(ctx, sib, sibTarget); err != nil {
				receipt.SiblingsFailed = append(receipt.SiblingsFailed, SiblingFailure{Path: sib, Err: err})
				continue
			}
			receipt.SiblingsMoved = append(receipt.SiblingsMoved, sibTarget)
		}
	}

	receipt.DurationMS = time.Since(start).Milliseconds()
	return receipt, nil
}

// discoverSiblings finds files in source's directory sharing its
// basename-without-extension and carrying a recognized sibling extension.
func (m *Mover) discoverSiblings(source string) ([]string, error) {
	dir := filepath.Dir(source)
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))

	entries, err := m.FS.Enumerate(dir)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		ext := filepath.Ext(e.Name)
		if !siblingExtensions[strings.ToLower(ext)] {
			continue
		}
		if strings.TrimSuffix(e.Name, ext) != base {
			continue
		}
		candidate := filepath.Join(dir, e.Name)
		if candidate == source {
			continue
		}
		out = append(out, candidate)
	}
	return out, nil
}

func deriveSiblingTarget(primaryTarget, primarySource, sibling string) string {
	sibExt := filepath.Ext(sibling)
	targetBase := strings.TrimSuffix(filepath.Base(primaryTarget), filepath.Ext(primaryTarget))
	return filepath.Join(filepath.Dir(primaryTarget), targetBase+sibExt)
}

// moveOne moves a single file: rename if same volume, else stream-copy +
// close + delete source, cleaning up a partial destination on failure. The
// copy is not fsynced before the source is removed.
func (m *Mover) moveOne(ctx context.Context, source, target string) error {
	sameVolume, err := m.FS.SameVolume(source, filepath.Dir(target))
	if err == nil && sameVolume {
		if err := m.FS.Rename(source, target); err == nil {
			return nil
		}
		// fall through to copy+delete if rename failed for a recoverable reason
	}
	return m.copyThenDelete(ctx, source, target)
}

func (m *Mover) copyThenDelete(ctx context.Context, source, target string) error {
	src, err := m.FS.Open(source)
	if err != nil {
		return mberrors.New(mberrors.Path, "filemover.copy", "cannot open source", err)
	}
	defer src.Close()

	dst, err := m.FS.Create(target)
	if err != nil {
		return mberrors.New(mberrors.Permission, "filemover.copy", "cannot create target", err)
	}

	if err := streamCopy(ctx, dst, src); err != nil {
		dst.Close()
		_ = m.FS.Remove(target) // partial destination cleanup
		return mberrors.New(mberrors.Transient, "filemover.copy", "copy interrupted", err)
	}

	if err := dst.Close(); err != nil {
		_ = m.FS.Remove(target)
		return mberrors.New(mberrors.Transient, "filemover.copy", "failed to finalize target", err)
	}

	if err := m.FS.Remove(source); err != nil {
		return mberrors.New(mberrors.Permission, "filemover.copy", "copied but failed to remove source", err)
	}
	return nil
}

func streamCopy(ctx context.Context, dst io.Writer, src io.Reader) error {
	buf := make([]byte, copyBufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return writeErr
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}
