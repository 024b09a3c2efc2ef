// Package pathbuilder implements the core's category+template → sanitized,
// conflict-free target path algorithm (spec §4.3).
package pathbuilder

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/chim331u/mediabutler/internal/pathsafety"
	"github.com/chim331u/mediabutler/internal/vfs"
)

// DefaultTemplate is used when Options.Template is empty.
const DefaultTemplate = "{library_root}/{CATEGORY}/{filename}"

const (
	maxPathLengthWarn = 240
	maxPathLengthHard = 4096 // platform max; PATH_MAX on Linux
)

// Report carries validation findings alongside a built path (spec §4.3).
type Report struct {
	Errors          []string
	Warnings        []string
	Recommendations []string
}

func (r Report) OK() bool { return len(r.Errors) == 0 }

// Result is the outcome of Build.
type Result struct {
	TargetPath string
	Report     Report
}

// Options parametrizes Build.
type Options struct {
	LibraryRoot         string
	Template            string // defaults to DefaultTemplate
	MaxConflictAttempts int    // defaults to 10
}

var invalidChars = regexp.MustCompile(`[<>:"/\\|?*]`)
var runsOfUnderscore = regexp.MustCompile(`_+`)

var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// sanitizeChars trims separator noise from the original (pre-substitution)
// edges, replaces invalid path characters with "_", and collapses underscore
// runs. Trimming happens before substitution so a trailing invalid character
// like "?" survives as the "_" it becomes, instead of being trimmed away
// afterward (spec §4.3 step 1 worked example: "Doctor: Who?" -> "DOCTOR_ WHO_").
func sanitizeChars(component string) string {
	trimmed := strings.Trim(component, ". ")
	s := invalidChars.ReplaceAllString(trimmed, "_")
	s = runsOfUnderscore.ReplaceAllString(s, "_")
	return s
}

// guardReserved prefixes s with "_" if its extension-stripped base is a
// reserved device name (CON, PRN, COM1, ...).
func guardReserved(s string) string {
	base := s
	if ext := filepath.Ext(s); ext != "" {
		base = strings.TrimSuffix(s, ext)
	}
	if reservedNames[strings.ToUpper(base)] {
		s = "_" + s
	}
	return s
}

// Sanitize cleans a path component and folds it to uppercase, matching the
// library's category-naming convention (spec §4.3 step 1).
func Sanitize(component string) string {
	s := sanitizeChars(component)
	if s == "" {
		return "unknown"
	}
	return guardReserved(strings.ToUpper(s))
}

// sanitizeFilename cleans a path component like Sanitize but preserves the
// original casing, since media filenames carry meaningful mixed case.
func sanitizeFilename(component string) string {
	s := sanitizeChars(component)
	if s == "" {
		return "unknown"
	}
	return guardReserved(s)
}

// substitute replaces template variables (spec §4.3 step 3); unknown
// variables are left literal.
func substitute(template string, vars map[string]string) string {
	out := template
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

// Build runs the full sanitize/substitute/validate/conflict-resolve pipeline.
func Build(fsys vfs.FileSystem, hash, originalFileName, category string, opts Options) (Result, error) {
	template := opts.Template
	if template == "" {
		template = DefaultTemplate
	}
	maxAttempts := opts.MaxConflictAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	ext := filepath.Ext(originalFileName)
	basename := strings.TrimSuffix(originalFileName, ext)

	sanitizedCategory := Sanitize(category)
	sanitizedFilename := sanitizeFilename(basename) + ext
	sanitizedBasename := sanitizeFilename(basename)

	vars := map[string]string{
		"library_root": opts.LibraryRoot,
		"CATEGORY":     sanitizedCategory,
		"filename":     sanitizedFilename,
		"hash":         hash,
		"extension":    strings.TrimPrefix(ext, "."),
		"basename":     sanitizedBasename,
	}

	raw := substitute(template, vars)
	target := raw
	if !filepath.IsAbs(target) {
		target = filepath.Join(opts.LibraryRoot, target)
	}
	target = filepath.Clean(target)

	report := Report{}

	// Validate: confinement to library_root (no symlink escape).
	confined, err := pathsafety.ConfineAbsPath(opts.LibraryRoot, target)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("path escapes library root: %v", err))
		return Result{TargetPath: target, Report: report}, nil
	}
	target = confined

	if len(target) > maxPathLengthHard {
		report.Errors = append(report.Errors, fmt.Sprintf("path length %d exceeds platform maximum %d", len(target), maxPathLengthHard))
		return Result{TargetPath: target, Report: report}, nil
	}
	if len(target) > maxPathLengthWarn {
		report.Warnings = append(report.Warnings, fmt.Sprintf("path length %d exceeds recommended maximum %d", len(target), maxPathLengthWarn))
	}

	if invalidChars.MatchString(filepath.Base(target)) {
		report.Errors = append(report.Errors, "target contains invalid characters after sanitization")
		return Result{TargetPath: target, Report: report}, nil
	}

	parent := filepath.Dir(target)
	if _, statErr := fsys.Stat(parent); statErr != nil {
		report.Recommendations = append(report.Recommendations, fmt.Sprintf("parent directory %q will be created", parent))
	}

	// Conflict resolution (spec §4.3 step 6).
	resolved, resolveReport := resolveConflicts(fsys, target, maxAttempts)
	report.Warnings = append(report.Warnings, resolveReport.Warnings...)
	report.Recommendations = append(report.Recommendations, resolveReport.Recommendations...)

	return Result{TargetPath: resolved, Report: report}, nil
}

func resolveConflicts(fsys vfs.FileSystem, target string, maxAttempts int) (string, Report) {
	var report Report

	if _, err := fsys.Stat(target); err != nil {
		return target, report // no conflict
	}

	dir := filepath.Dir(target)
	ext := filepath.Ext(target)
	base := strings.TrimSuffix(filepath.Base(target), ext)

	for n := 1; n <= maxAttempts; n++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", base, n, ext))
		if _, err := fsys.Stat(candidate); err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("target existed; resolved to %q", candidate))
			return candidate, report
		}
	}

	ts := time.Now().UTC().Format("20060102_150405")
	fallback := filepath.Join(dir, fmt.Sprintf("%s_%s%s", base, ts, ext))
	report.Warnings = append(report.Warnings, fmt.Sprintf("conflict attempts exhausted; fell back to timestamped name %q", fallback))
	return fallback, report
}
