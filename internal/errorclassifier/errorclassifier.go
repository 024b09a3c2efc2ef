// Package errorclassifier maps a failed operation to a Classification the
// queue and file service use to decide whether to retry, wait on the user,
// or escalate (spec §4.5).
package errorclassifier

import (
	"context"
	"time"

	"github.com/chim331u/mediabutler/internal/mberrors"
)

// RecoveryAction is the action the caller should take for a Classification.
type RecoveryAction string

const (
	AutomaticRetry  RecoveryAction = "AUTOMATIC_RETRY"
	WaitForUser     RecoveryAction = "WAIT_FOR_USER"
	LogAndFail      RecoveryAction = "LOG_AND_FAIL"
	EscalateToAdmin RecoveryAction = "ESCALATE_TO_ADMIN"
	Skip            RecoveryAction = "SKIP"
)

// ErrorContext is the classifier's input (spec §4.5).
type ErrorContext struct {
	Err            error
	OperationType  string
	SourcePath     string
	TargetPath     string
	FileSizeBytes  int64
	AvailableSpace uint64
	FileHash       string
	RetryAttempts  int
}

// Classification is the classifier's output (spec §4.5).
type Classification struct {
	Kind               mberrors.Kind
	CanRetry           bool
	RequiresUser       bool
	RecommendedDelay   time.Duration
	MaxRetryAttempts   int
	Confidence         float64
	UserMessage        string
	TechnicalDetails   string
	ResolutionSteps    []string
	Action             RecoveryAction
}

// policy is the per-kind default table (spec §4.5).
type policy struct {
	canRetry     bool
	requiresUser bool
	delays       []time.Duration
	maxRetries   int
	userMessage  string
	steps        []string
}

var policies = map[mberrors.Kind]policy{
	mberrors.Permission: {
		canRetry: false, requiresUser: true, delays: nil, maxRetries: 0,
		userMessage: "Access was denied while processing this file.",
		steps:       []string{"Check file and folder permissions", "Verify the service has write access to the target"},
	},
	mberrors.Path: {
		canRetry: false, requiresUser: true, delays: nil, maxRetries: 0,
		userMessage: "The source or target path could not be resolved.",
		steps:       []string{"Verify the file still exists at its source path", "Shorten the target path if it exceeds filesystem limits"},
	},
	mberrors.Space: {
		canRetry: false, requiresUser: true, delays: nil, maxRetries: 0,
		userMessage: "Not enough free space at the destination.",
		steps:       []string{"Free up space on the target volume", "Choose a different library root"},
	},
	mberrors.Transient: {
		canRetry: true, requiresUser: false,
		delays:      []time.Duration{5 * time.Second, 30 * time.Second, 60 * time.Second},
		maxRetries:  3,
		userMessage: "A transient error occurred; the operation will be retried automatically.",
		steps:       []string{"No action needed unless retries are exhausted"},
	},
	mberrors.ClassifierTimeout: {
		canRetry: true, requiresUser: false,
		delays:      []time.Duration{5 * time.Second},
		maxRetries:  3,
		userMessage: "Classification took too long and will be retried.",
		steps:       []string{"No action needed unless retries are exhausted"},
	},
	mberrors.Unknown: {
		canRetry: false, requiresUser: true, delays: nil, maxRetries: 0,
		userMessage: "An unexpected error occurred.",
		steps:       []string{"Review the technical details and contact support if this persists"},
	},
}

// Classify maps ec to a Classification using mberrors.KindOf(ec.Err) and the
// spec's default policy table, falling back to Unknown for anything the
// error chain doesn't carry a recognized Kind for.
func Classify(ctx context.Context, ec ErrorContext) Classification {
	kind := mberrors.KindOf(ec.Err)
	if _, ok := policies[kind]; !ok {
		kind = mberrors.Unknown
	}
	p := policies[kind]

	delay := time.Duration(0)
	if len(p.delays) > 0 {
		idx := ec.RetryAttempts
		if idx >= len(p.delays) {
			idx = len(p.delays) - 1
		}
		if idx < 0 {
			idx = 0
		}
		delay = p.delays[idx]
	}

	canRetry := p.canRetry && ec.RetryAttempts < p.maxRetries

	technical := ""
	if ec.Err != nil {
		technical = ec.Err.Error()
	}

	return Classification{
		Kind:             kind,
		CanRetry:         canRetry,
		RequiresUser:     p.requiresUser,
		RecommendedDelay: delay,
		MaxRetryAttempts: p.maxRetries,
		Confidence:       confidenceFor(kind),
		UserMessage:      p.userMessage,
		TechnicalDetails: technical,
		ResolutionSteps:  p.steps,
		Action:           actionFor(kind, canRetry, p.requiresUser),
	}
}

func confidenceFor(kind mberrors.Kind) float64 {
	if kind == mberrors.Unknown {
		return 0.2
	}
	return 0.9
}

func actionFor(kind mberrors.Kind, canRetry, requiresUser bool) RecoveryAction {
	switch {
	case canRetry:
		return AutomaticRetry
	case kind == mberrors.Unknown:
		return EscalateToAdmin
	case requiresUser:
		return WaitForUser
	default:
		return LogAndFail
	}
}
