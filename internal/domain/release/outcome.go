package release

import "fmt"

// OutcomeKind classifies how a run ends.
type OutcomeKind uint8

const (
	// OutcomeContinue means the run should carry on with its side effects.
	OutcomeContinue OutcomeKind = iota
	// OutcomeSkip means there is nothing to do; not an error.
	OutcomeSkip
	// OutcomeAbort means a check failed and the run must stop loudly.
	OutcomeAbort
)

// String returns the outcome kind name.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeContinue:
		return "continue"
	case OutcomeSkip:
		return "skip"
	case OutcomeAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// Outcome is the result of a release decision. Only the CLI layer turns it
// into an exit code.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
}

// Continue returns an outcome that lets the run proceed.
func Continue() Outcome {
	return Outcome{Kind: OutcomeContinue}
}

// SkipNoop returns an outcome for runs that have nothing to do.
func SkipNoop(reason string) Outcome {
	return Outcome{Kind: OutcomeSkip, Reason: reason}
}

// Abort returns an outcome for runs that must fail.
func Abort(reason string) Outcome {
	return Outcome{Kind: OutcomeAbort, Reason: reason}
}

// Abortf is Abort with formatting.
func Abortf(format string, args ...any) Outcome {
	return Abort(fmt.Sprintf(format, args...))
}

// IsContinue reports whether the run should proceed.
func (o Outcome) IsContinue() bool { return o.Kind == OutcomeContinue }

// IsSkip reports whether the run is a no-op.
func (o Outcome) IsSkip() bool { return o.Kind == OutcomeSkip }

// IsAbort reports whether the run must fail.
func (o Outcome) IsAbort() bool { return o.Kind == OutcomeAbort }

// String formats the outcome for logs.
func (o Outcome) String() string {
	if o.Reason == "" {
		return o.Kind.String()
	}
	return o.Kind.String() + ": " + o.Reason
}
