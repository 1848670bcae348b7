package common

// StepStatus is the outcome of a per-frame processing step
type StepStatus string

const (
	StepSuccess  StepStatus = "success"
	StepDegraded StepStatus = "degraded"
	StepFailed   StepStatus = "failed"
)

// StepResult is the unified result of an enhancement or annotation step.
// On Degraded, Path still points at a usable image (the step's input) and Err
// records what went wrong.
type StepResult struct {
	Path   string
	Status StepStatus
	Err    error
}

// OK reports whether the step produced its own output
func (r StepResult) OK() bool {
	return r.Status == StepSuccess
}

// Degrade builds a Degraded result that passes the input through unchanged
func Degrade(input string, err error) StepResult {
	return StepResult{Path: input, Status: StepDegraded, Err: err}
}
