// Package orchestrator runs the retrieval pipeline for one message.
//
// The pipeline degrades forward: a failure in any retrieval step costs
// that step's contribution, never the user-visible answer. Only the
// final model invocation is allowed to fail the request.
package orchestrator

// State is a pipeline stage, recorded for logging and metrics.
type State string

const (
	StateAnalyzing  State = "analyzing"
	StateRetrieving State = "retrieving"
	StateCounting   State = "counting"
	StateSkipped    State = "skipped"
	StateAssembling State = "assembling"
	StateInvoking   State = "invoking"
	StateDone       State = "done"
)
