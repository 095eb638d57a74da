package vigil

// State identifies the supervisor's position in the connection lifecycle.
// Exactly one state is active at any instant; transitions follow the table
// documented on Supervisor.Run.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateLoadingHandlers
	StatePolling
	StateBackoff
	StateShuttingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateLoadingHandlers:
		return "loading_handlers"
	case StatePolling:
		return "polling"
	case StateBackoff:
		return "backoff"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// Outcome is the terminal result of a supervisor run. It is the only thing a
// caller observes: collaborator errors never escape Run.
type Outcome int

const (
	// OutcomeClean means the run ended on an external shutdown request.
	OutcomeClean Outcome = iota

	// OutcomeFatal means a non-retryable failure (invalid credentials)
	// stopped the run immediately.
	OutcomeFatal

	// OutcomeRetriesExhausted means the retry budget was spent on
	// transient failures.
	OutcomeRetriesExhausted

	// OutcomeHandlerLoadExhausted means handler registration was still
	// failing on the final attempt. Kept distinct from
	// OutcomeRetriesExhausted: a registry failure is a code or
	// configuration defect, not weather.
	OutcomeHandlerLoadExhausted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeClean:
		return "clean"
	case OutcomeFatal:
		return "fatal"
	case OutcomeRetriesExhausted:
		return "retries_exhausted"
	case OutcomeHandlerLoadExhausted:
		return "handler_load_exhausted"
	}
	return "unknown"
}

// ExitCode maps the outcome to a process exit code: 0 for a clean stop and a
// distinct non-zero code per abort cause, so operational tooling can tell
// "stopped on purpose" from "gave up" from "misconfigured".
func (o Outcome) ExitCode() int {
	switch o {
	case OutcomeClean:
		return 0
	case OutcomeFatal:
		return 1
	case OutcomeRetriesExhausted:
		return 2
	case OutcomeHandlerLoadExhausted:
		return 3
	}
	return 1
}
