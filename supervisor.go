package vigil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/prilive-com/vigil/dispatch"
	"github.com/prilive-com/vigil/tg"
)

// BotClient owns the transport connection to the messaging API.
type BotClient interface {
	// Identify performs a lightweight "who am I" call against the API.
	Identify(ctx context.Context) (tg.User, error)

	// StartPolling blocks until the connection ends. A nil return (or a
	// cancelled context) means a graceful end; any other error is a
	// connection failure for the supervisor to classify.
	StartPolling(ctx context.Context, handler dispatch.Handler) error

	// Close releases the connection. Idempotent; safe to call even if the
	// client never successfully connected.
	Close() error
}

// HandlerRegistry registers all message and command handlers on a dispatcher.
// RegisterAll must be safely re-callable across retry attempts.
type HandlerRegistry interface {
	RegisterAll(mux *dispatch.Mux) error
}

// Hook is an application-supplied lifecycle callback. Hook errors are
// logged, never propagated.
type Hook func(ctx context.Context) error

// Supervisor drives one bot-connection lifecycle to a terminal outcome:
// a clean shutdown, an exhausted-retries abort, or a fatal non-retryable
// abort. It owns its collaborators for the duration of a run and runs as a
// single sequential state machine.
//
// State transitions:
//
//	Idle            --start-->             Connecting
//	Connecting      --self-test ok-->      LoadingHandlers
//	Connecting      --self-test fails-->   Backoff (auth failure: Terminated)
//	LoadingHandlers --success-->           Polling
//	LoadingHandlers --failure-->           Backoff (final attempt: Terminated)
//	Polling         --graceful shutdown--> ShuttingDown
//	Polling         --error-->             Backoff or Terminated, by class
//	Backoff         --delay elapsed-->     Connecting (attempt += 1)
//	Backoff         --budget spent-->      Terminated
//	ShuttingDown    --cleanup done-->      Terminated
type Supervisor struct {
	client   BotClient
	registry HandlerRegistry
	mux      *dispatch.Mux
	logger   *slog.Logger

	maxRetries uint
	delay      DelayPolicy
	sleeper    Sleeper
	preflight  bool

	onStartup  Hook
	onShutdown Hook
	onState    func(from, to State)

	running atomic.Bool
	state   atomic.Int32
}

// New creates a Supervisor for the given collaborators. Configuration is
// fixed at construction; the supervisor owns client and registry exclusively
// until Run returns.
func New(client BotClient, registry HandlerRegistry, opts ...Option) (*Supervisor, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if registry == nil {
		return nil, ErrNilRegistry
	}

	cfg := config{
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultBaseDelay,
		capFactor:  DefaultCapFactor,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.delay == nil {
		cfg.delay = LinearDelay(cfg.baseDelay, cfg.capFactor)
	}
	if cfg.sleeper == nil {
		cfg.sleeper = RealSleeper{}
	}
	if cfg.maxRetries == 0 {
		cfg.maxRetries = 1
	}

	s := &Supervisor{
		client:     client,
		registry:   registry,
		mux:        dispatch.NewMux(cfg.logger),
		logger:     cfg.logger,
		maxRetries: cfg.maxRetries,
		delay:      cfg.delay,
		sleeper:    cfg.sleeper,
		preflight:  cfg.preflight,
		onStartup:  cfg.onStartup,
		onShutdown: cfg.onShutdown,
		onState:    cfg.onState,
	}
	s.state.Store(int32(StateIdle))
	return s, nil
}

// State returns the supervisor's current lifecycle state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Mux returns the dispatcher the registry registers into.
func (s *Supervisor) Mux() *dispatch.Mux {
	return s.mux
}

// SelfTest performs the identity check without side effects on handlers or
// polling state. It is the same probe the Connecting state runs, exposed for
// standalone pre-flight use.
func (s *Supervisor) SelfTest(ctx context.Context) (tg.User, error) {
	identity, err := s.client.Identify(ctx)
	if err != nil {
		s.logger.Warn("self-test failed",
			"error", err,
			"class", Classify(err).String(),
		)
		return tg.User{}, err
	}
	s.logger.Info("self-test passed",
		"bot_id", identity.ID,
		"bot_username", identity.Username,
	)
	return identity, nil
}

// Run drives the connection lifecycle to a terminal Outcome. Collaborator
// errors never escape: every failure is classified, logged with full context
// and folded into a state transition. Cancelling ctx requests a graceful
// shutdown, observed at every state boundary and during backoff sleeps.
//
// Run does not restart the supervisor after exhaustion; restarting is an
// external operational decision.
func (s *Supervisor) Run(ctx context.Context) Outcome {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Error("run rejected", "error", ErrAlreadyRunning)
		return OutcomeFatal
	}
	defer s.running.Store(false)

	logger := s.logger.With("run_id", uuid.NewString())

	if s.preflight {
		if _, err := s.SelfTest(ctx); err != nil && Classify(err) == ClassAuth {
			logger.Error("pre-flight identity check rejected, check the bot credentials", "error", err)
			return s.terminate(logger, OutcomeFatal)
		}
	}

	for attempt := uint(0); attempt < s.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return s.shutdown(ctx, logger)
		}
		log := logger.With("attempt", attempt, "max_retries", s.maxRetries)

		s.transition(StateConnecting)
		identity, err := s.client.Identify(ctx)
		if err != nil {
			class := Classify(err)
			if !class.Retryable() {
				log.Error("authorization rejected by the messaging API, check the bot credentials",
					"error", err,
					"error_type", fmt.Sprintf("%T", err),
				)
				return s.terminate(log, OutcomeFatal)
			}
			s.logFailure(log, "identity check failed", err, class)
			if out, done := s.backoff(ctx, log, attempt); done {
				return out
			}
			continue
		}
		log.Info("connected",
			"bot_id", identity.ID,
			"bot_username", identity.Username,
		)

		s.transition(StateLoadingHandlers)
		if err := s.registry.RegisterAll(s.mux); err != nil {
			// A registry failure is almost always a code or config
			// defect, so surface maximal context even though we retry.
			log.Error("handler registration failed",
				"error", err,
				"error_type", fmt.Sprintf("%T", err),
				"class", ClassHandlerLoad.String(),
				"handlers_registered", s.mux.Len(),
			)
			if attempt == s.maxRetries-1 {
				log.Error("handler registration still failing on the final attempt, giving up")
				return s.terminate(log, OutcomeHandlerLoadExhausted)
			}
			if out, done := s.backoff(ctx, log, attempt); done {
				return out
			}
			continue
		}
		log.Info("handlers registered", "count", s.mux.Len())

		s.transition(StatePolling)
		s.runHook(ctx, log, "startup", s.onStartup)
		log.Info("polling for updates")

		err = s.client.StartPolling(ctx, s.mux)
		if err == nil || errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return s.shutdown(ctx, logger)
		}

		class := Classify(err)
		if !class.Retryable() {
			log.Error("polling rejected as unauthorized, check the bot credentials",
				"error", err,
				"error_type", fmt.Sprintf("%T", err),
			)
			return s.terminate(log, OutcomeFatal)
		}
		s.logFailure(log, "polling interrupted", err, class)
		if out, done := s.backoff(ctx, log, attempt); done {
			return out
		}
	}

	logger.Error("retry budget exhausted, giving up", "max_retries", s.maxRetries)
	return s.terminate(logger, OutcomeRetriesExhausted)
}

// logFailure logs a retryable failure; unknown classes log at error level
// since they are unexpected.
func (s *Supervisor) logFailure(log *slog.Logger, msg string, err error, class FailureClass) {
	attrs := []any{
		"error", err,
		"error_type", fmt.Sprintf("%T", err),
		"class", class.String(),
	}
	if class == ClassUnknown {
		log.Error(msg, attrs...)
		return
	}
	log.Warn(msg, attrs...)
}

// backoff sleeps before the next attempt. done is true when the run is over:
// a shutdown request interrupted the wait. When no attempt remains the sleep
// is skipped and the caller falls through to the exhaustion path.
func (s *Supervisor) backoff(ctx context.Context, log *slog.Logger, attempt uint) (out Outcome, done bool) {
	if attempt+1 >= s.maxRetries {
		return 0, false
	}

	s.transition(StateBackoff)
	delay := s.delay(attempt)
	log.Info("backing off before retry",
		"delay", delay,
		"next_attempt", attempt+1,
	)
	if err := s.sleeper.Sleep(ctx, delay); err != nil {
		log.Info("backoff interrupted by shutdown request")
		return s.shutdown(ctx, log), true
	}
	return 0, false
}

// shutdown runs the shutdown sequence: application hook first, then client
// close. Errors from either step are logged and swallowed so shutdown always
// completes. Cleanup runs detached from the triggering cancellation.
func (s *Supervisor) shutdown(ctx context.Context, log *slog.Logger) Outcome {
	s.transition(StateShuttingDown)
	log.Info("shutting down")

	s.runHook(context.WithoutCancel(ctx), log, "shutdown", s.onShutdown)
	if err := s.client.Close(); err != nil {
		log.Warn("bot client close failed", "error", err)
	}
	return s.terminate(log, OutcomeClean)
}

// terminate closes out the run. Abort paths skip the shutdown hook but still
// release the client, so no connection outlives the supervisor.
func (s *Supervisor) terminate(log *slog.Logger, out Outcome) Outcome {
	if out != OutcomeClean {
		if err := s.client.Close(); err != nil {
			log.Warn("bot client close failed", "error", err)
		}
	}
	s.transition(StateTerminated)
	log.Info("supervisor terminated",
		"outcome", out.String(),
		"exit_code", out.ExitCode(),
	)
	return out
}

func (s *Supervisor) runHook(ctx context.Context, log *slog.Logger, name string, hook Hook) {
	if hook == nil {
		return
	}
	if err := hook(ctx); err != nil {
		log.Warn(name+" hook failed", "error", err)
	}
}

func (s *Supervisor) transition(to State) {
	from := State(s.state.Swap(int32(to)))
	if from == to {
		return
	}
	if s.onState != nil {
		s.onState(from, to)
	}
}

// Default retry policy values.
const (
	DefaultMaxRetries uint = 10
	DefaultBaseDelay       = 10 * time.Second
	DefaultCapFactor  uint = 3
)
