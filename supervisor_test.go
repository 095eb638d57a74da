package vigil_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prilive-com/vigil"
	"github.com/prilive-com/vigil/dispatch"
	"github.com/prilive-com/vigil/internal/testutil"
	"github.com/prilive-com/vigil/tg"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClient scripts collaborator behavior per call number (1-based).
type fakeClient struct {
	identifyFn func(call int) (tg.User, error)
	pollFn     func(call int, ctx context.Context) error

	mu            sync.Mutex
	identifyCalls int
	pollCalls     int
	closeCalls    int
}

func (f *fakeClient) Identify(ctx context.Context) (tg.User, error) {
	f.mu.Lock()
	f.identifyCalls++
	n := f.identifyCalls
	f.mu.Unlock()
	if f.identifyFn != nil {
		return f.identifyFn(n)
	}
	return tg.User{ID: 42, IsBot: true, Username: "vigil_test_bot"}, nil
}

func (f *fakeClient) StartPolling(ctx context.Context, handler dispatch.Handler) error {
	f.mu.Lock()
	f.pollCalls++
	n := f.pollCalls
	f.mu.Unlock()
	if f.pollFn != nil {
		return f.pollFn(n, ctx)
	}
	<-ctx.Done()
	return nil
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	f.closeCalls++
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) counts() (identify, poll, closed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.identifyCalls, f.pollCalls, f.closeCalls
}

type fakeRegistry struct {
	registerFn func(call int, mux *dispatch.Mux) error

	mu    sync.Mutex
	calls int
}

func (f *fakeRegistry) RegisterAll(mux *dispatch.Mux) error {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if f.registerFn != nil {
		return f.registerFn(n, mux)
	}
	return nil
}

func (f *fakeRegistry) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// stateRecorder collects transition targets.
type stateRecorder struct {
	mu     sync.Mutex
	states []vigil.State
}

func (r *stateRecorder) record(from, to vigil.State) {
	r.mu.Lock()
	r.states = append(r.states, to)
	r.mu.Unlock()
}

func (r *stateRecorder) trace() []vigil.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]vigil.State{}, r.states...)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := vigil.New(nil, &fakeRegistry{})
	assert.ErrorIs(t, err, vigil.ErrNilClient)

	_, err = vigil.New(&fakeClient{}, nil)
	assert.ErrorIs(t, err, vigil.ErrNilRegistry)
}

func TestRun_CleanShutdownAfterTransientFailures(t *testing.T) {
	// maxRetries=3, baseDelay=1s: two "timeout" polling failures, then a
	// successful poll ended by a shutdown signal.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeClient{
		pollFn: func(call int, _ context.Context) error {
			if call <= 2 {
				return errors.New("read timeout while fetching updates")
			}
			cancel()
			return nil
		},
	}
	registry := &fakeRegistry{}
	sleeper := &testutil.FakeSleeper{}
	rec := &stateRecorder{}

	sup, err := vigil.New(client, registry,
		vigil.WithLogger(testLogger()),
		vigil.WithMaxRetries(3),
		vigil.WithBaseDelay(time.Second),
		vigil.WithSleeper(sleeper),
		vigil.WithStateChange(rec.record),
	)
	require.NoError(t, err)

	outcome := sup.Run(ctx)

	assert.Equal(t, vigil.OutcomeClean, outcome)
	assert.Equal(t, []vigil.State{
		vigil.StateConnecting,
		vigil.StateLoadingHandlers,
		vigil.StatePolling,
		vigil.StateBackoff,
		vigil.StateConnecting,
		vigil.StateLoadingHandlers,
		vigil.StatePolling,
		vigil.StateBackoff,
		vigil.StateConnecting,
		vigil.StateLoadingHandlers,
		vigil.StatePolling,
		vigil.StateShuttingDown,
		vigil.StateTerminated,
	}, rec.trace())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.Calls())

	_, polls, closes := client.counts()
	assert.Equal(t, 3, polls)
	assert.Equal(t, 1, closes)
	assert.Equal(t, 3, registry.callCount())
	assert.Equal(t, vigil.StateTerminated, sup.State())
}

func TestRun_UnauthorizedIdentify_IsFatal(t *testing.T) {
	client := &fakeClient{
		identifyFn: func(int) (tg.User, error) {
			return tg.User{}, errors.New("telegram API error 401: Unauthorized")
		},
	}
	registry := &fakeRegistry{}
	sleeper := &testutil.FakeSleeper{}
	rec := &stateRecorder{}

	sup, err := vigil.New(client, registry,
		vigil.WithLogger(testLogger()),
		vigil.WithSleeper(sleeper),
		vigil.WithStateChange(rec.record),
	)
	require.NoError(t, err)

	outcome := sup.Run(context.Background())

	assert.Equal(t, vigil.OutcomeFatal, outcome)
	assert.Equal(t, []vigil.State{vigil.StateConnecting, vigil.StateTerminated}, rec.trace())
	assert.Zero(t, sleeper.CallCount())
	assert.Zero(t, registry.callCount())

	identifies, polls, closes := client.counts()
	assert.Equal(t, 1, identifies)
	assert.Zero(t, polls)
	assert.Equal(t, 1, closes)
}

func TestRun_AuthFailureWhilePolling_IsFatal(t *testing.T) {
	client := &fakeClient{
		pollFn: func(int, context.Context) error {
			return errors.New("Forbidden: bot token revoked")
		},
	}
	sleeper := &testutil.FakeSleeper{}

	sup, err := vigil.New(client, &fakeRegistry{},
		vigil.WithLogger(testLogger()),
		vigil.WithMaxRetries(5),
		vigil.WithSleeper(sleeper),
	)
	require.NoError(t, err)

	outcome := sup.Run(context.Background())

	assert.Equal(t, vigil.OutcomeFatal, outcome)
	assert.Zero(t, sleeper.CallCount())

	_, polls, _ := client.counts()
	assert.Equal(t, 1, polls)
}

func TestRun_RetriesExhausted(t *testing.T) {
	client := &fakeClient{
		pollFn: func(int, context.Context) error {
			return errors.New("connection reset by peer")
		},
	}
	sleeper := &testutil.FakeSleeper{}

	sup, err := vigil.New(client, &fakeRegistry{},
		vigil.WithLogger(testLogger()),
		vigil.WithMaxRetries(3),
		vigil.WithBaseDelay(time.Second),
		vigil.WithSleeper(sleeper),
	)
	require.NoError(t, err)

	outcome := sup.Run(context.Background())

	assert.Equal(t, vigil.OutcomeRetriesExhausted, outcome)
	_, polls, closes := client.counts()
	assert.Equal(t, 3, polls)
	assert.Equal(t, 1, closes)
	// No sleep after the final failure: there is no attempt left to wait for.
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.Calls())
}

func TestRun_UnknownErrorsAreRetryable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeClient{
		pollFn: func(call int, _ context.Context) error {
			if call == 1 {
				return errors.New("something completely unexpected")
			}
			cancel()
			return nil
		},
	}

	sup, err := vigil.New(client, &fakeRegistry{},
		vigil.WithLogger(testLogger()),
		vigil.WithMaxRetries(3),
		vigil.WithSleeper(&testutil.FakeSleeper{}),
	)
	require.NoError(t, err)

	assert.Equal(t, vigil.OutcomeClean, sup.Run(ctx))
}

func TestRun_HandlerLoadExhausted(t *testing.T) {
	client := &fakeClient{}
	registry := &fakeRegistry{
		registerFn: func(int, *dispatch.Mux) error {
			return errors.New("handlers: bad command wiring")
		},
	}
	sleeper := &testutil.FakeSleeper{}

	sup, err := vigil.New(client, registry,
		vigil.WithLogger(testLogger()),
		vigil.WithMaxRetries(3),
		vigil.WithSleeper(sleeper),
	)
	require.NoError(t, err)

	outcome := sup.Run(context.Background())

	assert.Equal(t, vigil.OutcomeHandlerLoadExhausted, outcome)
	assert.Equal(t, 3, registry.callCount())

	_, polls, _ := client.counts()
	assert.Zero(t, polls, "polling must not start when the handler gate fails")
}

func TestRun_HandlerLoadFailureThenSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeClient{
		pollFn: func(int, context.Context) error {
			cancel()
			return nil
		},
	}
	registry := &fakeRegistry{
		registerFn: func(call int, _ *dispatch.Mux) error {
			if call == 1 {
				return errors.New("handlers: transient wiring failure")
			}
			return nil
		},
	}

	sup, err := vigil.New(client, registry,
		vigil.WithLogger(testLogger()),
		vigil.WithMaxRetries(3),
		vigil.WithSleeper(&testutil.FakeSleeper{}),
	)
	require.NoError(t, err)

	assert.Equal(t, vigil.OutcomeClean, sup.Run(ctx))
	assert.Equal(t, 2, registry.callCount())
}

// cancelingSleeper simulates a shutdown signal arriving mid-backoff.
type cancelingSleeper struct {
	cancel context.CancelFunc
}

func (s *cancelingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.cancel()
	return context.Canceled
}

func TestRun_ShutdownDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeClient{
		pollFn: func(int, context.Context) error {
			return errors.New("network unreachable")
		},
	}
	rec := &stateRecorder{}

	var shutdownHookCalls int
	sup, err := vigil.New(client, &fakeRegistry{},
		vigil.WithLogger(testLogger()),
		vigil.WithMaxRetries(5),
		vigil.WithSleeper(&cancelingSleeper{cancel: cancel}),
		vigil.WithStateChange(rec.record),
		vigil.WithShutdownHook(func(context.Context) error {
			shutdownHookCalls++
			return nil
		}),
	)
	require.NoError(t, err)

	outcome := sup.Run(ctx)

	assert.Equal(t, vigil.OutcomeClean, outcome)
	assert.Equal(t, 1, shutdownHookCalls)

	trace := rec.trace()
	require.GreaterOrEqual(t, len(trace), 3)
	assert.Equal(t, vigil.StateBackoff, trace[len(trace)-3])
	assert.Equal(t, vigil.StateShuttingDown, trace[len(trace)-2])
	assert.Equal(t, vigil.StateTerminated, trace[len(trace)-1])

	_, polls, _ := client.counts()
	assert.Equal(t, 1, polls, "no retry after the shutdown request")
}

func TestRun_HooksInvokedAndErrorsSwallowed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeClient{
		pollFn: func(int, context.Context) error {
			cancel()
			return nil
		},
	}

	var startupCalls, shutdownCalls int
	sup, err := vigil.New(client, &fakeRegistry{},
		vigil.WithLogger(testLogger()),
		vigil.WithStartupHook(func(context.Context) error {
			startupCalls++
			return errors.New("startup hook exploded")
		}),
		vigil.WithShutdownHook(func(context.Context) error {
			shutdownCalls++
			return errors.New("shutdown hook exploded")
		}),
	)
	require.NoError(t, err)

	outcome := sup.Run(ctx)

	assert.Equal(t, vigil.OutcomeClean, outcome, "hook errors must never change the outcome")
	assert.Equal(t, 1, startupCalls)
	assert.Equal(t, 1, shutdownCalls)
}

func TestRun_StartupHookRunsPerPollingEntry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeClient{
		pollFn: func(call int, _ context.Context) error {
			if call == 1 {
				return errors.New("timeout")
			}
			cancel()
			return nil
		},
	}

	var startupCalls int
	sup, err := vigil.New(client, &fakeRegistry{},
		vigil.WithLogger(testLogger()),
		vigil.WithMaxRetries(3),
		vigil.WithSleeper(&testutil.FakeSleeper{}),
		vigil.WithStartupHook(func(context.Context) error {
			startupCalls++
			return nil
		}),
	)
	require.NoError(t, err)

	assert.Equal(t, vigil.OutcomeClean, sup.Run(ctx))
	assert.Equal(t, 2, startupCalls)
}

func TestRun_PreflightAuthFailure_FailsFast(t *testing.T) {
	client := &fakeClient{
		identifyFn: func(int) (tg.User, error) {
			return tg.User{}, errors.New("401 unauthorized: invalid token")
		},
	}
	registry := &fakeRegistry{}
	sleeper := &testutil.FakeSleeper{}

	sup, err := vigil.New(client, registry,
		vigil.WithLogger(testLogger()),
		vigil.WithPreflight(),
		vigil.WithSleeper(sleeper),
	)
	require.NoError(t, err)

	outcome := sup.Run(context.Background())

	assert.Equal(t, vigil.OutcomeFatal, outcome)
	assert.Zero(t, registry.callCount())
	assert.Zero(t, sleeper.CallCount())

	identifies, polls, _ := client.counts()
	assert.Equal(t, 1, identifies, "no retry cycle for a clearly invalid token")
	assert.Zero(t, polls)
}

func TestSelfTest_NoSideEffects(t *testing.T) {
	client := &fakeClient{}
	registry := &fakeRegistry{}

	sup, err := vigil.New(client, registry, vigil.WithLogger(testLogger()))
	require.NoError(t, err)

	identity, err := sup.SelfTest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), identity.ID)

	assert.Zero(t, registry.callCount())
	_, polls, closes := client.counts()
	assert.Zero(t, polls)
	assert.Zero(t, closes)
	assert.Equal(t, vigil.StateIdle, sup.State())
}

func TestRun_SecondConcurrentRunRejected(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	entered := make(chan struct{})
	client := &fakeClient{
		pollFn: func(int, context.Context) error {
			close(entered)
			<-ctx.Done()
			return nil
		},
	}

	sup, err := vigil.New(client, &fakeRegistry{}, vigil.WithLogger(testLogger()))
	require.NoError(t, err)

	done := make(chan vigil.Outcome, 1)
	go func() {
		done <- sup.Run(ctx)
	}()

	<-entered
	assert.Equal(t, vigil.OutcomeFatal, sup.Run(ctx))

	cancel()
	assert.Equal(t, vigil.OutcomeClean, <-done)
}
