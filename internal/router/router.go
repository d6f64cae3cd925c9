// Package router implements the command-routing core: it publishes commands
// onto per-cluster executor channels, tracks them in flight, and correlates
// the asynchronous reply back to the waiting caller within a bounded timeout.
//
// Delivery is at-most-once. A command published to a channel with no
// subscriber is lost; the caller's timeout is the recovery mechanism.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/giantswarm/kube-debug-gateway/internal/keystore"
	"github.com/giantswarm/kube-debug-gateway/internal/logging"
	"github.com/giantswarm/kube-debug-gateway/internal/session"
	"github.com/giantswarm/kube-debug-gateway/internal/validation"
)

// ErrSessionClusterMismatch indicates the caller supplied a session bound to a
// different cluster than the request targets.
var ErrSessionClusterMismatch = errors.New("session does not belong to the requested cluster")

// timeoutError is the synthesized message on a timed-out command.
const timeoutError = "Command execution timeout"

// Config tunes the router. Zero values select the defaults.
type Config struct {
	// DefaultTimeoutSeconds applies when the request carries no timeout.
	DefaultTimeoutSeconds int

	// ResultTTL bounds how long a consumed or orphaned result lingers.
	ResultTTL time.Duration

	// PollInitial and PollMax shape the backoff poll that backstops the
	// result_ready subscription.
	PollInitial time.Duration
	PollMax     time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultTimeoutSeconds == 0 {
		c.DefaultTimeoutSeconds = 10
	}
	if c.ResultTTL == 0 {
		c.ResultTTL = 60 * time.Second
	}
	if c.PollInitial == 0 {
		c.PollInitial = 50 * time.Millisecond
	}
	if c.PollMax == 0 {
		c.PollMax = time.Second
	}
	return c
}

// Recorder receives command outcome metrics. Implemented by the
// instrumentation package; nil disables recording.
type Recorder interface {
	RecordCommand(ctx context.Context, clusterID, status string, duration time.Duration)
}

// Request is one execute call from the frontend. Wire validation (forbidden
// verbs, flag lists) has already happened by the time a Request reaches the
// router.
type Request struct {
	ClusterID      string
	SessionID      string
	CommandType    string
	Args           []string
	Namespace      string
	ExtraArgs      []string
	TimeoutSeconds int
	CorrelationID  string
}

// Router owns command_tracking/* and result/* and publishes to the per-cluster
// executor channels.
type Router struct {
	store    keystore.Store
	sessions *session.Registry
	logger   *slog.Logger
	recorder Recorder
	cfg      Config
}

// New builds a Router. recorder may be nil.
func New(store keystore.Store, sessions *session.Registry, logger *slog.Logger, recorder Recorder, cfg Config) *Router {
	return &Router{
		store:    store,
		sessions: sessions,
		logger:   logger,
		recorder: recorder,
		cfg:      cfg.withDefaults(),
	}
}

// Execute routes one command to the target cluster's executor and waits for
// the correlated result. A lapsed deadline yields a normal Result with status
// "timeout"; only session and keystore problems surface as errors.
func (r *Router) Execute(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	// An explicit session must exist and belong to the target cluster.
	if req.SessionID != "" {
		s, err := r.sessions.Get(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
		if s == nil {
			return nil, fmt.Errorf("%w: %s", session.ErrNotFound, req.SessionID)
		}
		if s.ClusterID != req.ClusterID {
			return nil, fmt.Errorf("%w: session %s belongs to %s", ErrSessionClusterMismatch, req.SessionID, s.ClusterID)
		}
	}

	// Widen the low-latency window whether or not a session exists. This is
	// what keeps agent-to-agent calls without sessions on the fast path.
	if err := r.sessions.MarkClusterActive(ctx, req.ClusterID, req.SessionID, session.ActiveMarkerTTL); err != nil {
		return nil, err
	}
	if req.SessionID != "" {
		if _, err := r.sessions.KeepAlive(ctx, req.SessionID); err != nil {
			return nil, err
		}
	}

	cmd := Command{
		ID:             uuid.NewString(),
		ClusterID:      req.ClusterID,
		Args:           composeArgs(req),
		TimeoutSeconds: validation.ClampCommandTimeout(req.TimeoutSeconds, r.cfg.DefaultTimeoutSeconds),
		CorrelationID:  req.CorrelationID,
	}
	requestTimeout := time.Duration(validation.ClampRequestTimeout(req.TimeoutSeconds, r.cfg.DefaultTimeoutSeconds)) * time.Second

	if err := r.track(ctx, cmd, requestTimeout); err != nil {
		return nil, err
	}

	// Subscribe before publishing so a fast executor can't signal readiness
	// while nobody is listening.
	waitCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	sub, err := r.store.Subscribe(waitCtx, keystore.ResultReadyChannel(cmd.ID))
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encoding command: %w", err)
	}
	// Fire and forget: there is no ack, and no subscriber means the command
	// is lost and the deadline below is the recovery mechanism.
	if err := r.store.Publish(ctx, keystore.ExecutorCommandsChannel(req.ClusterID), string(payload)); err != nil {
		return nil, err
	}

	r.logger.Debug("command dispatched",
		logging.Command(cmd.ID),
		logging.Cluster(cmd.ClusterID),
		logging.Correlation(cmd.CorrelationID))

	result, err := r.await(waitCtx, sub, cmd.ID)
	if err != nil {
		return nil, err
	}

	if result == nil {
		result = &Result{CommandID: cmd.ID, Status: StatusTimeout, Error: timeoutError}
	} else if result.Status == StatusSuccess && req.SessionID == "" {
		// More commands are likely coming; keep the window open.
		if err := r.sessions.MarkClusterActive(ctx, req.ClusterID, "", session.ActiveMarkerTTL); err != nil {
			r.logger.Warn("active marker refresh failed", logging.Cluster(req.ClusterID), logging.Err(err))
		}
	}

	if r.recorder != nil {
		r.recorder.RecordCommand(ctx, req.ClusterID, result.Status, time.Since(start))
	}
	r.logger.Info("command finished",
		logging.Command(cmd.ID),
		logging.Cluster(cmd.ClusterID),
		logging.Status(result.Status),
		slog.Duration(logging.KeyDuration, time.Since(start)))
	return result, nil
}

// await blocks until the result appears, the notification fires, or the
// deadline lapses. A nil result with nil error means timeout.
func (r *Router) await(ctx context.Context, sub keystore.Subscription, commandID string) (*Result, error) {
	// Immediate read first: the executor may have finished before we started
	// waiting.
	if res, err := r.consume(ctx, commandID); err != nil || res != nil {
		return res, err
	}

	backoff := wait.Backoff{
		Duration: r.cfg.PollInitial,
		Factor:   2,
		Cap:      r.cfg.PollMax,
		Steps:    64,
	}
	timer := time.NewTimer(backoff.Step())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, nil
		case _, open := <-sub.Messages():
			if res, err := r.consume(ctx, commandID); err != nil || res != nil {
				return res, err
			}
			if !open {
				// Subscription torn down (deadline or keystore loss); the
				// poll timer is the only wakeup left.
				sub = closedSubscription{}
			}
		case <-timer.C:
			if res, err := r.consume(ctx, commandID); err != nil || res != nil {
				return res, err
			}
			timer.Reset(backoff.Step())
		}
	}
}

// closedSubscription blocks forever, standing in for a torn-down subscription
// so the await loop falls back to polling alone.
type closedSubscription struct{}

func (closedSubscription) Messages() <-chan string { return nil }
func (closedSubscription) Close() error            { return nil }

// consume reads and decodes the result, removing the tracking entry on
// success. It returns (nil, nil) while the result has not arrived.
func (r *Router) consume(ctx context.Context, commandID string) (*Result, error) {
	// The waitCtx deadline doubles as the request deadline; use a fresh read
	// so a deadline race doesn't turn a stored result into a keystore error.
	raw, ok, err := r.store.Get(ctx, keystore.ResultKey(commandID))
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil
		}
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var res Result
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, fmt.Errorf("decoding result for %s: %w", commandID, err)
	}
	res.CommandID = commandID

	if err := r.store.Del(ctx, keystore.CommandTrackingKey(commandID)); err != nil {
		r.logger.Warn("tracking cleanup failed", logging.Command(commandID), logging.Err(err))
	}
	return &res, nil
}

func (r *Router) track(ctx context.Context, cmd Command, requestTimeout time.Duration) error {
	entry, err := json.Marshal(tracking{ClusterID: cmd.ClusterID, QueuedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encoding tracking entry: %w", err)
	}
	// Tracking must outlive both timeouts so a late result stays attributable.
	ttl := requestTimeout
	if cmdTTL := time.Duration(cmd.TimeoutSeconds) * time.Second; cmdTTL > ttl {
		ttl = cmdTTL
	}
	return r.store.SetEx(ctx, keystore.CommandTrackingKey(cmd.ID), string(entry), ttl+30*time.Second)
}

// StoreResult persists an executor-posted result and signals any waiting
// router call. Duplicate writes are last-writer-wins; a well-behaved executor
// writes each result exactly once.
func (r *Router) StoreResult(ctx context.Context, res *Result) error {
	switch res.Status {
	case StatusSuccess, StatusFailure, StatusTimeout:
	default:
		return fmt.Errorf("invalid result status %q", res.Status)
	}
	if res.CommandID == "" {
		return errors.New("result carries no command_id")
	}

	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	if err := r.store.SetEx(ctx, keystore.ResultKey(res.CommandID), string(payload), r.cfg.ResultTTL); err != nil {
		return err
	}
	return r.store.Publish(ctx, keystore.ResultReadyChannel(res.CommandID), "ready")
}

// composeArgs builds the final kubectl argument vector:
// [verb, args..., -n namespace?, extra_args...].
func composeArgs(req Request) []string {
	args := make([]string, 0, len(req.Args)+len(req.ExtraArgs)+3)
	args = append(args, req.CommandType)
	args = append(args, req.Args...)
	if req.Namespace != "" {
		args = append(args, "-n", req.Namespace)
	}
	args = append(args, req.ExtraArgs...)
	return args
}
