// Package poll runs the two sampling loops of a session: a fast loop for
// cpu, memory and processes that publishes a composite snapshot per tick,
// and a slow loop that refreshes the storage figure the fast loop merges in.
package poll

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Dicklesworthstone/sysmon/internal/config"
	"github.com/Dicklesworthstone/sysmon/internal/logger"
	"github.com/Dicklesworthstone/sysmon/internal/model"
	"github.com/Dicklesworthstone/sysmon/internal/rank"
)

// Provider supplies point-in-time host readings.
type Provider interface {
	CurrentLoad(ctx context.Context) (model.Load, error)
	Memory(ctx context.Context) (model.Memory, error)
	ProcessList(ctx context.Context) ([]model.ProcessSample, error)
	FilesystemUsage(ctx context.Context) ([]model.FilesystemUsage, error)
}

// Target receives snapshots. Publish must not block on slow consumers.
// Once Alive reports false the session stops on its next fast tick.
type Target interface {
	Alive() bool
	Publish(model.Snapshot)
}

// State is the session lifecycle: Idle -> Running -> Stopped.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Controller starts sampling sessions against a provider.
type Controller struct {
	provider Provider
	logger   *slog.Logger
}

func NewController(provider Provider, l *slog.Logger) *Controller {
	return &Controller{provider: provider, logger: logger.OrDiscard(l)}
}

// Start validates cfg and begins both loops immediately. A config error is
// returned as *config.ConfigError. If target is nil or already dead, Start
// schedules nothing and returns a session that is already stopped.
// Cancelling ctx is equivalent to calling Stop.
func (c *Controller) Start(ctx context.Context, target Target, cfg config.Poll) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if target == nil || !target.Alive() {
		c.logger.Debug("target not alive, session not started")
		return stoppedSession(), nil
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:       uuid.NewString(),
		provider: c.provider,
		target:   target,
		cfg:      cfg,
		policy:   rank.PolicyFrom(cfg),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	s.logger = c.logger.With("session", s.id)
	s.state.Store(int32(StateRunning))

	s.wg.Add(2)
	go s.slowLoop(ctx)
	go s.fastLoop(ctx)
	go func() {
		s.wg.Wait()
		close(s.done)
	}()

	s.logger.Info("poll session started",
		"fast_interval", cfg.FastInterval.Duration,
		"slow_interval", cfg.SlowInterval.Duration,
		"top_n", cfg.TopN)
	return s, nil
}

// Once assembles a single snapshot without starting a session: one storage
// read, then one fast collection. The storage figure is 0 if that read fails.
func (c *Controller) Once(ctx context.Context, cfg config.Poll) (model.Snapshot, error) {
	if err := cfg.Validate(); err != nil {
		return model.Snapshot{}, err
	}
	s := &Session{
		provider: c.provider,
		cfg:      cfg,
		policy:   rank.PolicyFrom(cfg),
		logger:   c.logger,
	}
	s.slowTick(ctx)
	return s.collect(ctx)
}
