package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Dicklesworthstone/sysmon/internal/config"
	"github.com/Dicklesworthstone/sysmon/internal/logger"
	"github.com/Dicklesworthstone/sysmon/internal/model"
	"github.com/Dicklesworthstone/sysmon/internal/rank"
)

var errNoVolumes = errors.New("provider reported no filesystems")

// Stats counts ticks for one session.
type Stats struct {
	FastTicks    int64 `json:"fastTicks"`
	FastFailures int64 `json:"fastFailures"`
	SlowTicks    int64 `json:"slowTicks"`
	SlowFailures int64 `json:"slowFailures"`
	Published    int64 `json:"published"`
}

// Session is one running pair of loops and the handle that stops them.
type Session struct {
	id       string
	provider Provider
	target   Target
	cfg      config.Poll
	policy   rank.Policy
	logger   *slog.Logger

	storage storageCell
	state   atomic.Int32

	cancel   context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup
	done     chan struct{}

	fastTicks, fastFailures atomic.Int64
	slowTicks, slowFailures atomic.Int64
	published               atomic.Int64
}

func stoppedSession() *Session {
	s := &Session{
		logger: logger.Discard(),
		cancel: func() {},
		done:   make(chan struct{}),
	}
	s.state.Store(int32(StateStopped))
	close(s.done)
	return s
}

// Stop cancels both loops. It is idempotent and safe after the session
// stopped on its own. A tick already in flight may still publish once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		if State(s.state.Swap(int32(StateStopped))) == StateRunning {
			s.logger.Info("poll session stopped")
		}
		s.cancel()
	})
}

// Done is closed once both loops have returned.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) ID() string { return s.id }

func (s *Session) Stats() Stats {
	return Stats{
		FastTicks:    s.fastTicks.Load(),
		FastFailures: s.fastFailures.Load(),
		SlowTicks:    s.slowTicks.Load(),
		SlowFailures: s.slowFailures.Load(),
		Published:    s.published.Load(),
	}
}

// fastLoop runs a tick immediately and then waits FastInterval after each
// tick completes, so a slow fetch throttles the loop instead of stacking ticks.
func (s *Session) fastLoop(ctx context.Context) {
	defer s.wg.Done()
	defer s.Stop()

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if s.State() != StateRunning {
			return
		}
		if !s.target.Alive() {
			s.logger.Debug("target gone, ending session")
			return
		}
		s.fastTick(ctx)
		timer.Reset(s.cfg.FastInterval.Duration)
	}
}

// slowLoop fetches storage once at start and then at a fixed rate.
func (s *Session) slowLoop(ctx context.Context) {
	defer s.wg.Done()

	s.slowTick(ctx)
	ticker := time.NewTicker(s.cfg.SlowInterval.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.slowTick(ctx)
		}
	}
}

func (s *Session) fastTick(ctx context.Context) {
	s.fastTicks.Add(1)
	snap, err := s.collect(ctx)
	if err != nil {
		s.fastFailures.Add(1)
		if ctx.Err() == nil {
			s.logger.Warn("fast tick failed", "loop", "fast", "err", err)
		}
		return
	}
	s.target.Publish(snap)
	s.published.Add(1)
}

// collect fetches load, memory and processes concurrently and assembles a
// snapshot. Any failure discards the whole tick.
func (s *Session) collect(ctx context.Context) (model.Snapshot, error) {
	var (
		load  model.Load
		mem   model.Memory
		procs []model.ProcessSample
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return guard("load", func() (err error) {
			load, err = s.provider.CurrentLoad(gctx)
			return err
		})
	})
	g.Go(func() error {
		return guard("memory", func() (err error) {
			mem, err = s.provider.Memory(gctx)
			return err
		})
	})
	g.Go(func() error {
		return guard("processes", func() (err error) {
			procs, err = s.provider.ProcessList(gctx)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return model.Snapshot{}, err
	}

	top := rank.Processes(procs, s.policy)
	return model.NewSnapshot(time.Now(), load, mem, s.storage.Load(), top), nil
}

func (s *Session) slowTick(ctx context.Context) {
	s.slowTicks.Add(1)
	err := guard("filesystems", func() error {
		volumes, err := s.provider.FilesystemUsage(ctx)
		if err != nil {
			return err
		}
		if len(volumes) == 0 {
			return errNoVolumes
		}
		s.storage.Store(volumes[0].Fraction())
		return nil
	})
	if err != nil {
		s.slowFailures.Add(1)
		if ctx.Err() == nil {
			s.logger.Warn("slow tick failed", "loop", "slow", "err", err)
		}
	}
}

// guard runs fn, labelling its error and turning a panic into an error so
// a misbehaving provider costs one tick, not the process.
func guard(what string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", what, r)
		}
	}()
	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

// storageCell is the one value shared between the loops: written only by
// the slow loop, read only by the fast loop. Zero until the first write.
type storageCell struct {
	mu    sync.RWMutex
	value float64
}

func (c *storageCell) Store(v float64) {
	c.mu.Lock()
	c.value = model.Clamp01(v)
	c.mu.Unlock()
}

func (c *storageCell) Load() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}
