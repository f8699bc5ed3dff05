package scheduler

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/JonasWeigert/SubHub/internal/pkg/billing"
	"github.com/JonasWeigert/SubHub/internal/pkg/env"
)

const defaultSweepIntervalMinutes = 60

// Manager runs the recurring background tasks, currently the trial
// expiration sweep.
type Manager struct {
	engine      *billing.Service
	sweepTicker *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global scheduler (singleton). The billing engine is
// bound on first call; later calls ignore the argument.
func GetManager(engine *billing.Service) *Manager {
	managerOnce.Do(func() {
		globalManager = &Manager{
			engine: engine,
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// Start starts the background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so the manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[Scheduler] Starting background tasks")

	interval := sweepInterval()
	m.sweepTicker = time.NewTicker(interval)
	m.wg.Add(1)
	go m.trialSweepWorker(interval)

	log.Info("[Scheduler] Started successfully")
}

// Stop stops the background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[Scheduler] Stopping background tasks...")

	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
	}

	close(m.stopCh)
	m.running = false

	m.wg.Wait()

	log.Info("[Scheduler] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// trialSweepWorker runs the trial expiration sweep on every tick.
func (m *Manager) trialSweepWorker(interval time.Duration) {
	defer m.wg.Done()
	log.Infof("[Scheduler] Started trial sweep worker (interval: %v)", interval)

	for {
		select {
		case <-m.stopCh:
			log.Info("[Scheduler] Trial sweep worker stopping")
			return
		case <-m.sweepTicker.C:
			m.runSweepOnce()
		}
	}
}

func (m *Manager) runSweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := m.engine.ProcessTrialExpirations(ctx)
	if err != nil {
		log.Errorf("[Scheduler] Trial sweep failed: %v", err)
		return
	}
	log.Infof("[Scheduler] Trial sweep done: %d expired, %d canceled, %d running, %d activated, %d errors",
		result.ExpiredFound, result.Canceled, result.RunningFound, result.Activated, result.Errors)
}

// RunTrialSweepOnce exposes a manual trigger for a single sweep (admin use).
func (m *Manager) RunTrialSweepOnce(ctx context.Context) (*billing.SweepResult, error) {
	return m.engine.ProcessTrialExpirations(ctx)
}

func sweepInterval() time.Duration {
	raw := env.GetEnv("TRIAL_SWEEP_INTERVAL_MINUTES", "")
	if raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return time.Duration(v) * time.Minute
		}
		log.Warnf("[Scheduler] Invalid TRIAL_SWEEP_INTERVAL_MINUTES %q, using default", raw)
	}
	return defaultSweepIntervalMinutes * time.Minute
}
