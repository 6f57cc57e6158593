package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/internal/flows"
	"go.uber.org/zap"
)

// SweepReport counts entries removed by one sweep, keyed by store:
// "revocations", "sessions" and, for the in-memory limiter, "rate_counters".
type SweepReport struct {
	At      time.Time
	Removed map[string]int
}

// Total sums removed entries across stores.
func (r SweepReport) Total() int {
	total := 0
	for _, n := range r.Removed {
		total += n
	}
	return total
}

// SweepExpired drops revocation markers past their retention, expired
// session records and finished rate windows. Backends with native expiry
// report zero. Running it twice in a row removes nothing the second time.
func (e *Engine) SweepExpired(ctx context.Context) (SweepReport, error) {
	if !e.ready() {
		return SweepReport{}, ErrEngineNotReady
	}

	now := e.now()
	sweepers := map[string]flows.Sweeper{
		"revocations": e.revocations.SweepExpired,
		"sessions":    e.sessions.SweepExpired,
	}
	if e.memCounter != nil {
		sweepers["rate_counters"] = func(_ context.Context, before time.Time) (int, error) {
			return e.memCounter.Sweep(before), nil
		}
	}

	res := flows.RunSweep(ctx, now, sweepers)
	report := SweepReport{At: now, Removed: res.Removed}
	e.metrics.Add(MetricSweepRemoved, uint64(report.Total()))
	if res.Err != nil {
		err := storeErr(res.Err)
		e.emitAudit(ctx, auditEventSweepCompleted, false, "", "", err, nil)
		return report, err
	}
	if report.Total() > 0 {
		e.emitAudit(ctx, auditEventSweepCompleted, true, "", "", nil, func() map[string]string {
			return map[string]string{"removed": fmt.Sprint(report.Total())}
		})
	}
	return report, nil
}

// StartSweeper runs SweepExpired every interval until Close. A zero
// interval uses Config.SweepInterval. It returns an error if a sweeper is
// already running or the engine is closed.
func (e *Engine) StartSweeper(interval time.Duration) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if interval == 0 {
		interval = e.config.SweepInterval
	}
	if interval <= 0 {
		return errors.New("sweep interval must be > 0")
	}

	e.sweeperMu.Lock()
	defer e.sweeperMu.Unlock()
	if e.closed {
		return errors.New("engine closed")
	}
	if e.sweeperStop != nil {
		return errors.New("sweeper already running")
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	e.sweeperStop, e.sweeperDone = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				report, err := e.SweepExpired(ctx)
				cancel()
				if err != nil {
					e.logger.Warn("sweep failed", zap.Error(err))
					continue
				}
				e.logger.Debug("sweep completed", zap.Int("removed", report.Total()))
			}
		}
	}()
	return nil
}

// StopSweeper stops a running sweeper and waits for it to exit. The
// sweeper can be started again afterwards.
func (e *Engine) StopSweeper() {
	e.stopSweeper(false)
}

func (e *Engine) stopSweeper(closing bool) {
	e.sweeperMu.Lock()
	stop, done := e.sweeperStop, e.sweeperDone
	e.sweeperStop, e.sweeperDone = nil, nil
	if closing {
		e.closed = true
	}
	e.sweeperMu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}
