package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yungbote/ratebench-backend/internal/modules/generation"
	"github.com/yungbote/ratebench-backend/internal/platform/logger"
)

// Trigger runs one generation batch.
type Trigger interface {
	TriggerBatch(ctx context.Context) (*generation.BatchResult, error)
}

// Poller drives generation batches on a ticker. While a run reports remaining work it
// keeps triggering without waiting for the next tick.
type Poller struct {
	log      *logger.Logger
	trigger  Trigger
	interval time.Duration
	// maxBurst bounds back-to-back batches so a long run cannot starve shutdown checks.
	maxBurst int

	wg sync.WaitGroup
}

func NewPoller(baseLog *logger.Logger, trigger Trigger, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		log:      baseLog.With("component", "GenerationPoller"),
		trigger:  trigger,
		interval: interval,
		maxBurst: 50,
	}
}

// Start launches the poll loop. It stops when ctx is cancelled; Wait blocks until then.
func (p *Poller) Start(ctx context.Context) {
	p.log.Info("Starting generation poller", "interval", p.interval.String())
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runLoop(ctx)
	}()
}

func (p *Poller) Wait() { p.wg.Wait() }

func (p *Poller) runLoop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.log.Info("Generation poller stopped")
			return
		case <-ticker.C:
			for i := 0; i < p.maxBurst && ctx.Err() == nil; i++ {
				if !p.tick(ctx) {
					break
				}
			}
		}
	}
}

// tick runs one batch and reports whether another should follow immediately.
func (p *Poller) tick(ctx context.Context) (more bool) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("Generation batch panic", "panic", fmt.Sprint(r))
			more = false
		}
	}()
	res, err := p.trigger.TriggerBatch(ctx)
	if err != nil {
		p.log.Warn("Generation batch failed", "error", err)
		return false
	}
	if res == nil || res.Idle {
		return false
	}
	if res.Errors > 0 {
		p.log.Warn("Generation batch finished with errors", "run_id", res.RunID, "errors", res.Errors)
	}
	return !res.Completed && res.Remaining > 0
}
