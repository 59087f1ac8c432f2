package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ledger/internal/log"
	"ledger/internal/rates"
)

// RateProcessorConfig holds configuration for the rate processor
type RateProcessorConfig struct {
	// Interval is how often rates are refreshed (default: 6h)
	Interval time.Duration

	// Timeout bounds a single refresh run (default: 2m)
	Timeout time.Duration
}

// DefaultRateProcessorConfig returns sensible defaults
func DefaultRateProcessorConfig() RateProcessorConfig {
	return RateProcessorConfig{
		Interval: 6 * time.Hour,
		Timeout:  2 * time.Minute,
	}
}

// Refresher is implemented by *rates.Refresher.
type Refresher interface {
	Refresh(ctx context.Context) (rates.RefreshResult, error)
}

// RateProcessor refreshes exchange rates on a fixed interval. Rates only
// ever get appended, so a run can overlap with request traffic.
type RateProcessor struct {
	refresher Refresher
	config    RateProcessorConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	runs    int
}

func NewRateProcessor(refresher Refresher, config RateProcessorConfig) *RateProcessor {
	def := DefaultRateProcessorConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	return &RateProcessor{
		refresher: refresher,
		config:    config,
	}
}

// Start refreshes once immediately and then on every tick. Returns an error
// if already running.
func (p *RateProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("rate processor is already running")
	}
	p.running = true
	stopCh, doneCh := make(chan struct{}), make(chan struct{})
	p.stopCh, p.doneCh = stopCh, doneCh
	p.mu.Unlock()

	go p.runLoop(ctx, stopCh, doneCh)

	slog.InfoContext(ctx, "Rate processor started",
		log.FieldComponent, log.ComponentWorker,
		"interval", p.config.Interval.String())

	return nil
}

// Stop signals the loop and waits for the current run to finish.
func (p *RateProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.stopCh = nil
	p.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Rate processor stopped gracefully", log.FieldComponent, log.ComponentWorker)
	case <-ctx.Done():
		slog.WarnContext(ctx, "Rate processor stop timed out", log.FieldComponent, log.ComponentWorker)
		return ctx.Err()
	}
	return nil
}

func (p *RateProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Runs reports how many refreshes have completed.
func (p *RateProcessor) Runs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runs
}

// runLoop exits on Stop or when ctx ends; either way the processor can be
// started again afterwards.
func (p *RateProcessor) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan struct{}) {
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
		close(doneCh)
	}()

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	p.refresh(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refresh(ctx)
		}
	}
}

func (p *RateProcessor) refresh(ctx context.Context) {
	rctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	result, err := p.refresher.Refresh(rctx)
	if err != nil {
		// Partial failures still append whatever was fetched.
		slog.ErrorContext(ctx, "Rate refresh failed",
			log.FieldComponent, log.ComponentWorker,
			log.FieldOperation, log.OpRefresh,
			"failed_bases", len(result.Failed),
			log.FieldError, err)
	}

	p.mu.Lock()
	p.runs++
	p.mu.Unlock()
}
