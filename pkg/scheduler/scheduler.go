package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pagecraft/pagecraft/pkg/log"
	"github.com/pagecraft/pagecraft/pkg/storage"
)

// PageExtractor runs one extraction pass for a page.
type PageExtractor interface {
	ExtractPage(ctx context.Context, pagePath string) (bool, error)
}

// Config holds scheduler-wide settings.
type Config struct {
	// OptimizeInterval runs periodic store optimization. Zero disables it.
	OptimizeInterval time.Duration
}

// Scheduler re-extracts configured pages on per-page tickers, so the stored
// block lists track the live site without manual extract runs. An interval
// of zero registers the page without automatic extraction.
type Scheduler struct {
	config    Config
	extractor PageExtractor
	store     *storage.Store
	logger    *log.Logger

	mu             sync.RWMutex
	intervals      map[string]time.Duration
	tickers        map[string]*time.Ticker
	optimizeTicker *time.Ticker
	stopCh         chan struct{}
	ctx            context.Context
	ctxCancel      context.CancelFunc
	wg             sync.WaitGroup
	running        bool
}

// New creates a scheduler. store may be nil when OptimizeInterval is zero.
func New(config Config, ex PageExtractor, store *storage.Store) *Scheduler {
	return &Scheduler{
		config:    config,
		extractor: ex,
		store:     store,
		logger:    log.ForComponent("scheduler"),
		intervals: make(map[string]time.Duration),
		tickers:   make(map[string]*time.Ticker),
		stopCh:    make(chan struct{}),
	}
}

// AddPage registers a page with the default 30-minute interval.
func (s *Scheduler) AddPage(pagePath string) {
	s.AddPageWithInterval(pagePath, 30*time.Minute)
}

// AddPageWithInterval registers a page. When the scheduler is already
// running and the interval is positive, its ticker starts immediately.
func (s *Scheduler) AddPageWithInterval(pagePath string, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.intervals[pagePath] = interval

	if s.running && s.ctx != nil && interval > 0 {
		ticker := time.NewTicker(interval)
		s.tickers[pagePath] = ticker
		s.wg.Add(1)
		go s.runPage(s.ctx, pagePath, ticker)
		s.logger.Infof("started ticker for %s with interval %v", pagePath, interval)
	}
}

// RemovePage stops the page's ticker and forgets it.
func (s *Scheduler) RemovePage(pagePath string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ticker, ok := s.tickers[pagePath]; ok {
		ticker.Stop()
		delete(s.tickers, pagePath)
	}
	delete(s.intervals, pagePath)
}

// Pages returns the registered page paths.
func (s *Scheduler) Pages() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pages := make([]string, 0, len(s.intervals))
	for p := range s.intervals {
		pages = append(pages, p)
	}
	return pages
}

// Start launches a ticker per registered page plus the optimization ticker.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	if len(s.intervals) == 0 {
		return fmt.Errorf("no pages configured")
	}

	s.ctx, s.ctxCancel = context.WithCancel(ctx)
	s.running = true

	for pagePath, interval := range s.intervals {
		if interval == 0 {
			s.logger.Debugf("skipping ticker for %s (interval 0)", pagePath)
			continue
		}
		ticker := time.NewTicker(interval)
		s.tickers[pagePath] = ticker
		s.wg.Add(1)
		go s.runPage(s.ctx, pagePath, ticker)
		s.logger.Infof("started ticker for %s with interval %v", pagePath, interval)
	}

	if s.config.OptimizeInterval > 0 && s.store != nil {
		s.optimizeTicker = time.NewTicker(s.config.OptimizeInterval)
		s.wg.Add(1)
		go s.runOptimization(s.ctx)
	}

	s.logger.Infof("scheduler started with %d pages", len(s.intervals))
	return nil
}

func (s *Scheduler) runPage(ctx context.Context, pagePath string, ticker *time.Ticker) {
	defer s.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.logger.Debugf("scheduled extraction for %s", pagePath)
			if _, err := s.extractor.ExtractPage(ctx, pagePath); err != nil {
				s.logger.Errorf("scheduled extraction failed for %s: %v", pagePath, err)
			}
		}
	}
}

func (s *Scheduler) runOptimization(ctx context.Context) {
	defer s.wg.Done()
	defer s.optimizeTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-s.optimizeTicker.C:
			if err := s.store.Optimize(); err != nil {
				s.logger.Errorf("store optimization failed: %v", err)
			}
		}
	}
}

// ExtractAll runs one extraction pass over every registered page, serially
// in no particular order. Pages the extractor skips are not errors.
func (s *Scheduler) ExtractAll(ctx context.Context) error {
	var firstErr error
	for _, pagePath := range s.Pages() {
		if _, err := s.extractor.ExtractPage(ctx, pagePath); err != nil {
			s.logger.Errorf("extracting %s: %v", pagePath, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("extracting %s: %w", pagePath, err)
			}
		}
	}
	return firstErr
}

// IsRunning reports whether Start has been called and Stop has not.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Stop cancels every ticker goroutine and waits for them to exit. The
// scheduler cannot be restarted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	if s.ctxCancel != nil {
		s.ctxCancel()
	}
	for pagePath, ticker := range s.tickers {
		ticker.Stop()
		delete(s.tickers, pagePath)
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Infof("scheduler stopped")
}
