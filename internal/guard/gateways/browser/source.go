// Package browser connects navguard to a Chromium browser over the DevTools
// protocol. It reports every document request as a navigation and redirects
// tabs on request.
package browser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haukened/navguard/internal/guard/common/clock"
	"github.com/haukened/navguard/internal/guard/common/log"
	"github.com/haukened/navguard/internal/guard/domain"
	"github.com/haukened/navguard/internal/guard/services/guard"
	"github.com/mafredri/cdp/devtool"
)

// ErrTabGone is returned by Redirect when the tab is no longer attached.
var ErrTabGone = guard.ErrTabGone

const DefaultPollInterval = time.Second

type targetLister interface {
	List(ctx context.Context) ([]*devtool.Target, error)
}

type attachFunc func(ctx context.Context, t *devtool.Target) (tabSession, error)

type Options struct {
	DevToolsURL  string
	PollInterval time.Duration
	Logger       log.Logger
	Clock        clock.Clock
}

// Source attaches to every page target of one browser. It implements both
// guard.NavigationSource and guard.Redirector.
type Source struct {
	lister   targetLister
	attach   attachFunc
	interval time.Duration
	logger   log.Logger
	seq      atomic.Uint64

	mu       sync.Mutex
	sessions map[domain.TabID]tabSession
}

func New(opts Options) (*Source, error) {
	if opts.DevToolsURL == "" {
		return nil, fmt.Errorf("devtools url is required")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	logger, clk := opts.Logger, opts.Clock
	s := &Source{
		lister:   devtool.New(opts.DevToolsURL),
		interval: opts.PollInterval,
		logger:   logger,
		sessions: make(map[domain.TabID]tabSession),
	}
	s.attach = func(ctx context.Context, t *devtool.Target) (tabSession, error) {
		return dialTarget(ctx, t, &s.seq, clk, logger)
	}
	return s, nil
}

// Run polls the browser for page targets until ctx is done. New targets are
// attached and served; targets that disappear are detached and reported to
// h.TabClosed.
func (s *Source) Run(ctx context.Context, h guard.NavigationHandler) error {
	var wg sync.WaitGroup
	defer func() {
		s.closeAll()
		wg.Wait()
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.sync(ctx, h, &wg)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Source) sync(ctx context.Context, h guard.NavigationHandler, wg *sync.WaitGroup) {
	targets, err := s.lister.List(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn(map[string]any{"error": err.Error()}, "Listing DevTools targets failed")
		}
		return
	}

	added, removed := diffTargets(s.attached(), targets)
	for _, id := range removed {
		if s.detach(id, nil) {
			s.logger.Debug(map[string]any{"tab": id}, "Tab closed")
			h.TabClosed(id)
		}
	}

	for _, t := range added {
		sess, err := s.attach(ctx, t)
		if err != nil {
			s.logger.Warn(map[string]any{"tab": t.ID, "error": err.Error()}, "Attaching to tab failed")
			continue
		}
		id := domain.TabID(t.ID)
		s.mu.Lock()
		s.sessions[id] = sess
		s.mu.Unlock()
		s.logger.Debug(map[string]any{"tab": id, "url": t.URL}, "Tab attached")

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := sess.Serve(ctx, h)
			// the stream ended without the poll noticing; treat the tab as gone
			if s.detach(id, sess) && ctx.Err() == nil {
				if err != nil {
					s.logger.Debug(map[string]any{"tab": id, "error": err.Error()}, "Tab stream ended")
				}
				h.TabClosed(id)
			}
		}()
	}
}

// Redirect navigates tab to target. Unknown tabs yield ErrTabGone.
func (s *Source) Redirect(ctx context.Context, tab domain.TabID, target string) error {
	s.mu.Lock()
	sess, ok := s.sessions[tab]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrTabGone, tab)
	}
	return sess.Navigate(ctx, target)
}

// Attached returns the number of tabs currently attached.
func (s *Source) Attached() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Source) attached() map[domain.TabID]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.TabID]struct{}, len(s.sessions))
	for id := range s.sessions {
		out[id] = struct{}{}
	}
	return out
}

// detach closes and forgets the session for id. When want is non-nil the
// session is only removed if it is still the one registered for id.
func (s *Source) detach(id domain.TabID, want tabSession) bool {
	s.mu.Lock()
	cur, ok := s.sessions[id]
	if !ok || (want != nil && cur != want) {
		s.mu.Unlock()
		return false
	}
	delete(s.sessions, id)
	s.mu.Unlock()

	if err := cur.Close(); err != nil {
		s.logger.Debug(map[string]any{"tab": id, "error": err.Error()}, "Closing tab session failed")
	}
	return true
}

func (s *Source) closeAll() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[domain.TabID]tabSession)
	s.mu.Unlock()
	for _, sess := range sessions {
		_ = sess.Close()
	}
}

// diffTargets compares the attached tabs with the browser's current targets.
// Only page targets with a debugger URL can be attached; a target without one
// is already claimed by another DevTools client.
func diffTargets(known map[domain.TabID]struct{}, targets []*devtool.Target) (added []*devtool.Target, removed []domain.TabID) {
	seen := make(map[domain.TabID]struct{}, len(targets))
	for _, t := range targets {
		if t == nil || t.Type != devtool.Page {
			continue
		}
		id := domain.TabID(t.ID)
		seen[id] = struct{}{}
		if _, ok := known[id]; ok {
			continue
		}
		if t.WebSocketDebuggerURL == "" {
			continue
		}
		added = append(added, t)
	}
	for id := range known {
		if _, ok := seen[id]; !ok {
			removed = append(removed, id)
		}
	}
	return added, removed
}

var (
	_ guard.NavigationSource = (*Source)(nil)
	_ guard.Redirector       = (*Source)(nil)
)
