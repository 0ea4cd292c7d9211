package guard

import (
	"context"
	"errors"
	"fmt"

	"github.com/haukened/navguard/internal/guard/common/log"
	"github.com/haukened/navguard/internal/guard/common/metrics"
	"github.com/haukened/navguard/internal/guard/domain"
)

// Guard enforces decisions: blocked tabs are redirected to the interstitial
// unless the user already navigated elsewhere.
type Guard struct {
	decider    Decider
	redirector Redirector
	tabs       TabTracker
	blockPage  string
	logger     log.Logger
	metrics    *metrics.Metrics
}

type Options struct {
	Decider    Decider
	Redirector Redirector
	Tabs       TabTracker
	BlockPage  string
	Logger     log.Logger
	Metrics    *metrics.Metrics
}

func New(opts Options) (*Guard, error) {
	switch {
	case opts.Decider == nil:
		return nil, fmt.Errorf("decider is required")
	case opts.Redirector == nil:
		return nil, fmt.Errorf("redirector is required")
	case opts.Tabs == nil:
		return nil, fmt.Errorf("tab tracker is required")
	case opts.BlockPage == "":
		return nil, fmt.Errorf("block page url is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Guard{
		decider:    opts.Decider,
		redirector: opts.Redirector,
		tabs:       opts.Tabs,
		blockPage:  opts.BlockPage,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}, nil
}

// Run feeds navigations from src into the guard until ctx is done.
func (g *Guard) Run(ctx context.Context, src NavigationSource) error {
	return src.Run(ctx, g)
}

// HandleNavigation decides nav and redirects the tab when it is blocked. The
// redirect is skipped if a newer navigation started in the tab meanwhile.
func (g *Guard) HandleNavigation(ctx context.Context, nav domain.Navigation) {
	if nav.IsTopLevel() && !g.tabs.Begin(nav.TabID, nav.ID, nav.Seq) {
		g.logger.Debug(map[string]any{"nav": nav.ID, "tab": nav.TabID, "seq": nav.Seq}, "Newer navigation already tracked")
	}

	d := g.decider.Decide(ctx, nav)
	if !d.IsBlocked() {
		return
	}

	if !g.tabs.IsCurrent(nav.TabID, nav.ID) {
		g.metrics.ObserveRedirect("stale")
		g.logger.Debug(map[string]any{"nav": nav.ID, "tab": nav.TabID}, "Discarding stale block")
		return
	}

	target := domain.BlockPageURL(g.blockPage, nav.URL, d.Reason)
	if err := g.redirector.Redirect(ctx, nav.TabID, target); err != nil {
		if errors.Is(err, ErrTabGone) || errors.Is(err, context.Canceled) {
			g.metrics.ObserveRedirect("stale")
			g.logger.Debug(map[string]any{"nav": nav.ID, "tab": nav.TabID, "error": err.Error()}, "Tab gone before redirect")
			return
		}
		g.metrics.ObserveRedirect("failed")
		g.logger.Error(map[string]any{"nav": nav.ID, "tab": nav.TabID, "error": err.Error()}, "Redirect to block page failed")
		return
	}
	g.metrics.ObserveRedirect("sent")
}

// TabClosed forgets the tab so late results for it are discarded.
func (g *Guard) TabClosed(tab domain.TabID) {
	g.tabs.Forget(tab)
}

var _ NavigationHandler = (*Guard)(nil)
