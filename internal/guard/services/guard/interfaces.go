package guard

import (
	"context"
	"errors"

	"github.com/haukened/navguard/internal/guard/domain"
	"github.com/haukened/navguard/internal/guard/repos/lists"
)

// ErrTabGone is returned by a Redirector when the tab no longer exists.
// Enforcement treats it like a stale navigation.
var ErrTabGone = errors.New("tab is gone")

// ListSource provides the compiled allow/deny lists.
type ListSource interface {
	Snapshot(ctx context.Context) (*lists.Snapshot, error)
}

// Classifier labels a page. Implementations never fail: any error is
// reported as domain.FallbackClassification().
type Classifier interface {
	Classify(ctx context.Context, url, title string) domain.Classification
}

// Decider evaluates one navigation.
type Decider interface {
	Decide(ctx context.Context, nav domain.Navigation) domain.Decision
}

// Redirector sends a tab to another URL.
type Redirector interface {
	Redirect(ctx context.Context, tab domain.TabID, target string) error
}

// TabTracker remembers each tab's latest navigation.
type TabTracker interface {
	Begin(tab domain.TabID, navID string, seq uint64) bool
	IsCurrent(tab domain.TabID, navID string) bool
	Forget(tab domain.TabID)
}

// NavigationHandler receives browser events from a NavigationSource.
type NavigationHandler interface {
	// HandleNavigation is called once per pending navigation, each call on its own goroutine.
	HandleNavigation(ctx context.Context, nav domain.Navigation)
	// TabClosed is called when the browser reports a tab gone.
	TabClosed(tab domain.TabID)
}

// NavigationSource delivers navigations until ctx is done.
type NavigationSource interface {
	Run(ctx context.Context, handler NavigationHandler) error
}
