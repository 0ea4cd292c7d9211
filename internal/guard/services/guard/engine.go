// Package guard decides whether navigations are allowed and enforces blocks.
package guard

import (
	"context"
	"fmt"
	"strings"

	"github.com/haukened/navguard/internal/guard/common/log"
	"github.com/haukened/navguard/internal/guard/common/metrics"
	"github.com/haukened/navguard/internal/guard/domain"
)

// Engine runs the decision cascade: filter, allow set, deny set, classifier.
// It keeps no state between navigations.
type Engine struct {
	lists      ListSource
	classifier Classifier
	policy     domain.Policy
	blockPage  string
	logger     log.Logger
	metrics    *metrics.Metrics
}

// EngineOptions configures an Engine. Lists and Classifier are required.
type EngineOptions struct {
	Lists      ListSource
	Classifier Classifier
	Policy     domain.Policy
	// BlockPage is the interstitial URL (without query). Navigations to it are
	// always allowed so a redirect can never loop.
	BlockPage string
	Logger    log.Logger
	Metrics   *metrics.Metrics
}

func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Lists == nil {
		return nil, fmt.Errorf("list source is required")
	}
	if opts.Classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Engine{
		lists:      opts.Lists,
		classifier: opts.Classifier,
		policy:     opts.Policy,
		blockPage:  opts.BlockPage,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}, nil
}

// Decide evaluates nav. The first stage that matches wins: an allow-set match
// is never blocked and a deny-set match never reaches the classifier.
func (e *Engine) Decide(ctx context.Context, nav domain.Navigation) domain.Decision {
	d := e.decide(ctx, nav)
	e.metrics.ObserveDecision(d.Verdict.String(), string(d.Stage))

	fields := map[string]any{
		"nav":     nav.ID,
		"tab":     nav.TabID,
		"url":     nav.URL,
		"verdict": d.Verdict.String(),
		"stage":   d.Stage,
	}
	if d.Classification != nil {
		fields["label"] = d.Classification.Label
		fields["score"] = d.Classification.Score
	}
	if d.IsBlocked() {
		fields["reason"] = d.Reason
		e.logger.Info(fields, "Navigation blocked")
	} else if d.Stage != domain.StageFiltered {
		e.logger.Debug(fields, "Navigation allowed")
	}
	return d
}

func (e *Engine) decide(ctx context.Context, nav domain.Navigation) domain.Decision {
	if !nav.IsTopLevel() || !nav.IsHTTP() || e.isBlockPage(nav.URL) {
		return domain.AllowDecision(domain.StageFiltered)
	}

	snap, err := e.lists.Snapshot(ctx)
	if err != nil {
		e.logger.Error(map[string]any{"nav": nav.ID, "url": nav.URL, "error": err.Error()}, "List store unavailable, allowing navigation")
		return domain.AllowDecision(domain.StageStoreError)
	}

	if snap.Allowed(nav.URL) {
		return domain.AllowDecision(domain.StageAllowlist)
	}
	if snap.Denied(nav.URL) {
		return domain.BlockDecision(domain.StageBlocklist, domain.ReasonBlocklist)
	}

	c := e.classifier.Classify(ctx, nav.URL, nav.Title)
	var d domain.Decision
	if e.policy.ShouldBlock(c) {
		d = domain.BlockDecision(domain.StageClassifier, domain.ClassifierReason(c))
	} else {
		d = domain.AllowDecision(domain.StageClassifier)
	}
	d.Classification = &c
	return d
}

func (e *Engine) isBlockPage(url string) bool {
	return e.blockPage != "" && strings.HasPrefix(url, e.blockPage)
}

var _ Decider = (*Engine)(nil)
