// Package classifier calls a hosted zero-shot text classification model to
// label pages that are on neither list.
package classifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/haukened/navguard/internal/guard/common/clock"
	"github.com/haukened/navguard/internal/guard/common/log"
	"github.com/haukened/navguard/internal/guard/common/metrics"
	"github.com/haukened/navguard/internal/guard/domain"
	"github.com/haukened/navguard/internal/guard/services/guard"
)

const (
	DefaultEndpoint = "https://api-inference.huggingface.co"
	DefaultModel    = "facebook/bart-large-mnli"
	DefaultTimeout  = 8 * time.Second

	maxResponseBytes = 1 << 20
)

var (
	errEmptyResult = errors.New("classifier returned no labels")
	errMalformed   = errors.New("classifier response is not valid json")
)

// Client is a zero-shot classification client for the Hugging Face
// inference API. It never returns an error: every failure becomes the
// fallback classification.
type Client struct {
	url     string
	token   string
	timeout time.Duration
	labels  []string
	http    *http.Client
	logger  log.Logger
	metrics *metrics.Metrics
	clock   clock.Clock
}

// Options configures a Client. Labels is the candidate vocabulary and is required.
type Options struct {
	Endpoint string
	Model    string
	Token    string
	Timeout  time.Duration
	Labels   []string
	// options to inject for testing purposes
	HTTPClient *http.Client
	Logger     log.Logger
	Metrics    *metrics.Metrics
	Clock      clock.Clock
}

func New(opts Options) (*Client, error) {
	if len(opts.Labels) == 0 {
		return nil, fmt.Errorf("classifier needs at least one candidate label")
	}
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	return &Client{
		url:     strings.TrimRight(opts.Endpoint, "/") + "/models/" + strings.Trim(opts.Model, "/"),
		token:   opts.Token,
		timeout: opts.Timeout,
		labels:  opts.Labels,
		http:    opts.HTTPClient,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		clock:   opts.Clock,
	}, nil
}

// ensureContextDeadline bounds ctx by the client timeout unless it already has a deadline.
func (c *Client) ensureContextDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); !ok {
		return context.WithTimeout(ctx, c.timeout)
	}
	return ctx, nil
}

// Classify returns the top label for the page. There is no retry.
func (c *Client) Classify(ctx context.Context, url, title string) domain.Classification {
	ctx, cancel := c.ensureContextDeadline(ctx)
	if cancel != nil {
		defer cancel()
	}

	start := c.clock.Now()
	result, err := c.classify(ctx, domain.ClassifierInput(url, title))
	took := c.clock.Now().Sub(start)
	if err != nil {
		outcome := metrics.ClassifierFallback
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = metrics.ClassifierTimeout
		}
		c.metrics.ObserveClassifier(outcome, took)
		c.logger.Warn(map[string]any{"url": url, "error": err.Error()}, "Classifier failed, using fallback")
		return domain.FallbackClassification()
	}
	c.metrics.ObserveClassifier(metrics.ClassifierOK, took)
	c.logger.Debug(map[string]any{"url": url, "label": result.Label, "score": result.Score}, "Page classified")
	return result
}

func (c *Client) classify(ctx context.Context, text string) (domain.Classification, error) {
	body, err := buildRequestBody(text, c.labels)
	if err != nil {
		return domain.Classification{}, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return domain.Classification{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Classification{}, fmt.Errorf("post %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.Classification{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := gjson.GetBytes(raw, "error").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return domain.Classification{}, fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	}
	return parseResponse(raw)
}

// buildRequestBody renders
// {"inputs":text,"parameters":{"candidate_labels":[...],"multi_label":false}}.
func buildRequestBody(text string, labels []string) ([]byte, error) {
	body, err := sjson.SetBytes([]byte(`{}`), "inputs", text)
	if err != nil {
		return nil, err
	}
	if body, err = sjson.SetBytes(body, "parameters.candidate_labels", labels); err != nil {
		return nil, err
	}
	return sjson.SetBytes(body, "parameters.multi_label", false)
}

// parseResponse accepts the zero-shot object form {"labels":[...],"scores":[...]},
// whose first entry is the top label, and the list form [{"label":..,"score":..}],
// from which the highest score is taken.
func parseResponse(raw []byte) (domain.Classification, error) {
	if !gjson.ValidBytes(raw) {
		return domain.Classification{}, errMalformed
	}
	doc := gjson.ParseBytes(raw)
	if e := doc.Get("error"); e.Exists() {
		return domain.Classification{}, fmt.Errorf("classifier error: %s", e.String())
	}

	if doc.IsArray() {
		best := domain.Classification{Score: -1}
		doc.ForEach(func(_, item gjson.Result) bool {
			label, score := item.Get("label"), item.Get("score")
			if label.String() != "" && score.Type == gjson.Number && score.Float() > best.Score {
				best = domain.Classification{Label: domain.Label(label.String()), Score: score.Float()}
			}
			return true
		})
		if best.Label == "" {
			return domain.Classification{}, errEmptyResult
		}
		return best, nil
	}

	label := doc.Get("labels.0")
	score := doc.Get("scores.0")
	if label.String() == "" {
		return domain.Classification{}, errEmptyResult
	}
	if score.Type != gjson.Number {
		return domain.Classification{}, fmt.Errorf("classifier returned label %q without a score", label.String())
	}
	return domain.Classification{Label: domain.Label(label.String()), Score: score.Float()}, nil
}

// Disabled is used when no classifier is configured. Every page gets the
// fallback classification, so only the lists can block.
type Disabled struct {
	Metrics *metrics.Metrics
}

func (d Disabled) Classify(context.Context, string, string) domain.Classification {
	d.Metrics.ObserveClassifier(metrics.ClassifierDisabled, 0)
	return domain.FallbackClassification()
}

var (
	_ guard.Classifier = (*Client)(nil)
	_ guard.Classifier = Disabled{}
)
