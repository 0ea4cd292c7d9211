package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/haukened/navguard/internal/guard/common/clock"
	"github.com/haukened/navguard/internal/guard/common/log"
	"github.com/haukened/navguard/internal/guard/domain"
	"github.com/haukened/navguard/internal/guard/services/guard"
	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/mafredri/cdp/rpcc"
	"github.com/tidwall/gjson"
)

// callTimeout bounds every protocol call made while handling one paused request.
const callTimeout = 3 * time.Second

// tabSession is one attached page target.
type tabSession interface {
	// Serve intercepts document requests and reports them to h until the
	// connection ends or ctx is done.
	Serve(ctx context.Context, h guard.NavigationHandler) error
	Navigate(ctx context.Context, url string) error
	Close() error
}

type cdpSession struct {
	id     domain.TabID
	conn   *rpcc.Conn
	client *cdp.Client
	clock  clock.Clock
	logger log.Logger
	seq    *atomic.Uint64 // shared by every session of a Source

	closeOnce sync.Once
	closed    chan struct{}
}

// stamp identifies a paused request in the order the browser reported it.
type stamp struct {
	id  string
	seq uint64
	at  time.Time
}

func dialTarget(ctx context.Context, t *devtool.Target, seq *atomic.Uint64, clk clock.Clock, logger log.Logger) (*cdpSession, error) {
	conn, err := rpcc.DialContext(ctx, t.WebSocketDebuggerURL)
	if err != nil {
		return nil, fmt.Errorf("dial target %s: %w", t.ID, err)
	}
	return &cdpSession{
		id:     domain.TabID(t.ID),
		conn:   conn,
		client: cdp.NewClient(conn),
		clock:  clk,
		logger: logger,
		seq:    seq,
		closed: make(chan struct{}),
	}, nil
}

// documentPatterns pauses every document request before it is sent.
func documentPatterns() []fetch.RequestPattern {
	all := "*"
	doc := network.ResourceTypeDocument
	return []fetch.RequestPattern{
		{URLPattern: &all, ResourceType: &doc, RequestStage: fetch.RequestStageRequest},
	}
}

func (s *cdpSession) Serve(ctx context.Context, h guard.NavigationHandler) error {
	// subscribe before enabling so no paused request is missed
	paused, err := s.client.Fetch.RequestPaused(ctx)
	if err != nil {
		return fmt.Errorf("subscribe requestPaused: %w", err)
	}
	defer paused.Close()

	if err := s.client.Fetch.Enable(ctx, &fetch.EnableArgs{Patterns: documentPatterns()}); err != nil {
		return fmt.Errorf("enable fetch: %w", err)
	}

	for {
		ev, err := paused.Recv()
		if err != nil {
			return err
		}
		// stamped before any round trip so tab order follows event order
		st := s.stamp()
		// the request is never held while the decision is made
		s.continueRequest(ctx, ev)
		go s.dispatch(ctx, ev, st, h)
	}
}

func (s *cdpSession) continueRequest(ctx context.Context, ev *fetch.RequestPausedReply) {
	cctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	if err := s.client.Fetch.ContinueRequest(cctx, &fetch.ContinueRequestArgs{RequestID: ev.RequestID}); err != nil {
		s.logger.Debug(map[string]any{"tab": s.id, "request": ev.RequestID, "error": err.Error()}, "continue_request failed")
	}
}

func (s *cdpSession) stamp() stamp {
	return stamp{id: uuid.NewString(), seq: s.seq.Add(1), at: s.clock.Now()}
}

func (s *cdpSession) dispatch(ctx context.Context, ev *fetch.RequestPausedReply, st stamp, h guard.NavigationHandler) {
	cctx, cancel := context.WithTimeout(ctx, callTimeout)
	main, err := s.mainFrameID(cctx)
	if err != nil {
		s.logger.Debug(map[string]any{"tab": s.id, "error": err.Error()}, "getFrameTree failed")
	}
	var title string
	if isMainFrame(ev.FrameID, main, s.id) {
		title = s.title(cctx)
	}
	cancel()

	h.HandleNavigation(ctx, buildNavigation(s.id, ev, st, main, title))
}

func (s *cdpSession) mainFrameID(ctx context.Context) (page.FrameID, error) {
	tree, err := s.client.Page.GetFrameTree(ctx)
	if err != nil {
		return "", err
	}
	return tree.FrameTree.Frame.ID, nil
}

func (s *cdpSession) title(ctx context.Context) string {
	reply, err := s.client.Runtime.Evaluate(ctx, runtime.NewEvaluateArgs("document.title").SetReturnByValue(true))
	if err != nil {
		s.logger.Debug(map[string]any{"tab": s.id, "error": err.Error()}, "Reading document title failed")
		return ""
	}
	if reply.ExceptionDetails != nil {
		return ""
	}
	return titleFromValue(reply.Result.Value)
}

func (s *cdpSession) Navigate(ctx context.Context, url string) error {
	select {
	case <-s.closed:
		return fmt.Errorf("%w: %s", ErrTabGone, s.id)
	default:
	}
	reply, err := s.client.Page.Navigate(ctx, page.NewNavigateArgs(url))
	if err != nil {
		if errors.Is(err, rpcc.ErrConnClosing) {
			return fmt.Errorf("%w: %s", ErrTabGone, s.id)
		}
		return fmt.Errorf("navigate tab %s: %w", s.id, err)
	}
	if reply.ErrorText != nil && *reply.ErrorText != "" {
		return fmt.Errorf("navigate tab %s: %s", s.id, *reply.ErrorText)
	}
	return nil
}

func (s *cdpSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.conn.Close()
	})
	return err
}

// isMainFrame reports whether frame is the tab's top-level frame. When the
// frame tree is unavailable Chrome's convention of main frame id == target id
// is used instead.
func isMainFrame(frame, main page.FrameID, tab domain.TabID) bool {
	if frame == "" {
		return false
	}
	if main != "" {
		return frame == main
	}
	return string(frame) == string(tab)
}

// titleFromValue extracts a string returned by value from Runtime.evaluate.
func titleFromValue(raw json.RawMessage) string {
	r := gjson.ParseBytes(raw)
	if r.Type != gjson.String {
		return ""
	}
	return strings.TrimSpace(r.Str)
}

func buildNavigation(tab domain.TabID, ev *fetch.RequestPausedReply, st stamp, main page.FrameID, title string) domain.Navigation {
	url := ev.Request.URL
	if ev.Request.URLFragment != nil {
		url += *ev.Request.URLFragment
	}
	return domain.Navigation{
		ID:        st.id,
		Seq:       st.seq,
		TabID:     tab,
		MainFrame: isMainFrame(ev.FrameID, main, tab),
		URL:       url,
		Title:     title,
		StartedAt: st.at,
	}
}
