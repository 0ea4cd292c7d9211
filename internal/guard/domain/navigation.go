package domain

import (
	"strings"
	"time"
)

// TabID identifies a browser tab (a DevTools page target).
type TabID string

// Navigation is a pending top-level or sub-frame page load reported by the browser.
type Navigation struct {
	ID        string // unique per event, used to correlate logs and discard stale results
	Seq       uint64 // order in which the browser reported it; 0 when unordered
	TabID     TabID
	MainFrame bool // true only for the tab's top-level frame
	URL       string
	Title     string // title of the document currently shown in the tab; may be empty
	StartedAt time.Time
}

// IsTopLevel reports whether the navigation targets the tab's main frame.
func (n Navigation) IsTopLevel() bool { return n.MainFrame }

// IsHTTP reports whether the URL uses an http or https scheme. Like the
// browser-side check this is a plain prefix test.
func (n Navigation) IsHTTP() bool { return strings.HasPrefix(n.URL, "http") }
