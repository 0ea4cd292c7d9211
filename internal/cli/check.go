package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/haukened/navguard/internal/guard/domain"
)

var (
	colorRed     = lipgloss.Color("#f38ba8")
	colorGreen   = lipgloss.Color("#a6e3a1")
	colorBase    = lipgloss.Color("#1e1e2e")
	colorOverlay = lipgloss.Color("#6c7086")
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "check <url>",
		Short: "Show how navguardd would treat a navigation",
		Long: `Run a URL through the decision cascade without redirecting any tab:
the always-allowed list, the whitelist, the blocklist and finally the
classifier (when configured).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			d, err := c.Decide(ctx, args[0], title)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.json {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(d)
			}
			return renderDecision(out, args[0], d)
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "page title passed to the classifier")
	return cmd
}

// renderDecision prints a decision. Colors are only used when w is a terminal.
func renderDecision(w io.Writer, rawURL string, d domain.Decision) error {
	r := lipgloss.NewRenderer(w)
	badge := r.NewStyle().Bold(true).Padding(0, 1).Foreground(colorBase)
	if d.IsBlocked() {
		badge = badge.Background(colorRed)
	} else {
		badge = badge.Background(colorGreen)
	}
	key := r.NewStyle().Foreground(colorOverlay).Width(8)

	if width, ok := terminalWidth(w); ok {
		rawURL = truncate(rawURL, width-10)
	}

	lines := []string{
		badge.Render(strings.ToUpper(d.Verdict.String())) + " " + rawURL,
		key.Render("stage") + string(d.Stage),
	}
	if d.Reason != "" {
		lines = append(lines, key.Render("reason")+d.Reason)
	}
	if c := d.Classification; c != nil {
		label := fmt.Sprintf("%s %s", c.Label, c.Percent())
		if c.Fallback {
			label += " (classifier unavailable)"
		}
		lines = append(lines, key.Render("label")+label)
	}
	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return err
}

func terminalWidth(w io.Writer) (int, bool) {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0, false
	}
	if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
		return width, true
	}
	return 80, true
}

func truncate(s string, max int) string {
	if max < 8 {
		max = 8
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
