package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	navlog "github.com/haukened/navguard/internal/guard/common/log"
	"github.com/haukened/navguard/internal/guard/common/utils"
	"github.com/haukened/navguard/internal/guard/domain"
	"github.com/haukened/navguard/internal/guard/repos/lists/parsers"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "list <whitelist|blocklist>",
		Short:     "Print a list with entry indexes",
		Args:      cobra.ExactArgs(1),
		ValidArgs: listKeyNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			key := listKey(args[0])
			entries, err := c.List(ctx, key)
			if err != nil {
				return err
			}
			return printList(cmd.OutOrStdout(), opts.json, key, entries)
		},
	}
}

func newAddCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <whitelist|blocklist> <site>",
		Short: "Append a pattern to a list",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			key := listKey(args[0])
			entries, err := c.Add(ctx, key, args[1])
			if err != nil {
				return err
			}
			return printList(cmd.OutOrStdout(), opts.json, key, entries)
		},
	}
}

func newRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <whitelist|blocklist> <index>",
		Short: "Remove the entry at index (see list)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("index must be a number: %q", args[1])
			}
			c, err := opts.client(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			key := listKey(args[0])
			entries, err := c.Remove(ctx, key, index)
			if err != nil {
				return err
			}
			return printList(cmd.OutOrStdout(), opts.json, key, entries)
		},
	}
}

func newWhitelistCmd(opts *rootOptions) *cobra.Command {
	var registrable bool
	cmd := &cobra.Command{
		Use:   "whitelist <site>",
		Short: "Whitelist a site the way the block page does",
		Long: `Whitelist a site the way the block page's unblock button does.

With --domain a full URL is reduced to its registrable domain first, so
https://www.bbc.co.uk/news whitelists bbc.co.uk.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			site := args[0]
			if registrable {
				site = utils.RegistrableDomain(site)
				if site == "" {
					return fmt.Errorf("no domain in %q", args[0])
				}
			}
			c, err := opts.client(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			if err := c.Whitelist(ctx, site); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "whitelisted %s\n", site)
			return err
		},
	}
	cmd.Flags().BoolVarP(&registrable, "domain", "d", false, "reduce the site to its registrable domain")
	return cmd
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "import <whitelist|blocklist> <file>",
		Short: "Append every pattern of a file to a list",
		Long: `Append every pattern of a file to a list. Patterns already in the list
are skipped. Use "-" to read from stdin.

Formats:
  plain  one pattern per line, # comments
  hosts  hosts-file lines ("0.0.0.0 example.com"), host names only`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := opts.logger(cmd)
			patterns, err := readPatterns(cmd.InOrStdin(), args[1], format, charmAdapter{logger})
			if err != nil {
				return err
			}

			c, err := opts.client(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			key := listKey(args[0])
			current, err := c.List(ctx, key)
			if err != nil {
				return err
			}
			have := make(map[string]bool, len(current))
			for _, p := range current {
				have[p] = true
			}

			added, skipped := 0, 0
			for _, p := range patterns {
				if have[p] {
					skipped++
					continue
				}
				if _, err := c.Add(ctx, key, p); err != nil {
					return fmt.Errorf("add %q: %w", p, err)
				}
				have[p] = true
				added++
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d, skipped %d already present\n", added, skipped)
			return err
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "plain", "file format: plain or hosts")
	return cmd
}

func readPatterns(stdin io.Reader, path, format string, logger navlog.Logger) ([]string, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	switch format {
	case "plain":
		return parsers.ParsePlainList(r, logger)
	case "hosts":
		return parsers.ParseHostsFile(r, logger)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func printList(w io.Writer, asJSON bool, key domain.ListKey, entries domain.List) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if entries == nil {
			entries = domain.List{}
		}
		return enc.Encode(map[string]any{"key": key, "entries": entries})
	}
	if len(entries) == 0 {
		_, err := fmt.Fprintf(w, "%s is empty\n", key)
		return err
	}
	width := len(strconv.Itoa(len(entries) - 1))
	var b strings.Builder
	for i, e := range entries {
		fmt.Fprintf(&b, "%*d  %s\n", width, i, e)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// listKey canonicalizes a known list name. Unknown names are passed through
// so navguardd reports them.
func listKey(arg string) domain.ListKey {
	if k, err := domain.ParseListKey(arg); err == nil {
		return k
	}
	return domain.ListKey(arg)
}

func listKeyNames() []string {
	keys := domain.ListKeys()
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}

// charmAdapter lets the shared parsers log through the CLI's logger.
type charmAdapter struct {
	l *log.Logger
}

func keyvals(fields map[string]any) []any {
	out := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		out = append(out, k, v)
	}
	return out
}

func (a charmAdapter) Info(fields map[string]any, msg string)  { a.l.Info(msg, keyvals(fields)...) }
func (a charmAdapter) Error(fields map[string]any, msg string) { a.l.Error(msg, keyvals(fields)...) }
func (a charmAdapter) Debug(fields map[string]any, msg string) { a.l.Debug(msg, keyvals(fields)...) }
func (a charmAdapter) Warn(fields map[string]any, msg string)  { a.l.Warn(msg, keyvals(fields)...) }
func (a charmAdapter) Panic(fields map[string]any, msg string) { a.l.Error(msg, keyvals(fields)...) }
func (a charmAdapter) Fatal(fields map[string]any, msg string) { a.l.Error(msg, keyvals(fields)...) }

var _ navlog.Logger = charmAdapter{}
