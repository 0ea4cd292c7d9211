package parsers

import (
	"bufio"
	"io"
	"strings"

	logpkg "github.com/haukened/navguard/internal/guard/common/log"
	"github.com/haukened/navguard/internal/guard/common/utils"
)

// ParseHostsFile extracts hostnames from /etc/hosts-style blocklists
// ("0.0.0.0 ads.example.com"). The address column is ignored and names are
// lower-cased. Local names such as "localhost" are skipped by the two-label rule.
func ParseHostsFile(r io.Reader, logger logpkg.Logger) ([]string, error) {
	if logger == nil {
		logger = logpkg.NewNoopLogger()
	}
	scanner := bufio.NewScanner(r)
	seen := make(map[string]struct{})
	out := make([]string, 0, 256)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := stripLineBOM(scanner.Text())
		if isEmpty, isComment := classifyLine(line); isEmpty || isComment {
			continue
		}

		fields := strings.Fields(stripInlineComment(line))
		if len(fields) < 2 {
			logger.Debug(map[string]any{"line": lineNum}, "hosts_no_hostnames")
			continue
		}
		for _, raw := range fields[1:] {
			name := utils.CanonicalHost(raw)
			if !isHostname(name) {
				logger.Debug(map[string]any{"line": lineNum, "raw": raw}, "hosts_skip_invalid")
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	logger.Debug(map[string]any{"count": len(out)}, "parse_hosts_done")
	return out, nil
}
