package parsers

import (
	"bufio"
	"io"
	"strings"

	logpkg "github.com/haukened/navguard/internal/guard/common/log"
)

// ParsePlainList parses a newline-delimited list of patterns.
//
// Behavior:
// - Supports comments starting with '#' (inline or whole-line)
// - Trims surrounding whitespace; case is preserved since matching ignores it
// - Skips lines containing inner whitespace
// - De-duplicates while preserving first-seen order
func ParsePlainList(r io.Reader, logger logpkg.Logger) ([]string, error) {
	if logger == nil {
		logger = logpkg.NewNoopLogger()
	}
	scanner := bufio.NewScanner(r)
	seen := make(map[string]struct{})
	out := make([]string, 0, 64)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := stripLineBOM(scanner.Text())
		if isEmpty, isComment := classifyLine(line); isEmpty || isComment {
			continue
		}

		p := strings.TrimSpace(stripInlineComment(line))
		if !isValidPattern(p) {
			logger.Debug(map[string]any{"line": lineNum, "raw": p}, "plain_skip_invalid")
			continue
		}
		if _, ok := seen[p]; ok {
			logger.Debug(map[string]any{"line": lineNum, "pattern": p}, "plain_skip_duplicate")
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	logger.Debug(map[string]any{"count": len(out)}, "parse_plain_list_done")
	return out, nil
}
