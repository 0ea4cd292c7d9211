package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultBlockReason is shown by the interstitial when no reason was passed.
const DefaultBlockReason = "Blocked by policy"

// BlockPageURL builds the interstitial URL for a blocked navigation. The
// original URL and the reason travel as the site and reason query parameters.
func BlockPageURL(base, site, reason string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "site=" + url.QueryEscape(site) + "&reason=" + url.QueryEscape(reason)
}

// BlockPage is the decoded query of an interstitial URL.
type BlockPage struct {
	Site   string
	Reason string
}

// ParseBlockPage decodes the site and reason parameters of an interstitial URL.
// A missing reason yields DefaultBlockReason.
func ParseBlockPage(raw string) (BlockPage, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return BlockPage{}, fmt.Errorf("parse block page url: %w", err)
	}
	return BlockPageFromQuery(u.Query()), nil
}

// BlockPageFromQuery decodes already-parsed query values.
func BlockPageFromQuery(q url.Values) BlockPage {
	bp := BlockPage{Site: q.Get("site"), Reason: q.Get("reason")}
	if bp.Reason == "" {
		bp.Reason = DefaultBlockReason
	}
	return bp
}
