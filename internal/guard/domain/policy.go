package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// DefaultBlockThreshold is the minimum classifier confidence for a high-risk block.
const DefaultBlockThreshold = 0.6

// Policy is the immutable filtering configuration. It is built once at startup
// and handed to every component that needs it. Callers must not mutate the
// slices of a Policy they did not construct.
type Policy struct {
	// DefaultSafe entries always allow, regardless of lists or classifier.
	DefaultSafe []string
	// MustBlock entries are merged into the persisted blocklist once per revision.
	MustBlock []string
	// Labels is the full candidate vocabulary sent to the classifier.
	Labels []Label
	// HighRiskLabels are the labels that may trigger a block.
	HighRiskLabels []Label
	// BlockThreshold is inclusive: score >= threshold blocks.
	BlockThreshold float64
}

// DefaultPolicy returns the built-in school filtering policy.
func DefaultPolicy() Policy {
	return Policy{
		DefaultSafe: []string{
			"canvaslms.com", "agasd.org", "google.com/classroom",
			"agasd.instructure.com", "instructure.com", "clever.com",
			"readworks.com", "google.com", "youtube.com", "docs.google.com",
			"mail.google.com", "wikipedia.org", "khanacademy.org", "github.com",
		},
		MustBlock: []string{
			"minecraft.net",
			"roblox.com",
			"discord.com",
			"steamcommunity.com",
			"epicgames.com",
			"fortnite.com",
			"onlyfans.com",
			"pornhub.com",
			"xvideos.com",
			"thepiratebay.org",
			"chatgpt.com",
			"facebook.com",
			"blender.org",
			"tiktok.com",
			"whatsapp.com",
			"irs.gov",
			"bbc.com",
			"icloud.com",
			"dev.to",
			"apple.com",
			"instagram.com",
			"fbi.gov",
			"walmart.com",
			"amazon.com",
			"instacart.com",
			"aldi.us",
			"turbotax.intuit.com",
			"intuit.com",
			"croxy.org",
			"tylerhalltech.com",
			"tylerhalltech.com/noguardian2/",
		},
		Labels: []Label{
			LabelEducational, LabelWork, LabelEntertainment,
			LabelAdult, LabelUnsafe, LabelGaming, LabelMusic,
			LabelSocialMedia, LabelGambling, LabelProxy, LabelCheating,
		},
		HighRiskLabels: []Label{
			LabelAdult, LabelUnsafe,
			LabelGaming, LabelMusic,
			LabelSocialMedia, LabelGambling,
			LabelProxy, LabelCheating,
		},
		BlockThreshold: DefaultBlockThreshold,
	}
}

// LabelStrings returns the candidate vocabulary as plain strings.
func (p Policy) LabelStrings() []string {
	out := make([]string, len(p.Labels))
	for i, l := range p.Labels {
		out[i] = string(l)
	}
	return out
}

// IsHighRisk reports whether label is one of the blocking categories.
func (p Policy) IsHighRisk(label Label) bool {
	for _, l := range p.HighRiskLabels {
		if l == label {
			return true
		}
	}
	return false
}

// ShouldBlock applies the risk-label and threshold test to a classification.
func (p Policy) ShouldBlock(c Classification) bool {
	return p.IsHighRisk(c.Label) && c.Score >= p.BlockThreshold
}

// MustBlockDigest fingerprints the must-block set independent of order.
// A changed digest means a new revision that has not been merged yet.
func (p Policy) MustBlockDigest() string {
	sorted := append([]string(nil), p.MustBlock...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\n")))
	return hex.EncodeToString(sum[:])
}
