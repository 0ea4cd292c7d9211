package domain

import "fmt"

// Label is one category of the zero-shot classifier vocabulary.
type Label string

const (
	LabelEducational   Label = "educational"
	LabelWork          Label = "work"
	LabelEntertainment Label = "entertainment"
	LabelAdult         Label = "adult"
	LabelUnsafe        Label = "unsafe"
	LabelGaming        Label = "gaming"
	LabelMusic         Label = "music"
	LabelSocialMedia   Label = "social media"
	LabelGambling      Label = "gambling"
	LabelProxy         Label = "proxy"
	LabelCheating      Label = "cheating"
)

// Classification is the top label and confidence returned for one page.
// It is produced per navigation and never cached or stored.
type Classification struct {
	Label Label   `json:"label"`
	Score float64 `json:"score"`
	// Fallback is set when the classifier failed and the safe default was used.
	Fallback bool `json:"fallback,omitempty"`
}

// FallbackClassification is the safe result used on any classifier failure.
// A zero score can never reach a positive block threshold.
func FallbackClassification() Classification {
	return Classification{Label: LabelEducational, Score: 0.0, Fallback: true}
}

// Percent renders the score the way block reasons show it, e.g. "82.0%".
func (c Classification) Percent() string {
	return fmt.Sprintf("%.1f%%", c.Score*100)
}

// ClassifierInput builds the text sent to the classifier for a page.
func ClassifierInput(url, title string) string {
	if title == "" {
		title = "Unknown Title"
	}
	return title + " - " + url
}
