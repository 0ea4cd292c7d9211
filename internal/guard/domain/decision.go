package domain

import "fmt"

// Verdict is the outcome of evaluating one navigation.
type Verdict uint8

const (
	Allow Verdict = iota
	Block
)

func (v Verdict) String() string {
	switch v {
	case Allow:
		return "allow"
	case Block:
		return "block"
	default:
		return fmt.Sprintf("Verdict(%d)", v)
	}
}

// MarshalText lets verdicts appear as strings in JSON payloads.
func (v Verdict) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

// UnmarshalText accepts the strings produced by MarshalText.
func (v *Verdict) UnmarshalText(b []byte) error {
	switch string(b) {
	case "allow":
		*v = Allow
	case "block":
		*v = Block
	default:
		return fmt.Errorf("unknown verdict %q", b)
	}
	return nil
}

// Stage identifies which step of the cascade produced a decision.
type Stage string

const (
	StageFiltered   Stage = "filtered"
	StageAllowlist  Stage = "allowlist"
	StageBlocklist  Stage = "blocklist"
	StageClassifier Stage = "classifier"
	StageStoreError Stage = "store_error"
)

// ReasonBlocklist is the reason shown for deny-list blocks.
const ReasonBlocklist = "In the required blocklist"

// ClassifierReason is the reason shown when the classifier triggers a block,
// e.g. "AI classified as gaming (82.0%)".
func ClassifierReason(c Classification) string {
	return fmt.Sprintf("AI classified as %s (%s)", c.Label, c.Percent())
}

// Decision is the transient verdict for a single navigation.
type Decision struct {
	Verdict        Verdict         `json:"verdict"`
	Stage          Stage           `json:"stage"`
	Reason         string          `json:"reason,omitempty"`
	Classification *Classification `json:"classification,omitempty"`
}

// AllowDecision returns an Allow produced by stage.
func AllowDecision(stage Stage) Decision { return Decision{Verdict: Allow, Stage: stage} }

// BlockDecision returns a Block produced by stage with a human-readable reason.
func BlockDecision(stage Stage, reason string) Decision {
	return Decision{Verdict: Block, Stage: stage, Reason: reason}
}

// IsBlocked is a convenience accessor.
func (d Decision) IsBlocked() bool { return d.Verdict == Block }
