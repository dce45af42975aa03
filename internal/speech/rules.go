package speech

import "fmt"

// Rules maps a snapshot to suggestions, most actionable first.
type Rules struct {
	cfg Config
}

// NewRules creates a rules engine with cfg merged over the defaults.
func NewRules(cfg Config) Rules {
	return Rules{cfg: cfg.Merge()}
}

// Evaluate returns the triggered suggestions in priority order. The result is never nil;
// it is empty when every metric sits inside its target band.
func (r Rules) Evaluate(s Snapshot) []string {
	out := []string{}
	if s.PaceWPM != nil {
		switch {
		case *s.PaceWPM < r.cfg.PaceMinWPM:
			out = append(out, "Try speaking a bit faster and add more detail to keep the interviewer engaged")
		case *s.PaceWPM > r.cfg.PaceMaxWPM:
			out = append(out, "Consider slowing down slightly so each point lands clearly")
		}
	}
	if s.FillerRatio > r.cfg.FillerRatioMax {
		out = append(out, fmt.Sprintf("Try to reduce filler words (detected %d)", s.FillerWordCount))
	}
	if s.WordCount > 0 && s.Clarity < r.cfg.ClarityMin {
		out = append(out, "Focus on clear articulation and restructure the answer into shorter points")
	}
	return out
}
