package speech

// Config holds the thresholds used by the accumulator and the rules engine.
// Field tags match the keys of the optional analysis YAML file.
type Config struct {
	MinPaceElapsedSeconds    float64  `yaml:"min_pace_elapsed_seconds"`
	PauseGapSeconds          float64  `yaml:"pause_gap_seconds"`
	PaceMinWPM               float64  `yaml:"pace_min_wpm"`
	PaceMaxWPM               float64  `yaml:"pace_max_wpm"`
	FillerRatioMax           float64  `yaml:"filler_ratio_max"`
	ClarityMin               float64  `yaml:"clarity_min"`
	NeutralDecoderConfidence float64  `yaml:"neutral_decoder_confidence"`
	ConfidenceFullWords      int      `yaml:"confidence_full_words"`
	ConfidenceFullSeconds    float64  `yaml:"confidence_full_seconds"`
	FillerWords              []string `yaml:"filler_words"`
}

// DefaultFillerWords is the built-in filler lexicon. Multi-word entries count as one filler.
var DefaultFillerWords = []string{
	"um", "umm", "uh", "uhm", "er", "erm", "ah", "hmm",
	"like", "basically", "literally", "actually",
	"you know", "i mean",
}

// DefaultConfig returns the thresholds used when no analysis file is configured.
func DefaultConfig() Config {
	return Config{
		MinPaceElapsedSeconds:    5,
		PauseGapSeconds:          3,
		PaceMinWPM:               140,
		PaceMaxWPM:               180,
		FillerRatioMax:           0.10,
		ClarityMin:               0.6,
		NeutralDecoderConfidence: 0.8,
		ConfidenceFullWords:      60,
		ConfidenceFullSeconds:    30,
		FillerWords:              append([]string(nil), DefaultFillerWords...),
	}
}

// Merge returns c with every zero-valued field taken from DefaultConfig.
func (c Config) Merge() Config {
	d := DefaultConfig()
	if c.MinPaceElapsedSeconds > 0 {
		d.MinPaceElapsedSeconds = c.MinPaceElapsedSeconds
	}
	if c.PauseGapSeconds > 0 {
		d.PauseGapSeconds = c.PauseGapSeconds
	}
	if c.PaceMinWPM > 0 {
		d.PaceMinWPM = c.PaceMinWPM
	}
	if c.PaceMaxWPM > 0 {
		d.PaceMaxWPM = c.PaceMaxWPM
	}
	if c.FillerRatioMax > 0 {
		d.FillerRatioMax = c.FillerRatioMax
	}
	if c.ClarityMin > 0 {
		d.ClarityMin = c.ClarityMin
	}
	if c.NeutralDecoderConfidence > 0 {
		d.NeutralDecoderConfidence = c.NeutralDecoderConfidence
	}
	if c.ConfidenceFullWords > 0 {
		d.ConfidenceFullWords = c.ConfidenceFullWords
	}
	if c.ConfidenceFullSeconds > 0 {
		d.ConfidenceFullSeconds = c.ConfidenceFullSeconds
	}
	if len(c.FillerWords) > 0 {
		d.FillerWords = append([]string(nil), c.FillerWords...)
	}
	return d
}
