// Package speech computes incremental speech-quality metrics for one speaker and maps them to
// coaching suggestions.
package speech

import (
	"math"
	"strings"
	"time"
)

// TextFragment is one transcript update from the upstream decoder.
type TextFragment struct {
	Text string
	// Confidence is the decoder's transcript confidence (0-1), when it reports one.
	Confidence *float64
	At         time.Time
}

// AudioSignal carries features pre-extracted from one audio chunk.
type AudioSignal struct {
	// Volume is the normalized chunk loudness (0-1), when the decoder reports one.
	Volume *float64
	At     time.Time
}

// Snapshot is an immutable readout of the accumulated metrics.
type Snapshot struct {
	PaceWPM         *float64 `json:"pace_wpm"`
	FillerWordCount int      `json:"filler_word_count"`
	FillerRatio     float64  `json:"filler_ratio"`
	PauseCount      int      `json:"pause_count"`
	Clarity         float64  `json:"clarity"`
	Volume          *float64 `json:"volume"`
	Confidence      float64  `json:"confidence"`
	WordCount       int      `json:"word_count"`
	ElapsedSeconds  float64  `json:"elapsed_seconds"`
}

// Accumulator keeps running counts for the current question. Metrics are cumulative since the
// first fragment after construction or the last Reset.
//
// An Accumulator is owned by a single connection goroutine and is not safe for concurrent use.
type Accumulator struct {
	cfg Config
	lex *Lexicon

	fragments []string
	recent    []string

	words   int
	fillers int
	pauses  int

	firstAt    time.Time
	lastTextAt time.Time

	decoderConfSum float64
	decoderConfN   int
	volumeSum      float64
	volumeN        int
}

// NewAccumulator creates an accumulator with cfg merged over the defaults.
func NewAccumulator(cfg Config) *Accumulator {
	cfg = cfg.Merge()
	return &Accumulator{cfg: cfg, lex: NewLexicon(cfg.FillerWords)}
}

// IngestText appends a transcript fragment and updates word, filler and pause counts.
// Blank fragments are ignored.
func (a *Accumulator) IngestText(f TextFragment) {
	toks := Tokenize(f.Text)
	if len(toks) == 0 {
		return
	}
	a.markStart(f.At)
	if !a.lastTextAt.IsZero() && f.At.Sub(a.lastTextAt).Seconds() > a.cfg.PauseGapSeconds {
		a.pauses++
	}
	a.lastTextAt = f.At
	a.fragments = append(a.fragments, strings.TrimSpace(f.Text))

	for _, tok := range toks {
		if a.lex.matches(a.recent, tok) {
			a.fillers++
		}
		a.words++
		a.remember(tok)
	}

	if c, ok := unit(f.Confidence); ok {
		a.decoderConfSum += c
		a.decoderConfN++
	}
}

// IngestAudio folds an audio-derived signal into the running volume average.
func (a *Accumulator) IngestAudio(s AudioSignal) {
	a.markStart(s.At)
	if v, ok := unit(s.Volume); ok {
		a.volumeSum += v
		a.volumeN++
	}
}

// Snapshot computes the metrics as of now.
func (a *Accumulator) Snapshot(now time.Time) Snapshot {
	s := Snapshot{
		FillerWordCount: a.fillers,
		PauseCount:      a.pauses,
		WordCount:       a.words,
	}

	var elapsed float64
	if !a.firstAt.IsZero() {
		elapsed = math.Max(0, now.Sub(a.firstAt).Seconds())
	}
	s.ElapsedSeconds = elapsed

	if a.words > 0 && elapsed >= a.cfg.MinPaceElapsedSeconds {
		pace := float64(a.words) / (elapsed / 60)
		s.PaceWPM = &pace
	}

	if a.words > 0 {
		s.FillerRatio = clamp01(float64(a.fillers) / float64(a.words))
	}

	decoder := a.cfg.NeutralDecoderConfidence
	if a.decoderConfN > 0 {
		decoder = a.decoderConfSum / float64(a.decoderConfN)
	}
	if a.words == 0 {
		s.Clarity = clamp01(decoder)
	} else {
		fillerScore := clamp01(1 - 2*s.FillerRatio)
		s.Clarity = clamp01(0.6*fillerScore + 0.4*decoder)
	}

	if a.volumeN > 0 {
		v := a.volumeSum / float64(a.volumeN)
		s.Volume = &v
	}

	wordPart := math.Min(1, float64(a.words)/float64(a.cfg.ConfidenceFullWords))
	timePart := math.Min(1, elapsed/a.cfg.ConfidenceFullSeconds)
	s.Confidence = clamp01(0.6*wordPart + 0.4*timePart)
	return s
}

// Transcript returns the fragments received since the last reset, joined by spaces.
func (a *Accumulator) Transcript() string {
	return strings.Join(a.fragments, " ")
}

// Fragments returns a copy of the transcript buffer.
func (a *Accumulator) Fragments() []string {
	return append([]string(nil), a.fragments...)
}

// Reset clears every counter and the transcript buffer. Safe to call repeatedly.
func (a *Accumulator) Reset() {
	*a = Accumulator{cfg: a.cfg, lex: a.lex}
}

func (a *Accumulator) markStart(at time.Time) {
	if a.firstAt.IsZero() {
		a.firstAt = at
	}
}

func (a *Accumulator) remember(tok string) {
	keep := a.lex.maxPhrase - 1
	if keep <= 0 {
		return
	}
	a.recent = append(a.recent, tok)
	if len(a.recent) > keep {
		a.recent = a.recent[len(a.recent)-keep:]
	}
}

func unit(p *float64) (float64, bool) {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) {
		return 0, false
	}
	return clamp01(*p), true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
