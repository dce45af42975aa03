package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/interview-coach/realtime/internal/speech"
)

// LoadAnalysis reads speech thresholds from a YAML file. An empty path or a missing file yields
// the defaults; a present but invalid file is an error.
func LoadAnalysis(path string) (speech.Config, error) {
	if path == "" {
		return speech.DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return speech.DefaultConfig(), nil
	}
	if err != nil {
		return speech.Config{}, fmt.Errorf("read analysis config: %w", err)
	}
	return ParseAnalysis(data)
}

// ParseAnalysis decodes and validates an analysis YAML document. Omitted keys keep their defaults.
func ParseAnalysis(data []byte) (speech.Config, error) {
	var raw speech.Config
	if err := yaml.UnmarshalWithOptions(data, &raw, yaml.Strict()); err != nil {
		return speech.Config{}, fmt.Errorf("parse analysis config: %w", err)
	}
	cfg := raw.Merge()
	if cfg.PaceMinWPM >= cfg.PaceMaxWPM {
		return speech.Config{}, fmt.Errorf("analysis config: pace_min_wpm (%v) must be below pace_max_wpm (%v)", cfg.PaceMinWPM, cfg.PaceMaxWPM)
	}
	if cfg.FillerRatioMax > 1 || cfg.ClarityMin > 1 || cfg.NeutralDecoderConfidence > 1 {
		return speech.Config{}, errors.New("analysis config: ratios must be within 0..1")
	}
	return cfg, nil
}
