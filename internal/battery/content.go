// content.go
package battery

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Content is the static material the tests present, as laid out in battery.yaml.
type Content struct {
	Memory struct {
		WordPool  []string `yaml:"word_pool"`
		WordCount int      `yaml:"word_count"`
	} `yaml:"memory"`
	Puzzle struct {
		Sequences [][]int `yaml:"sequences"`
	} `yaml:"puzzle"`
}

// MemoryConfig drives one word-recall test.
type MemoryConfig struct {
	WordPool      []string
	WordCount     int
	StudyDuration time.Duration
}

// ReactionConfig drives one reaction timer.
type ReactionConfig struct {
	Rounds   int
	MinDelay time.Duration
	MaxDelay time.Duration
	Pause    time.Duration
}

// PuzzleConfig drives one sequence puzzle.
type PuzzleConfig struct {
	Rounds       int
	Sequences    [][]int
	AdvanceDelay time.Duration
}

// Config holds everything the cognitive tests need.
type Config struct {
	Memory   MemoryConfig
	Reaction ReactionConfig
	Puzzle   PuzzleConfig
}

// DefaultConfig returns the standard battery.
func DefaultConfig() Config {
	return Config{
		Memory: MemoryConfig{
			WordPool: []string{
				"apple", "river", "mountain", "book", "cloud",
				"ocean", "forest", "bridge", "candle", "garden",
				"window", "mirror", "guitar", "piano", "bicycle",
				"tiger", "eagle", "dolphin", "butterfly", "elephant",
			},
			WordCount:     5,
			StudyDuration: 30 * time.Second,
		},
		Reaction: ReactionConfig{
			Rounds:   5,
			MinDelay: 2 * time.Second,
			MaxDelay: 5 * time.Second,
			Pause:    2 * time.Second,
		},
		Puzzle: PuzzleConfig{
			Rounds: 3,
			Sequences: [][]int{
				{1, 2, 3, 4, 5},
				{5, 4, 3, 2, 1},
				{2, 4, 6, 8, 10},
				{10, 8, 6, 4, 2},
				{1, 3, 5, 7, 9},
			},
			AdvanceDelay: time.Second,
		},
	}
}

// LoadContent reads and parses battery.yaml.
func LoadContent(path string) (*Content, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read battery content file: %w", err)
	}

	var content Content
	if err := yaml.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("failed to unmarshal battery content YAML: %w", err)
	}
	if err := content.validate(); err != nil {
		return nil, fmt.Errorf("invalid battery content in %s: %w", path, err)
	}
	return &content, nil
}

func (c *Content) validate() error {
	if c.Memory.WordCount <= 0 {
		return errors.New("memory.word_count must be positive")
	}
	if len(c.Memory.WordPool) < c.Memory.WordCount {
		return fmt.Errorf("memory.word_pool has %d words, need at least %d", len(c.Memory.WordPool), c.Memory.WordCount)
	}
	if len(c.Puzzle.Sequences) == 0 {
		return errors.New("puzzle.sequences must not be empty")
	}
	for i, seq := range c.Puzzle.Sequences {
		if len(seq) == 0 {
			return fmt.Errorf("puzzle.sequences[%d] is empty", i)
		}
		seen := make(map[int]bool, len(seq))
		for _, n := range seq {
			if seen[n] {
				return fmt.Errorf("puzzle.sequences[%d] repeats %d", i, n)
			}
			seen[n] = true
		}
	}
	return nil
}

// Apply overlays the loaded content onto cfg.
func (c *Content) Apply(cfg Config) Config {
	cfg.Memory.WordPool = append([]string(nil), c.Memory.WordPool...)
	cfg.Memory.WordCount = c.Memory.WordCount
	cfg.Puzzle.Sequences = make([][]int, len(c.Puzzle.Sequences))
	for i, seq := range c.Puzzle.Sequences {
		cfg.Puzzle.Sequences[i] = append([]int(nil), seq...)
	}
	return cfg
}
