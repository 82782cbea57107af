// Package compress shrinks page images through an ordered table of
// progressively more aggressive presets.
package compress

import (
	"errors"
	"fmt"
)

// Level is one compression preset. Level 0 is reserved for the unmodified
// original and never appears in a table.
type Level struct {
	Level          int    `mapstructure:"level" yaml:"level" json:"level"`
	JPEGQuality    int    `mapstructure:"jpeg_quality" yaml:"jpeg_quality" json:"jpeg_quality"`
	MaxWidth       int    `mapstructure:"max_width" yaml:"max_width" json:"max_width"`
	StripMetadata  bool   `mapstructure:"strip_metadata" yaml:"strip_metadata" json:"strip_metadata"`
	ForceGrayscale bool   `mapstructure:"force_grayscale" yaml:"force_grayscale" json:"force_grayscale"`
	Description    string `mapstructure:"description" yaml:"description" json:"description"`
}

func (l Level) String() string {
	if l.Description != "" {
		return fmt.Sprintf("level %d (%s)", l.Level, l.Description)
	}
	return fmt.Sprintf("level %d", l.Level)
}

// DefaultLevels is the production table.
func DefaultLevels() []Level {
	return []Level{
		{Level: 1, JPEGQuality: 80, MaxWidth: 2400, StripMetadata: true, Description: "light"},
		{Level: 2, JPEGQuality: 65, MaxWidth: 1800, StripMetadata: true, ForceGrayscale: true, Description: "medium"},
		{Level: 3, JPEGQuality: 50, MaxWidth: 1200, StripMetadata: true, ForceGrayscale: true, Description: "aggressive"},
	}
}

// ErrInvalidLevels is wrapped by every ValidateLevels failure.
var ErrInvalidLevels = errors.New("invalid compression levels")

// ValidateLevels rejects tables that are not strictly increasing in level
// number with non-increasing quality and max width. Once a level forces
// grayscale or strips metadata, every later level must too.
func ValidateLevels(levels []Level) error {
	for i, l := range levels {
		if l.Level < 1 {
			return fmt.Errorf("%w: entry %d has level %d, want >= 1", ErrInvalidLevels, i, l.Level)
		}
		if l.JPEGQuality < 1 || l.JPEGQuality > 100 {
			return fmt.Errorf("%w: level %d quality %d out of range 1-100", ErrInvalidLevels, l.Level, l.JPEGQuality)
		}
		if l.MaxWidth < 1 {
			return fmt.Errorf("%w: level %d max width %d must be positive", ErrInvalidLevels, l.Level, l.MaxWidth)
		}
		if i == 0 {
			continue
		}
		prev := levels[i-1]
		if l.Level <= prev.Level {
			return fmt.Errorf("%w: level %d follows level %d", ErrInvalidLevels, l.Level, prev.Level)
		}
		if l.JPEGQuality > prev.JPEGQuality {
			return fmt.Errorf("%w: level %d quality %d exceeds level %d quality %d",
				ErrInvalidLevels, l.Level, l.JPEGQuality, prev.Level, prev.JPEGQuality)
		}
		if l.MaxWidth > prev.MaxWidth {
			return fmt.Errorf("%w: level %d max width %d exceeds level %d max width %d",
				ErrInvalidLevels, l.Level, l.MaxWidth, prev.Level, prev.MaxWidth)
		}
		if prev.ForceGrayscale && !l.ForceGrayscale {
			return fmt.Errorf("%w: level %d turns grayscale back off after level %d",
				ErrInvalidLevels, l.Level, prev.Level)
		}
		if prev.StripMetadata && !l.StripMetadata {
			return fmt.Errorf("%w: level %d keeps metadata stripped by level %d",
				ErrInvalidLevels, l.Level, prev.Level)
		}
	}
	return nil
}
