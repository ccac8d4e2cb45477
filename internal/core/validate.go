package core

import (
	"regexp"
	"unicode/utf8"
)

// Accepted ranges for voice shaping parameters.
const (
	MinSpeed     = 0.5
	MaxSpeed     = 2.0
	MinPitch     = 0.5
	MaxPitch     = 2.0
	MaxTextRunes = 10000
)

var chapterIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

// ValidateChapterID checks the shape of a chapter identifier.
func ValidateChapterID(chapterID string) error {
	if !chapterIDPattern.MatchString(chapterID) {
		return Validationf("invalid chapter id %q", chapterID)
	}

	return nil
}

// ValidateText checks that ad-hoc text is within 1..MaxTextRunes characters.
func ValidateText(text string) error {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return Validationf("text is required")
	}

	if n > MaxTextRunes {
		return Validationf("text is %d characters, the limit is %d", n, MaxTextRunes)
	}

	return nil
}

// ValidateOverride checks the range of every set field.
func ValidateOverride(o VoiceOverride) error {
	checks := []struct {
		name     string
		value    *float64
		min, max float64
	}{
		{"speed", o.Speed, MinSpeed, MaxSpeed},
		{"pitch", o.Pitch, MinPitch, MaxPitch},
		{"stability", o.Stability, 0, 1},
		{"clarity", o.Clarity, 0, 1},
	}

	for _, c := range checks {
		err := checkRange(c.name, c.value, c.min, c.max)
		if err != nil {
			return err
		}
	}

	return nil
}

// ValidateMusicPatch checks the range of every set field.
func ValidateMusicPatch(p MusicPatch) error {
	err := checkRange("backgroundMusic.volume", p.Volume, 0, 1)
	if err != nil {
		return err
	}

	err = checkRange("backgroundMusic.duckLevel", p.DuckLevel, 0, 1)
	if err != nil {
		return err
	}

	for name, value := range map[string]*float64{"backgroundMusic.fadeIn": p.FadeIn, "backgroundMusic.fadeOut": p.FadeOut} {
		if value != nil && *value < 0 {
			return Validationf("%s must not be negative, got %g", name, *value)
		}
	}

	return nil
}

func checkRange(name string, value *float64, lo, hi float64) error {
	if value == nil {
		return nil
	}

	if *value < lo || *value > hi {
		return Validationf("%s must be between %g and %g, got %g", name, lo, hi, *value)
	}

	return nil
}
