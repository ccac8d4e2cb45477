package versioning

import (
	"slices"

	"github.com/book-expert/chapter-audio-service/internal/catalog"
	"github.com/book-expert/chapter-audio-service/internal/core"
)

// Provider defaults for a chapter that has never been narrated.
const (
	DefaultSpeed     = 1.0
	DefaultPitch     = 1.0
	DefaultStability = 0.5
	DefaultClarity   = 0.75
	DefaultVolume    = 0.3
	DefaultFade      = 2.0
	DefaultDuckLevel = 0.2
)

// DefaultVoiceSettings returns the provider defaults for the registry.
func DefaultVoiceSettings(registry *catalog.Registry) core.VoiceSettings {
	return core.VoiceSettings{
		VoiceID:   registry.DefaultVoice(),
		Speed:     DefaultSpeed,
		Pitch:     DefaultPitch,
		Stability: DefaultStability,
		Clarity:   DefaultClarity,
	}
}

// DefaultBackgroundMusic returns the music settings of a fresh chapter.
func DefaultBackgroundMusic(registry *catalog.Registry) core.BackgroundMusic {
	return core.BackgroundMusic{
		TrackID:   registry.DefaultMusic(),
		Volume:    DefaultVolume,
		FadeIn:    DefaultFade,
		FadeOut:   DefaultFade,
		AutoDuck:  true,
		DuckLevel: DefaultDuckLevel,
	}
}

// mergeVoice resolves each field as override, then stored, then default.
// A stored value counts as empty when it is the zero value and outside the
// valid range (speed and pitch), or when the stored settings were never
// populated (no voice id).
func mergeVoice(override core.VoiceOverride, stored, defaults core.VoiceSettings) core.VoiceSettings {
	base := stored
	if base.VoiceID == "" {
		base = defaults
	}

	if base.Speed == 0 {
		base.Speed = defaults.Speed
	}

	if base.Pitch == 0 {
		base.Pitch = defaults.Pitch
	}

	return applyOverride(base, override)
}

func applyOverride(base core.VoiceSettings, override core.VoiceOverride) core.VoiceSettings {
	if override.VoiceID != nil && *override.VoiceID != "" {
		base.VoiceID = *override.VoiceID
	}

	if override.Speed != nil {
		base.Speed = *override.Speed
	}

	if override.Pitch != nil {
		base.Pitch = *override.Pitch
	}

	if override.Stability != nil {
		base.Stability = *override.Stability
	}

	if override.Clarity != nil {
		base.Clarity = *override.Clarity
	}

	return base
}

func applyMusicPatch(base core.BackgroundMusic, patch *core.MusicPatch) core.BackgroundMusic {
	if patch == nil {
		return base
	}

	if patch.TrackID != nil && *patch.TrackID != "" {
		base.TrackID = *patch.TrackID
	}

	if patch.Volume != nil {
		base.Volume = *patch.Volume
	}

	if patch.FadeIn != nil {
		base.FadeIn = *patch.FadeIn
	}

	if patch.FadeOut != nil {
		base.FadeOut = *patch.FadeOut
	}

	if patch.AutoDuck != nil {
		base.AutoDuck = *patch.AutoDuck
	}

	if patch.DuckLevel != nil {
		base.DuckLevel = *patch.DuckLevel
	}

	return base
}

// populate fills never-populated voice and music settings with defaults.
// Populated settings are left as they are.
func populate(state *core.ChapterAudioState, defaults core.VoiceSettings, music core.BackgroundMusic) {
	state.VoiceSettings = mergeVoice(core.VoiceOverride{}, state.VoiceSettings, defaults)

	if state.BackgroundMusic.TrackID == "" {
		state.BackgroundMusic = music
	}
}

// applyPatch merges patch into state. Only settings are touched, and the
// result is always fully populated.
func applyPatch(state *core.ChapterAudioState, patch core.SettingsPatch, defaults core.VoiceSettings, music core.BackgroundMusic) {
	populate(state, defaults, music)

	if patch.Voice != nil {
		state.VoiceSettings = applyOverride(state.VoiceSettings, *patch.Voice)
	}

	state.BackgroundMusic = applyMusicPatch(state.BackgroundMusic, patch.BackgroundMusic)

	if patch.CharacterVoices != nil {
		state.CharacterVoices = slices.Clone(*patch.CharacterVoices)
	}

	if patch.SoundEffects != nil {
		state.SoundEffects = slices.Clone(*patch.SoundEffects)
	}
}
