package core

import (
	"time"

	"github.com/book-expert/events"
)

// VoiceSettings shape a narration. Stored settings are always fully populated.
type VoiceSettings struct {
	VoiceID   string  `json:"voice"`
	Speed     float64 `json:"speed"`
	Pitch     float64 `json:"pitch"`
	Stability float64 `json:"stability"`
	Clarity   float64 `json:"clarity"`
}

// Params returns the provider shaping parameters.
func (v VoiceSettings) Params() SynthesisParams {
	return SynthesisParams{
		Speed:     v.Speed,
		Pitch:     v.Pitch,
		Stability: v.Stability,
		Clarity:   v.Clarity,
	}
}

// VoiceOverride is a partial VoiceSettings; nil fields are not set.
type VoiceOverride struct {
	VoiceID   *string  `json:"voice,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Pitch     *float64 `json:"pitch,omitempty"`
	Stability *float64 `json:"stability,omitempty"`
	Clarity   *float64 `json:"clarity,omitempty"`
}

// IsEmpty reports whether no field is set.
func (o VoiceOverride) IsEmpty() bool {
	return o.VoiceID == nil && o.Speed == nil && o.Pitch == nil && o.Stability == nil && o.Clarity == nil
}

// BackgroundMusic is stored alongside the narration. It is metadata only.
type BackgroundMusic struct {
	TrackID   string  `json:"trackId"`
	Volume    float64 `json:"volume"`
	FadeIn    float64 `json:"fadeIn"`
	FadeOut   float64 `json:"fadeOut"`
	AutoDuck  bool    `json:"autoDuck"`
	DuckLevel float64 `json:"duckLevel"`
}

// MusicPatch is a partial BackgroundMusic.
type MusicPatch struct {
	TrackID   *string  `json:"trackId,omitempty"`
	Volume    *float64 `json:"volume,omitempty"`
	FadeIn    *float64 `json:"fadeIn,omitempty"`
	FadeOut   *float64 `json:"fadeOut,omitempty"`
	AutoDuck  *bool    `json:"autoDuck,omitempty"`
	DuckLevel *float64 `json:"duckLevel,omitempty"`
}

// CharacterVoice assigns a voice to a named character.
type CharacterVoice struct {
	Character string         `json:"character"`
	VoiceID   string         `json:"voice"`
	Settings  map[string]any `json:"settings,omitempty"`
}

// SoundEffectCue places a catalog sound effect in the chapter.
type SoundEffectCue struct {
	EffectID string         `json:"effectId"`
	Position string         `json:"position,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

// SettingsPatch is a partial update of a chapter's audio settings. Nil
// members are left untouched; a non-nil empty list clears that list.
type SettingsPatch struct {
	Voice           *VoiceOverride    `json:"voiceSettings,omitempty"`
	BackgroundMusic *MusicPatch       `json:"backgroundMusic,omitempty"`
	CharacterVoices *[]CharacterVoice `json:"characterVoices,omitempty"`
	SoundEffects    *[]SoundEffectCue `json:"soundEffects,omitempty"`
}

// VersionSettings is the settings snapshot kept with an archived version.
type VersionSettings struct {
	VoiceSettings

	MusicTrackID string `json:"backgroundMusic,omitempty"`
}

// AudioVersion is a superseded rendition of a chapter's audio.
type AudioVersion struct {
	Artifact  string          `json:"audioFile"`
	Version   int             `json:"version"`
	Settings  VersionSettings `json:"settings"`
	CreatedAt time.Time       `json:"createdAt"`
}

// ChapterAudioState is the audio sub-document of a chapter.
type ChapterAudioState struct {
	CurrentAudio    *string          `json:"audioFile"`
	VoiceSettings   VoiceSettings    `json:"voiceSettings"`
	BackgroundMusic BackgroundMusic  `json:"backgroundMusic"`
	CharacterVoices []CharacterVoice `json:"characterVoices"`
	SoundEffects    []SoundEffectCue `json:"soundEffects"`
	VersionHistory  []AudioVersion   `json:"audioVersions"`
}

// Snapshot captures the settings to archive alongside the current audio.
func (s *ChapterAudioState) Snapshot() VersionSettings {
	return VersionSettings{
		VoiceSettings: s.VoiceSettings,
		MusicTrackID:  s.BackgroundMusic.TrackID,
	}
}

// AudioSettings is the editable settings view of a chapter.
type AudioSettings struct {
	VoiceSettings   VoiceSettings    `json:"voiceSettings"`
	BackgroundMusic BackgroundMusic  `json:"backgroundMusic"`
	CharacterVoices []CharacterVoice `json:"characterVoices"`
	SoundEffects    []SoundEffectCue `json:"soundEffects"`
}

// Settings returns the editable settings of the state.
func (s *ChapterAudioState) Settings() AudioSettings {
	return AudioSettings{
		VoiceSettings:   s.VoiceSettings,
		BackgroundMusic: s.BackgroundMusic,
		CharacterVoices: s.CharacterVoices,
		SoundEffects:    s.SoundEffects,
	}
}

// Chapter is the externally managed chapter document.
type Chapter struct {
	ID        string            `json:"id"`
	AuthorID  string            `json:"authorId"`
	Title     string            `json:"title"`
	Content   string            `json:"content"`
	Audio     ChapterAudioState `json:"audio"`
	Revision  int64             `json:"revision"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// ChapterAudioRequest asks a worker to generate chapter audio.
type ChapterAudioRequest struct {
	Header      events.EventHeader `json:"Header"`
	ChapterID   string             `json:"ChapterID"`
	Overrides   VoiceOverride      `json:"Overrides"`
	SaveVersion *bool              `json:"SaveVersion,omitempty"`
}

// ChapterAudioGenerated announces a completed chapter generation.
type ChapterAudioGenerated struct {
	Header     events.EventHeader `json:"Header"`
	ChapterID  string             `json:"ChapterID"`
	ArtifactID string             `json:"ArtifactID"`
	Settings   VoiceSettings      `json:"Settings"`
	Versions   int                `json:"Versions"`
	Degraded   bool               `json:"Degraded"`
	Warning    string             `json:"Warning,omitempty"`
	Error      string             `json:"Error,omitempty"`
}
