// Package catalog holds the selectable voices, background music tracks, and
// sound effects. A Registry is immutable once built and safe for concurrent
// reads without synchronization.
package catalog

import "sort"

// Default selections returned with every listing.
const (
	DefaultVoiceID = "narrator-warm"
	DefaultMusicID = "none"
)

// VoiceProfile is a selectable narration voice.
type VoiceProfile struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	Gender          string `json:"gender"`
	Accent          string `json:"accent"`
	Tone            string `json:"tone"`
	Category        string `json:"category"`
	ProviderVoiceID string `json:"-"`
}

// MusicTrack is a selectable background music track.
type MusicTrack struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Mood        string `json:"mood"`
	Description string `json:"description"`
}

// SoundEffect is a selectable sound effect.
type SoundEffect struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// Registry is the read-only catalog.
type Registry struct {
	voices       []VoiceProfile
	music        []MusicTrack
	effects      []SoundEffect
	voiceIndex   map[string]int
	musicIndex   map[string]int
	effectIndex  map[string]int
	defaultVoice string
	defaultMusic string
}

// New builds a Registry from the given entries. The first voice is used as
// default when DefaultVoiceID is not among them; the same holds for music.
func New(voices []VoiceProfile, music []MusicTrack, effects []SoundEffect) *Registry {
	reg := &Registry{
		voices:       append([]VoiceProfile(nil), voices...),
		music:        append([]MusicTrack(nil), music...),
		effects:      append([]SoundEffect(nil), effects...),
		voiceIndex:   make(map[string]int, len(voices)),
		musicIndex:   make(map[string]int, len(music)),
		effectIndex:  make(map[string]int, len(effects)),
		defaultVoice: DefaultVoiceID,
		defaultMusic: DefaultMusicID,
	}

	for i, v := range reg.voices {
		reg.voiceIndex[v.ID] = i
	}

	for i, m := range reg.music {
		reg.musicIndex[m.ID] = i
	}

	for i, e := range reg.effects {
		reg.effectIndex[e.ID] = i
	}

	if _, ok := reg.voiceIndex[DefaultVoiceID]; !ok && len(reg.voices) > 0 {
		reg.defaultVoice = reg.voices[0].ID
	}

	if _, ok := reg.musicIndex[DefaultMusicID]; !ok && len(reg.music) > 0 {
		reg.defaultMusic = reg.music[0].ID
	}

	return reg
}

// Default returns the catalog compiled into the service.
func Default() *Registry {
	return New(builtinVoices, builtinMusic, builtinEffects)
}

// DefaultVoice returns the id of the default narration voice.
func (r *Registry) DefaultVoice() string { return r.defaultVoice }

// DefaultMusic returns the id of the default background track.
func (r *Registry) DefaultMusic() string { return r.defaultMusic }

// ListVoices returns all voices in catalog order.
func (r *Registry) ListVoices() []VoiceProfile {
	return append([]VoiceProfile(nil), r.voices...)
}

// ListMusic returns all music tracks in catalog order.
func (r *Registry) ListMusic() []MusicTrack {
	return append([]MusicTrack(nil), r.music...)
}

// ListSoundEffects returns all sound effects in catalog order.
func (r *Registry) ListSoundEffects() []SoundEffect {
	return append([]SoundEffect(nil), r.effects...)
}

// Voice looks up a voice by id.
func (r *Registry) Voice(id string) (VoiceProfile, bool) {
	i, ok := r.voiceIndex[id]
	if !ok {
		return VoiceProfile{}, false
	}

	return r.voices[i], true
}

// ResolveVoice returns the voice for id, or the default voice when id is
// unknown. The boolean reports whether the substitution happened.
func (r *Registry) ResolveVoice(id string) (VoiceProfile, bool) {
	if v, ok := r.Voice(id); ok {
		return v, false
	}

	v, _ := r.Voice(r.defaultVoice)

	return v, true
}

// Music looks up a music track by id.
func (r *Registry) Music(id string) (MusicTrack, bool) {
	i, ok := r.musicIndex[id]
	if !ok {
		return MusicTrack{}, false
	}

	return r.music[i], true
}

// SoundEffect looks up a sound effect by id.
func (r *Registry) SoundEffect(id string) (SoundEffect, bool) {
	i, ok := r.effectIndex[id]
	if !ok {
		return SoundEffect{}, false
	}

	return r.effects[i], true
}

// VoicesByCategory groups voices by category.
func (r *Registry) VoicesByCategory() map[string][]VoiceProfile {
	grouped := make(map[string][]VoiceProfile)
	for _, v := range r.voices {
		grouped[v.Category] = append(grouped[v.Category], v)
	}

	return grouped
}

// MusicByMood groups music tracks by mood.
func (r *Registry) MusicByMood() map[string][]MusicTrack {
	grouped := make(map[string][]MusicTrack)
	for _, m := range r.music {
		grouped[m.Mood] = append(grouped[m.Mood], m)
	}

	return grouped
}

// SoundEffectsByCategory groups sound effects by category.
func (r *Registry) SoundEffectsByCategory() map[string][]SoundEffect {
	grouped := make(map[string][]SoundEffect)
	for _, e := range r.effects {
		grouped[e.Category] = append(grouped[e.Category], e)
	}

	return grouped
}

// Categories returns the sorted keys of a grouped view.
func Categories[T any](grouped map[string][]T) []string {
	keys := make([]string, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
