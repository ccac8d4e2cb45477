package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/book-expert/chapter-audio-service/internal/artifact"
	"github.com/book-expert/chapter-audio-service/internal/catalog"
	"github.com/book-expert/chapter-audio-service/internal/core"
	"github.com/book-expert/chapter-audio-service/internal/versioning"
	"github.com/gorilla/mux"
)

type generateRequest struct {
	core.VoiceOverride

	Text string `json:"text"`
}

type generateChapterRequest struct {
	core.VoiceOverride

	SaveVersion *bool `json:"saveVersion,omitempty"`
}

type generateResponse struct {
	Success  bool               `json:"success"`
	AudioURL string             `json:"audioUrl"`
	Audio    string             `json:"audioFile"`
	Settings core.VoiceSettings `json:"settings"`
	Warning  string             `json:"warning,omitempty"`
}

type versionView struct {
	core.AudioVersion

	AudioURL string `json:"audioUrl"`
}

type chapterAudioResponse struct {
	Success   bool               `json:"success"`
	ChapterID string             `json:"chapterId"`
	AudioURL  string             `json:"audioUrl"`
	Audio     string             `json:"audioFile"`
	Settings  core.VoiceSettings `json:"settings"`
	Versions  []versionView      `json:"audioVersions"`
	Warning   string             `json:"warning,omitempty"`
}

type settingsResponse struct {
	Success  bool               `json:"success"`
	Settings core.AudioSettings `json:"settings"`
}

type currentView struct {
	AudioURL string             `json:"audioUrl"`
	Audio    string             `json:"audioFile"`
	Settings core.VoiceSettings `json:"settings"`
}

type versionsResponse struct {
	Success  bool          `json:"success"`
	Current  *currentView  `json:"current"`
	Versions []versionView `json:"versions"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type voicesResponse struct {
	Success      bool                              `json:"success"`
	Voices       []catalog.VoiceProfile            `json:"voices"`
	Grouped      map[string][]catalog.VoiceProfile `json:"grouped"`
	Categories   []string                          `json:"categories"`
	DefaultVoice string                            `json:"defaultVoice"`
}

type musicResponse struct {
	Success      bool                            `json:"success"`
	Music        []catalog.MusicTrack            `json:"music"`
	Grouped      map[string][]catalog.MusicTrack `json:"grouped"`
	Moods        []string                        `json:"moods"`
	DefaultMusic string                          `json:"defaultMusic"`
}

type soundEffectsResponse struct {
	Success      bool                             `json:"success"`
	SoundEffects []catalog.SoundEffect            `json:"soundEffects"`
	Grouped      map[string][]catalog.SoundEffect `json:"grouped"`
	Categories   []string                         `json:"categories"`
}

// handleGenerate narrates arbitrary text with the requested voice.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest

	err := decodeBody(w, r, &req)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	err = core.ValidateText(req.Text)
	if err == nil {
		err = core.ValidateOverride(req.VoiceOverride)
	}

	if err != nil {
		s.writeError(w, r, err)

		return
	}

	settings := s.manager.EffectiveSettings(req.VoiceOverride, core.VoiceSettings{})

	result, err := s.synth.Synthesize(r.Context(), req.Text, settings.VoiceID, settings.Params())
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	if result.Voice != "" {
		settings.VoiceID = result.Voice
	}

	s.writeJSON(w, http.StatusOK, generateResponse{
		Success:  true,
		AudioURL: s.artifactURL(r, result.ArtifactID),
		Audio:    result.ArtifactID,
		Settings: settings,
		Warning:  result.Reason,
	})
}

func (s *Server) handleGenerateChapter(w http.ResponseWriter, r *http.Request) {
	chapterID, err := chapterParam(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	var req generateChapterRequest

	err = decodeBody(w, r, &req)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	err = core.ValidateOverride(req.VoiceOverride)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	saveVersion := true
	if req.SaveVersion != nil {
		saveVersion = *req.SaveVersion
	}

	outcome, err := s.manager.GenerateForChapter(r.Context(), chapterID, callerFrom(r.Context()), req.VoiceOverride, saveVersion)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, http.StatusOK, s.chapterResponse(r, outcome))
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	chapterID, err := chapterParam(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	var patch core.SettingsPatch

	err = decodeBody(w, r, &patch)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	err = validatePatch(patch)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	settings, err := s.manager.UpdateSettings(r.Context(), chapterID, callerFrom(r.Context()), patch)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, http.StatusOK, settingsResponse{Success: true, Settings: settings})
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	chapterID, err := chapterParam(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	versions, err := s.manager.ListVersions(r.Context(), chapterID)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	resp := versionsResponse{Success: true, Versions: s.versionViews(r, versions.History)}

	if versions.Current != nil {
		resp.Current = &currentView{
			AudioURL: s.artifactURL(r, versions.Current.Artifact),
			Audio:    versions.Current.Artifact,
			Settings: versions.Current.Settings,
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	chapterID, err := chapterParam(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	version, err := strconv.Atoi(mux.Vars(r)["version"])
	if err != nil || version < 1 {
		s.writeError(w, r, core.Validationf("version must be a positive integer, got %q", mux.Vars(r)["version"]))

		return
	}

	outcome, err := s.manager.Restore(r.Context(), chapterID, callerFrom(r.Context()), version)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, http.StatusOK, s.chapterResponse(r, outcome))
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	chapterID, err := chapterParam(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	err = s.manager.ClearAudio(r.Context(), chapterID, callerFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Chapter audio deleted"})
}

func (s *Server) handleVoices(w http.ResponseWriter, _ *http.Request) {
	grouped := s.catalog.VoicesByCategory()

	s.writeJSON(w, http.StatusOK, voicesResponse{
		Success:      true,
		Voices:       s.catalog.ListVoices(),
		Grouped:      grouped,
		Categories:   catalog.Categories(grouped),
		DefaultVoice: s.catalog.DefaultVoice(),
	})
}

func (s *Server) handleMusic(w http.ResponseWriter, _ *http.Request) {
	grouped := s.catalog.MusicByMood()

	s.writeJSON(w, http.StatusOK, musicResponse{
		Success:      true,
		Music:        s.catalog.ListMusic(),
		Grouped:      grouped,
		Moods:        catalog.Categories(grouped),
		DefaultMusic: s.catalog.DefaultMusic(),
	})
}

func (s *Server) handleSoundEffects(w http.ResponseWriter, _ *http.Request) {
	grouped := s.catalog.SoundEffectsByCategory()

	s.writeJSON(w, http.StatusOK, soundEffectsResponse{
		Success:      true,
		SoundEffects: s.catalog.ListSoundEffects(),
		Grouped:      grouped,
		Categories:   catalog.Categories(grouped),
	})
}

// handleFile streams an artifact. It is deliberately unauthenticated so the
// URL can be embedded in a player.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]

	err := artifact.ValidateID(filename)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	reader, info, err := s.store.Read(r.Context(), filename)
	if err != nil {
		s.writeError(w, r, err)

		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")

	if !info.ModTime.IsZero() {
		w.Header().Set("Last-Modified", info.ModTime.UTC().Format(http.TimeFormat))
	}

	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return
	}

	_, err = io.Copy(w, reader)
	if err != nil {
		s.log.Warn("Streaming %s interrupted: %v", filename, err)
	}
}

func (s *Server) chapterResponse(r *http.Request, outcome *versioning.Outcome) chapterAudioResponse {
	return chapterAudioResponse{
		Success:   true,
		ChapterID: outcome.ChapterID,
		AudioURL:  s.artifactURL(r, outcome.ArtifactID),
		Audio:     outcome.ArtifactID,
		Settings:  outcome.Settings,
		Versions:  s.versionViews(r, outcome.History),
		Warning:   outcome.Reason,
	}
}

func (s *Server) versionViews(r *http.Request, history []core.AudioVersion) []versionView {
	views := make([]versionView, 0, len(history))
	for _, entry := range history {
		views = append(views, versionView{AudioVersion: entry, AudioURL: s.artifactURL(r, entry.Artifact)})
	}

	return views
}

func chapterParam(r *http.Request) (string, error) {
	chapterID := mux.Vars(r)["chapterId"]

	err := core.ValidateChapterID(chapterID)
	if err != nil {
		return "", err
	}

	return chapterID, nil
}

func validatePatch(patch core.SettingsPatch) error {
	if patch.Voice != nil {
		err := core.ValidateOverride(*patch.Voice)
		if err != nil {
			return err
		}
	}

	if patch.BackgroundMusic != nil {
		err := core.ValidateMusicPatch(*patch.BackgroundMusic)
		if err != nil {
			return err
		}
	}

	return nil
}

// decodeBody reads a JSON body. An empty body decodes to the zero value.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return core.Validationf("request body exceeds %d bytes", tooLarge.Limit)
	}

	return fmt.Errorf("%w: malformed JSON body: %w", core.ErrValidation, err)
}
