// Package versioning owns the per-chapter audio state machine: generating
// narration for a chapter, archiving superseded renditions, restoring an
// older rendition and clearing the current one.
package versioning

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/book-expert/chapter-audio-service/internal/catalog"
	"github.com/book-expert/chapter-audio-service/internal/core"
	"github.com/book-expert/chapter-audio-service/internal/observe"
	"github.com/book-expert/chapter-audio-service/internal/tts"
	"github.com/book-expert/chapter-audio-service/internal/tts/text"
	"github.com/book-expert/events"
	"github.com/book-expert/logger"
)

// maxSaveAttempts bounds retries when another process saved the chapter
// between our load and our save.
const maxSaveAttempts = 3

// Version operations recorded in metrics.
const (
	opGenerate = "generate"
	opArchive  = "archive"
	opRestore  = "restore"
	opClear    = "clear"
	opSettings = "settings"
)

// Synthesizer produces an artifact for a piece of text. *tts.Gateway
// satisfies it.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string, params core.SynthesisParams) (tts.Result, error)
}

// Outcome is the result of a chapter generation or restore.
type Outcome struct {
	ChapterID  string
	ArtifactID string
	Settings   core.VoiceSettings
	History    []core.AudioVersion
	Degraded   bool
	Reason     string
}

// CurrentAudio is the live rendition of a chapter.
type CurrentAudio struct {
	Artifact string             `json:"audioFile"`
	Settings core.VoiceSettings `json:"settings"`
}

// Versions is the read view of a chapter's audio.
type Versions struct {
	Current *CurrentAudio       `json:"current"`
	History []core.AudioVersion `json:"history"`
}

// Manager applies audio operations to chapters.
type Manager struct {
	repo      core.ChapterRepository
	synth     Synthesizer
	store     core.ArtifactStore
	publisher core.EventPublisher
	preparer  *text.Preparer
	metrics   *observe.Metrics
	log       *logger.Logger
	locks     *chapterLocks
	now       func() time.Time
	defaults  core.VoiceSettings
	music     core.BackgroundMusic
	maxRunes  int
}

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics records version operations to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(mgr *Manager) {
		if m != nil {
			mgr.metrics = m
		}
	}
}

// WithClock replaces time.Now for archive timestamps.
func WithClock(now func() time.Time) Option {
	return func(mgr *Manager) {
		mgr.now = now
	}
}

// WithMaxNarrationRunes caps the text sent for synthesis.
func WithMaxNarrationRunes(n int) Option {
	return func(mgr *Manager) {
		if n > 0 {
			mgr.maxRunes = n
		}
	}
}

// NewManager creates a Manager. A nil publisher disables events.
func NewManager(
	repo core.ChapterRepository,
	synth Synthesizer,
	store core.ArtifactStore,
	registry *catalog.Registry,
	publisher core.EventPublisher,
	log *logger.Logger,
	opts ...Option,
) *Manager {
	mgr := &Manager{
		repo:      repo,
		synth:     synth,
		store:     store,
		publisher: publisher,
		preparer:  text.NewPreparer(),
		metrics:   observe.Discard(),
		log:       log,
		locks:     newChapterLocks(),
		now:       time.Now,
		defaults:  DefaultVoiceSettings(registry),
		music:     DefaultBackgroundMusic(registry),
		maxRunes:  text.MaxNarrationRunes,
	}

	for _, opt := range opts {
		opt(mgr)
	}

	return mgr
}

// EffectiveSettings merges overrides over stored settings over provider
// defaults, taking the first non-empty value per field.
func (m *Manager) EffectiveSettings(overrides core.VoiceOverride, stored core.VoiceSettings) core.VoiceSettings {
	return mergeVoice(overrides, stored, m.defaults)
}

// GenerateForChapter narrates the chapter and makes the result current. When
// archiveCurrent is set, the previous rendition is appended to the history
// first. A degraded synthesis still succeeds and is reported in the Outcome.
func (m *Manager) GenerateForChapter(
	ctx context.Context,
	chapterID, callerID string,
	overrides core.VoiceOverride,
	archiveCurrent bool,
) (*Outcome, error) {
	chapter, err := m.loadOwned(ctx, chapterID, callerID)
	if err != nil {
		return nil, err
	}

	settings := m.EffectiveSettings(overrides, chapter.Audio.VoiceSettings)

	narration := m.preparer.Prepare(chapter.Content)
	if narration == "" {
		return nil, core.Validationf("chapter %s has no text to narrate", chapterID)
	}

	narration, truncated := text.Truncate(narration, m.maxRunes)
	if truncated {
		m.log.Warn("Chapter %s text truncated to %d characters for narration", chapterID, m.maxRunes)
	}

	result, err := m.synth.Synthesize(ctx, narration, settings.VoiceID, settings.Params())
	if err != nil {
		return nil, fmt.Errorf("synthesize chapter %s: %w", chapterID, err)
	}

	if result.Voice != "" {
		settings.VoiceID = result.Voice
	}

	var archived bool

	saved, err := m.mutate(ctx, chapterID, callerID, func(chapter *core.Chapter) error {
		archived = false

		if archiveCurrent && chapter.Audio.CurrentAudio != nil {
			m.archiveCurrent(&chapter.Audio)
			archived = true
		}

		populate(&chapter.Audio, m.defaults, m.music)

		artifactID := result.ArtifactID
		chapter.Audio.CurrentAudio = &artifactID
		chapter.Audio.VoiceSettings = settings

		return nil
	})
	if err != nil {
		m.discardArtifact(ctx, result.ArtifactID)

		return nil, err
	}

	m.metrics.RecordVersionOperation(ctx, opGenerate)

	if archived {
		m.metrics.RecordVersionOperation(ctx, opArchive)
	}

	outcome := &Outcome{
		ChapterID:  chapterID,
		ArtifactID: result.ArtifactID,
		Settings:   settings,
		History:    slices.Clone(saved.Audio.VersionHistory),
		Degraded:   result.Degraded,
		Reason:     result.Reason,
	}

	m.publishGenerated(ctx, callerID, outcome)

	m.log.Info("Chapter %s audio is now %s (history: %d, degraded: %t)",
		chapterID, result.ArtifactID, len(outcome.History), result.Degraded)

	return outcome, nil
}

// UpdateSettings merges patch into the chapter's stored settings without
// touching the current audio or the history.
func (m *Manager) UpdateSettings(
	ctx context.Context,
	chapterID, callerID string,
	patch core.SettingsPatch,
) (core.AudioSettings, error) {
	saved, err := m.mutate(ctx, chapterID, callerID, func(chapter *core.Chapter) error {
		applyPatch(&chapter.Audio, patch, m.defaults, m.music)

		return nil
	})
	if err != nil {
		return core.AudioSettings{}, err
	}

	m.metrics.RecordVersionOperation(ctx, opSettings)

	return saved.Audio.Settings(), nil
}

// ListVersions returns the current rendition and the history, oldest first.
func (m *Manager) ListVersions(ctx context.Context, chapterID string) (*Versions, error) {
	chapter, err := m.repo.Get(ctx, chapterID)
	if err != nil {
		return nil, err
	}

	versions := &Versions{
		History: slices.Clone(chapter.Audio.VersionHistory),
	}

	if versions.History == nil {
		versions.History = []core.AudioVersion{}
	}

	if chapter.Audio.CurrentAudio != nil {
		versions.Current = &CurrentAudio{
			Artifact: *chapter.Audio.CurrentAudio,
			Settings: chapter.Audio.VoiceSettings,
		}
	}

	return versions, nil
}

// Restore makes an archived version current again. The rendition that was
// current is archived first; the restored entry stays in the history.
func (m *Manager) Restore(ctx context.Context, chapterID, callerID string, version int) (*Outcome, error) {
	var (
		target   core.AudioVersion
		archived bool
	)

	saved, err := m.mutate(ctx, chapterID, callerID, func(chapter *core.Chapter) error {
		archived = false

		found, ok := findVersion(chapter.Audio.VersionHistory, version)
		if !ok {
			return fmt.Errorf("%w: version %d of chapter %s", core.ErrVersionNotFound, version, chapterID)
		}

		target = found

		if chapter.Audio.CurrentAudio != nil {
			m.archiveCurrent(&chapter.Audio)
			archived = true
		}

		artifactID := target.Artifact
		chapter.Audio.CurrentAudio = &artifactID
		chapter.Audio.VoiceSettings = target.Settings.VoiceSettings

		return nil
	})
	if err != nil {
		return nil, err
	}

	m.metrics.RecordVersionOperation(ctx, opRestore)

	if archived {
		m.metrics.RecordVersionOperation(ctx, opArchive)
	}

	m.log.Info("Chapter %s restored to version %d (%s)", chapterID, version, target.Artifact)

	return &Outcome{
		ChapterID:  chapterID,
		ArtifactID: target.Artifact,
		Settings:   target.Settings.VoiceSettings,
		History:    slices.Clone(saved.Audio.VersionHistory),
	}, nil
}

// ClearAudio drops the current rendition. The artifact is deleted best
// effort unless a history entry still references it.
func (m *Manager) ClearAudio(ctx context.Context, chapterID, callerID string) error {
	var cleared string

	saved, err := m.mutate(ctx, chapterID, callerID, func(chapter *core.Chapter) error {
		cleared = ""

		if chapter.Audio.CurrentAudio != nil {
			cleared = *chapter.Audio.CurrentAudio
		}

		chapter.Audio.CurrentAudio = nil

		return nil
	})
	if err != nil {
		return err
	}

	m.metrics.RecordVersionOperation(ctx, opClear)

	if cleared == "" {
		return nil
	}

	if referenced(saved.Audio.VersionHistory, cleared) {
		m.log.Info("Chapter %s audio cleared, keeping %s for history", chapterID, cleared)

		return nil
	}

	err = m.store.Delete(ctx, cleared)
	if err != nil {
		m.log.Warn("Chapter %s audio cleared but artifact %s was not deleted: %v", chapterID, cleared, err)
	}

	return nil
}

// loadOwned fetches a chapter and checks the caller is its author.
func (m *Manager) loadOwned(ctx context.Context, chapterID, callerID string) (*core.Chapter, error) {
	chapter, err := m.repo.Get(ctx, chapterID)
	if err != nil {
		return nil, err
	}

	if chapter.AuthorID != callerID {
		return nil, fmt.Errorf("%w: caller is not the author of chapter %s", core.ErrAuthorization, chapterID)
	}

	return chapter, nil
}

// mutate runs apply on a freshly loaded chapter under the chapter lock and
// saves it, retrying when the repository reports a concurrent save.
func (m *Manager) mutate(
	ctx context.Context,
	chapterID, callerID string,
	apply func(*core.Chapter) error,
) (*core.Chapter, error) {
	unlock := m.locks.lock(chapterID)
	defer unlock()

	var lastErr error

	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		chapter, err := m.loadOwned(ctx, chapterID, callerID)
		if err != nil {
			return nil, err
		}

		err = apply(chapter)
		if err != nil {
			return nil, err
		}

		chapter.UpdatedAt = m.now().UTC()

		err = m.repo.Save(ctx, chapter)
		if err == nil {
			return chapter, nil
		}

		if !errors.Is(err, core.ErrConflict) {
			return nil, fmt.Errorf("save chapter %s: %w", chapterID, err)
		}

		lastErr = err

		m.log.Warn("Chapter %s changed during update (attempt %d/%d), retrying", chapterID, attempt, maxSaveAttempts)
	}

	return nil, fmt.Errorf("save chapter %s: %w", chapterID, lastErr)
}

// archiveCurrent appends the current rendition with the settings that are
// stored at this moment.
func (m *Manager) archiveCurrent(state *core.ChapterAudioState) {
	state.VersionHistory = append(state.VersionHistory, core.AudioVersion{
		Artifact:  *state.CurrentAudio,
		Version:   len(state.VersionHistory) + 1,
		Settings:  state.Snapshot(),
		CreatedAt: m.now().UTC(),
	})
}

func (m *Manager) discardArtifact(ctx context.Context, artifactID string) {
	err := m.store.Delete(ctx, artifactID)
	if err != nil {
		m.log.Warn("Failed to remove unused artifact %s: %v", artifactID, err)
	}
}

func (m *Manager) publishGenerated(ctx context.Context, callerID string, outcome *Outcome) {
	if m.publisher == nil {
		return
	}

	header, ok := EventHeaderFrom(ctx)
	if !ok {
		header = events.EventHeader{UserID: callerID}
	}

	event := &core.ChapterAudioGenerated{
		Header:     header,
		ChapterID:  outcome.ChapterID,
		ArtifactID: outcome.ArtifactID,
		Settings:   outcome.Settings,
		Versions:   len(outcome.History),
		Degraded:   outcome.Degraded,
		Warning:    outcome.Reason,
	}

	err := m.publisher.PublishGenerated(ctx, event)
	if err != nil {
		m.log.Warn("Failed to publish generated event for chapter %s: %v", outcome.ChapterID, err)
	}
}

// findVersion returns the first history entry with the given number.
func findVersion(history []core.AudioVersion, version int) (core.AudioVersion, bool) {
	for _, entry := range history {
		if entry.Version == version {
			return entry, true
		}
	}

	return core.AudioVersion{}, false
}

func referenced(history []core.AudioVersion, artifactID string) bool {
	return slices.ContainsFunc(history, func(entry core.AudioVersion) bool {
		return entry.Artifact == artifactID
	})
}

type headerKey struct{}

// WithEventHeader attaches the header to use for events published while
// handling ctx.
func WithEventHeader(ctx context.Context, header events.EventHeader) context.Context {
	return context.WithValue(ctx, headerKey{}, header)
}

// EventHeaderFrom returns the header attached by WithEventHeader.
func EventHeaderFrom(ctx context.Context) (events.EventHeader, bool) {
	header, ok := ctx.Value(headerKey{}).(events.EventHeader)

	return header, ok
}
