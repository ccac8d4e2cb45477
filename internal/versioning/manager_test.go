package versioning_test

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/chapter-audio-service/internal/artifact"
	"github.com/book-expert/chapter-audio-service/internal/catalog"
	"github.com/book-expert/chapter-audio-service/internal/chapters"
	"github.com/book-expert/chapter-audio-service/internal/core"
	"github.com/book-expert/chapter-audio-service/internal/testutil"
	"github.com/book-expert/chapter-audio-service/internal/tts"
	"github.com/book-expert/chapter-audio-service/internal/versioning"
	"github.com/book-expert/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	author  = "author-1"
	chapter = "chapter-1"
)

var artifactIDPattern = regexp.MustCompile(`^tts_\d+_[0-9a-f]{9}\.mp3$`)

// stubSynth writes a fixed payload to the store, or a degraded placeholder
// when failing is set.
type stubSynth struct {
	mu      sync.Mutex
	store   core.ArtifactStore
	failing bool
	calls   []synthCall
}

type synthCall struct {
	text    string
	voiceID string
	params  core.SynthesisParams
}

func (s *stubSynth) Synthesize(ctx context.Context, text, voiceID string, params core.SynthesisParams) (tts.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, synthCall{text: text, voiceID: voiceID, params: params})
	failing := s.failing
	s.mu.Unlock()

	if failing {
		id, err := s.store.Write(ctx, []byte("RIFF"), "wav")
		if err != nil {
			return tts.Result{}, err
		}

		return tts.Result{ArtifactID: id, Voice: voiceID, Degraded: true, Reason: "speech provider auth"}, nil
	}

	id, err := s.store.Write(ctx, []byte("audio for "+voiceID), "mp3")
	if err != nil {
		return tts.Result{}, err
	}

	return tts.Result{ArtifactID: id, Voice: voiceID}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*core.ChapterAudioGenerated
	err    error
}

func (p *recordingPublisher) PublishGenerated(_ context.Context, event *core.ChapterAudioGenerated) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return p.err
}

type fixture struct {
	manager   *versioning.Manager
	repo      *chapters.MemoryRepository
	store     *artifact.FileStore
	synth     *stubSynth
	publisher *recordingPublisher
}

func newFixture(t *testing.T, content string) *fixture {
	t.Helper()

	log := testutil.Logger(t)
	store := artifact.NewFileStore(t.TempDir(), log)
	require.NoError(t, store.EnsureReady(context.Background()))

	repo := chapters.NewMemoryRepository()
	require.NoError(t, repo.Create(context.Background(), &core.Chapter{
		ID:       chapter,
		AuthorID: author,
		Title:    "The Door",
		Content:  content,
	}))

	synth := &stubSynth{store: store}
	publisher := &recordingPublisher{}

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	manager := versioning.NewManager(repo, synth, store, catalog.Default(), publisher, log,
		versioning.WithClock(func() time.Time {
			clock = clock.Add(time.Minute)

			return clock
		}),
	)

	return &fixture{manager: manager, repo: repo, store: store, synth: synth, publisher: publisher}
}

func voice(id string, speed float64) core.VoiceOverride {
	return core.VoiceOverride{VoiceID: &id, Speed: &speed}
}

func (f *fixture) generate(t *testing.T, override core.VoiceOverride, archive bool) *versioning.Outcome {
	t.Helper()

	outcome, err := f.manager.GenerateForChapter(context.Background(), chapter, author, override, archive)
	require.NoError(t, err)

	return outcome
}

func TestExampleScenario(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "<p>The door creaked open.</p>")
	ctx := context.Background()

	first := f.generate(t, voice("narrator-warm", 1.0), true)
	assert.Regexp(t, artifactIDPattern, first.ArtifactID)
	assert.Empty(t, first.History)

	second := f.generate(t, voice("dramatic-male", 1.2), true)
	require.Len(t, second.History, 1)
	assert.Equal(t, 1, second.History[0].Version)
	assert.Equal(t, first.ArtifactID, second.History[0].Artifact)
	assert.Equal(t, "narrator-warm", second.History[0].Settings.VoiceID)
	assert.InDelta(t, 1.0, second.History[0].Settings.Speed, 1e-9)
	assert.Equal(t, "dramatic-male", second.Settings.VoiceID)

	restored, err := f.manager.Restore(ctx, chapter, author, 1)
	require.NoError(t, err)
	assert.Equal(t, first.ArtifactID, restored.ArtifactID)

	versions, err := f.manager.ListVersions(ctx, chapter)
	require.NoError(t, err)
	require.NotNil(t, versions.Current)
	assert.Equal(t, first.ArtifactID, versions.Current.Artifact)
	assert.Equal(t, "narrator-warm", versions.Current.Settings.VoiceID)

	require.Len(t, versions.History, 2)
	assert.Equal(t, 2, versions.History[1].Version)
	assert.Equal(t, second.ArtifactID, versions.History[1].Artifact)
	assert.Equal(t, "dramatic-male", versions.History[1].Settings.VoiceID)
	assert.InDelta(t, 1.2, versions.History[1].Settings.Speed, 1e-9)
}

func TestMonotonicVersioning(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Text.")

	f.generate(t, core.VoiceOverride{}, true)

	const archives = 5
	for range archives {
		f.generate(t, core.VoiceOverride{}, true)
	}

	versions, err := f.manager.ListVersions(context.Background(), chapter)
	require.NoError(t, err)
	require.Len(t, versions.History, archives)

	for i, entry := range versions.History {
		assert.Equal(t, i+1, entry.Version)

		if i > 0 {
			assert.True(t, entry.CreatedAt.After(versions.History[i-1].CreatedAt))
		}
	}
}

func TestNoSilentLoss(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Text.")

	first := f.generate(t, core.VoiceOverride{}, true)
	second := f.generate(t, core.VoiceOverride{}, true)

	require.Len(t, second.History, 1)
	assert.Equal(t, first.ArtifactID, second.History[0].Artifact)
}

func TestArchiveOptOut(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Text.")

	f.generate(t, core.VoiceOverride{}, false)
	f.generate(t, core.VoiceOverride{}, true)
	f.generate(t, core.VoiceOverride{}, false)
	last := f.generate(t, core.VoiceOverride{}, false)

	assert.Len(t, last.History, 1)
}

func TestRestoreRoundTrip(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Text.")
	ctx := context.Background()

	stability := 0.9
	a := f.generate(t, core.VoiceOverride{VoiceID: ptr("mysterious"), Stability: &stability}, true)
	settingsS := a.Settings

	b := f.generate(t, voice("cheerful", 1.5), true)
	settingsT := b.Settings

	restored, err := f.manager.Restore(ctx, chapter, author, 1)
	require.NoError(t, err)
	assert.Equal(t, a.ArtifactID, restored.ArtifactID)
	assert.Equal(t, settingsS, restored.Settings)

	loaded, err := f.repo.Get(ctx, chapter)
	require.NoError(t, err)
	assert.Equal(t, a.ArtifactID, *loaded.Audio.CurrentAudio)
	assert.Equal(t, settingsS, loaded.Audio.VoiceSettings)

	last := loaded.Audio.VersionHistory[len(loaded.Audio.VersionHistory)-1]
	assert.Equal(t, b.ArtifactID, last.Artifact)
	assert.Equal(t, settingsT, last.Settings.VoiceSettings)
}

func TestRestore_KeepsRestoredEntryAndAllowsDuplicates(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Text.")
	ctx := context.Background()

	a := f.generate(t, core.VoiceOverride{}, true)
	f.generate(t, core.VoiceOverride{}, true)

	_, err := f.manager.Restore(ctx, chapter, author, 1)
	require.NoError(t, err)

	f.generate(t, core.VoiceOverride{}, true)

	versions, err := f.manager.ListVersions(ctx, chapter)
	require.NoError(t, err)
	require.Len(t, versions.History, 3)

	assert.Equal(t, a.ArtifactID, versions.History[0].Artifact)
	assert.Equal(t, a.ArtifactID, versions.History[2].Artifact, "restored artifact is archived again under a new number")
	assert.Equal(t, 3, versions.History[2].Version)
}

func TestRestore_UnknownVersion(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Text.")
	f.generate(t, core.VoiceOverride{}, true)

	_, err := f.manager.Restore(context.Background(), chapter, author, 7)
	require.ErrorIs(t, err, core.ErrVersionNotFound)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestFallbackNeverRaises(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Text.")
	f.synth.failing = true

	outcome := f.generate(t, core.VoiceOverride{}, true)

	assert.True(t, outcome.Degraded)
	assert.NotEmpty(t, outcome.Reason)
	assert.True(t, strings.HasSuffix(outcome.ArtifactID, ".wav"))

	loaded, err := f.repo.Get(context.Background(), chapter)
	require.NoError(t, err)
	assert.Equal(t, outcome.ArtifactID, *loaded.Audio.CurrentAudio)
}

func TestEffectiveSettings_Precedence(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Text.")

	defaults := versioning.DefaultVoiceSettings(catalog.Default())
	assert.Equal(t, defaults, f.manager.EffectiveSettings(core.VoiceOverride{}, core.VoiceSettings{}))

	stored := core.VoiceSettings{VoiceID: "elder-sage", Speed: 0.8, Pitch: 1.1, Stability: 0, Clarity: 0.3}
	assert.Equal(t, stored, f.manager.EffectiveSettings(core.VoiceOverride{}, stored))

	clarity := 1.0
	merged := f.manager.EffectiveSettings(core.VoiceOverride{Clarity: &clarity, VoiceID: ptr("")}, stored)
	assert.Equal(t, "elder-sage", merged.VoiceID)
	assert.InDelta(t, 1.0, merged.Clarity, 1e-9)
	assert.InDelta(t, 0.8, merged.Speed, 1e-9)

	partial := core.VoiceSettings{VoiceID: "young-male"}
	filled := f.manager.EffectiveSettings(core.VoiceOverride{}, partial)
	assert.InDelta(t, versioning.DefaultSpeed, filled.Speed, 1e-9)
	assert.InDelta(t, versioning.DefaultPitch, filled.Pitch, 1e-9)
}

func TestGenerateForChapter_UsesStoredSettings(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Text.")
	ctx := context.Background()

	_, err := f.manager.UpdateSettings(ctx, chapter, author, core.SettingsPatch{
		Voice: &core.VoiceOverride{VoiceID: ptr("narrator-british"), Pitch: ptrF(1.3)},
	})
	require.NoError(t, err)

	outcome := f.generate(t, core.VoiceOverride{Speed: ptrF(0.7)}, true)

	assert.Equal(t, "narrator-british", outcome.Settings.VoiceID)
	assert.InDelta(t, 1.3, outcome.Settings.Pitch, 1e-9)
	assert.InDelta(t, 0.7, outcome.Settings.Speed, 1e-9)

	require.Len(t, f.synth.calls, 1)
	assert.Equal(t, "narrator-british", f.synth.calls[0].voiceID)
	assert.Equal(t, outcome.Settings.Params(), f.synth.calls[0].params)
	assert.Equal(t, "Text.", f.synth.calls[0].text)
}

func TestGenerateForChapter_Rejections(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Text.")
	ctx := context.Background()

	_, err := f.manager.GenerateForChapter(ctx, chapter, "intruder", core.VoiceOverride{}, true)
	require.ErrorIs(t, err, core.ErrAuthorization)

	_, err = f.manager.GenerateForChapter(ctx, "missing", author, core.VoiceOverride{}, true)
	require.ErrorIs(t, err, core.ErrNotFound)

	empty := newFixture(t, "<p>  </p>")
	_, err = empty.manager.GenerateForChapter(ctx, chapter, author, core.VoiceOverride{}, true)
	require.ErrorIs(t, err, core.ErrValidation)

	assert.Empty(t, f.synth.calls)
	assert.Empty(t, empty.synth.calls)
}

func TestGenerateForChapter_TruncatesLongChapters(t *testing.T) {
	t.Parallel()

	f := newFixture(t, strings.Repeat("Word word word. ", 1000))

	f.generate(t, core.VoiceOverride{}, true)

	require.Len(t, f.synth.calls, 1)
	assert.LessOrEqual(t, len([]rune(f.synth.calls[0].text)), 10000)
}

func TestGenerateForChapter_PublishesEvent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Text.")
	ctx := versioning.WithEventHeader(context.Background(), events.EventHeader{WorkflowID: "wf-1", UserID: author})

	outcome, err := f.manager.GenerateForChapter(ctx, chapter, author, core.VoiceOverride{}, true)
	require.NoError(t, err)

	require.Len(t, f.publisher.events, 1)
	event := f.publisher.events[0]
	assert.Equal(t, "wf-1", event.Header.WorkflowID)
	assert.Equal(t, chapter, event.ChapterID)
	assert.Equal(t, outcome.ArtifactID, event.ArtifactID)
}

func TestGenerateForChapter_PublishFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Text.")
	f.publisher.err = errors.New("broker down")

	outcome := f.generate(t, core.VoiceOverride{}, true)
	assert.NotEmpty(t, outcome.ArtifactID)
}

func TestUpdateSettings(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Text.")
	ctx := context.Background()

	generated := f.generate(t, core.VoiceOverride{}, true)

	before, err := f.repo.Get(ctx, chapter)
	require.NoError(t, err)

	unchanged, err := f.manager.UpdateSettings(ctx, chapter, author, core.SettingsPatch{})
	require.NoError(t, err)
	assert.Equal(t, before.Audio.VoiceSettings, unchanged.VoiceSettings)

	cues := []core.SoundEffectCue{{EffectID: "door-creak", Position: "start"}}
	updated, err := f.manager.UpdateSettings(ctx, chapter, author, core.SettingsPatch{
		BackgroundMusic: &core.MusicPatch{TrackID: ptr("dark-mystery"), Volume: ptrF(0.5)},
		SoundEffects:    &cues,
	})
	require.NoError(t, err)

	assert.Equal(t, "dark-mystery", updated.BackgroundMusic.TrackID)
	assert.InDelta(t, 0.5, updated.BackgroundMusic.Volume, 1e-9)
	assert.InDelta(t, versioning.DefaultFade, updated.BackgroundMusic.FadeIn, 1e-9)
	assert.Equal(t, cues, updated.SoundEffects)

	after, err := f.repo.Get(ctx, chapter)
	require.NoError(t, err)
	assert.Equal(t, generated.ArtifactID, *after.Audio.CurrentAudio)
	assert.Empty(t, after.Audio.VersionHistory)

	_, err = f.manager.UpdateSettings(ctx, chapter, "intruder", core.SettingsPatch{})
	require.ErrorIs(t, err, core.ErrAuthorization)
}

func TestUpdateSettings_FreshChapterIsFullyPopulated(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Text.")
	ctx := context.Background()
	defaults := versioning.DefaultVoiceSettings(catalog.Default())

	updated, err := f.manager.UpdateSettings(ctx, chapter, author, core.SettingsPatch{
		BackgroundMusic: &core.MusicPatch{TrackID: ptr("suspense")},
	})
	require.NoError(t, err)

	assert.Equal(t, defaults, updated.VoiceSettings)
	assert.Equal(t, "suspense", updated.BackgroundMusic.TrackID)
	assert.InDelta(t, versioning.DefaultVolume, updated.BackgroundMusic.Volume, 1e-9)
	assert.True(t, updated.BackgroundMusic.AutoDuck)

	stored, err := f.repo.Get(ctx, chapter)
	require.NoError(t, err)
	assert.Equal(t, defaults, stored.Audio.VoiceSettings)
	require.NoError(t, core.ValidateOverride(core.VoiceOverride{
		Speed:     &stored.Audio.VoiceSettings.Speed,
		Pitch:     &stored.Audio.VoiceSettings.Pitch,
		Stability: &stored.Audio.VoiceSettings.Stability,
		Clarity:   &stored.Audio.VoiceSettings.Clarity,
	}))

	again, err := f.manager.UpdateSettings(ctx, chapter, author, core.SettingsPatch{})
	require.NoError(t, err)
	assert.Equal(t, updated, again)
}

func TestClearAudio(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Text.")
	ctx := context.Background()

	f.generate(t, core.VoiceOverride{}, true)
	second := f.generate(t, core.VoiceOverride{}, true)

	require.NoError(t, f.manager.ClearAudio(ctx, chapter, author))

	versions, err := f.manager.ListVersions(ctx, chapter)
	require.NoError(t, err)
	assert.Nil(t, versions.Current)
	assert.Len(t, versions.History, 1)

	_, _, err = f.store.Read(ctx, second.ArtifactID)
	require.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, f.manager.ClearAudio(ctx, chapter, author), "clearing twice is fine")
}

func TestClearAudio_KeepsArtifactReferencedByHistory(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Text.")
	ctx := context.Background()

	first := f.generate(t, core.VoiceOverride{}, true)
	f.generate(t, core.VoiceOverride{}, true)

	_, err := f.manager.Restore(ctx, chapter, author, 1)
	require.NoError(t, err)

	require.NoError(t, f.manager.ClearAudio(ctx, chapter, author))

	reader, _, err := f.store.Read(ctx, first.ArtifactID)
	require.NoError(t, err)
	require.NoError(t, reader.Close())
}

func TestConcurrentGenerationsDoNotLoseHistory(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Text.")
	f.generate(t, core.VoiceOverride{}, true)

	const workers = 8

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := f.manager.GenerateForChapter(context.Background(), chapter, author, core.VoiceOverride{}, true)
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	versions, err := f.manager.ListVersions(context.Background(), chapter)
	require.NoError(t, err)
	require.Len(t, versions.History, workers)

	seen := make(map[string]bool)
	for i, entry := range versions.History {
		assert.Equal(t, i+1, entry.Version)
		assert.False(t, seen[entry.Artifact], "artifact %s archived twice", entry.Artifact)
		seen[entry.Artifact] = true
	}
}

func ptr(s string) *string { return &s }

func ptrF(f float64) *float64 { return &f }
