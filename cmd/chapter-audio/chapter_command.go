package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/book-expert/chapter-audio-service/internal/chapters"
	"github.com/book-expert/chapter-audio-service/internal/config"
	"github.com/book-expert/chapter-audio-service/internal/core"
	"github.com/spf13/cobra"
)

var errMemoryRepository = errors.New("chapter commands need database.driver = \"sqlite\"")

type addChapterOptions struct {
	id       string
	authorID string
	title    string
	file     string
}

func newChapterCommand(ctx *commandContext) *cobra.Command {
	chapterCmd := &cobra.Command{
		Use:   "chapter",
		Short: "Manage chapters in the local chapter database",
	}

	chapterCmd.AddCommand(newChapterAddCommand(ctx))
	chapterCmd.AddCommand(newChapterShowCommand(ctx))

	return chapterCmd
}

func newChapterAddCommand(ctx *commandContext) *cobra.Command {
	opts := &addChapterOptions{}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a chapter so its audio can be generated",
		RunE: func(cmd *cobra.Command, _ []string) error {
			content, err := os.ReadFile(opts.file)
			if err != nil {
				return fmt.Errorf("failed to read chapter content: %w", err)
			}

			return withSQLite(cmd.Context(), ctx, func(repo *chapters.SQLiteRepository) error {
				err := repo.Create(cmd.Context(), &core.Chapter{
					ID:       opts.id,
					AuthorID: opts.authorID,
					Title:    opts.title,
					Content:  string(content),
				})
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Chapter %s added for author %s\n", opts.id, opts.authorID)

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.id, "id", "", "Chapter id")
	cmd.Flags().StringVar(&opts.authorID, "author", "", "Author user id")
	cmd.Flags().StringVar(&opts.title, "title", "", "Chapter title")
	cmd.Flags().StringVar(&opts.file, "file", "", "File holding the chapter content (HTML or plain text)")

	for _, name := range []string{"id", "author", "file"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func newChapterShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <chapter-id>",
		Short: "Show the current audio and version history of a chapter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSQLite(cmd.Context(), ctx, func(repo *chapters.SQLiteRepository) error {
				chapter, err := repo.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				return printChapter(cmd.OutOrStdout(), chapter)
			})
		},
	}
}

func withSQLite(cmdCtx context.Context, ctx *commandContext, fn func(repo *chapters.SQLiteRepository) error) error {
	cfg, log, err := ctx.loadConfig()
	if err != nil {
		return err
	}

	defer closeLogger(log)

	if cfg.Database.Driver != config.DatabaseSQLite {
		return errMemoryRepository
	}

	repo, err := chapters.OpenSQLite(cmdCtx, cfg.Database.Path, log)
	if err != nil {
		return err
	}

	defer func() {
		closeErr := repo.Close()
		if closeErr != nil {
			log.Warn("Failed to close chapter database: %v", closeErr)
		}
	}()

	return fn(repo)
}

func printChapter(out io.Writer, chapter *core.Chapter) error {
	current := "(none)"
	if chapter.Audio.CurrentAudio != nil {
		current = *chapter.Audio.CurrentAudio
	}

	voice := chapter.Audio.VoiceSettings

	rows := make([][]string, 0, len(chapter.Audio.VersionHistory))
	for _, v := range chapter.Audio.VersionHistory {
		rows = append(rows, []string{
			strconv.Itoa(v.Version),
			v.Artifact,
			v.Settings.VoiceID,
			strconv.FormatFloat(v.Settings.Speed, 'f', 2, 64),
			v.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		})
	}

	_, err := fmt.Fprintf(out, "Chapter %s (%s) by %s, revision %d\nCurrent audio: %s\nVoice: %s speed %.2f pitch %.2f\n\n%s\n",
		chapter.ID, chapter.Title, chapter.AuthorID, chapter.Revision,
		current, voice.VoiceID, voice.Speed, voice.Pitch,
		renderTable("Audio versions", []string{"Version", "Artifact", "Voice", "Speed", "Created"}, rows),
	)

	return err
}
