package main

import (
	"fmt"
	"io"

	"github.com/book-expert/chapter-audio-service/internal/catalog"
	"github.com/spf13/cobra"
)

func newCatalogCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the available voices, music tracks and sound effects",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printCatalog(cmd.OutOrStdout(), catalog.Default())
		},
	}
}

func printCatalog(out io.Writer, registry *catalog.Registry) error {
	voices := make([][]string, 0, len(registry.ListVoices()))
	for _, v := range registry.ListVoices() {
		voices = append(voices, []string{v.ID, v.Name, v.Category, v.Gender, v.Accent, v.Tone})
	}

	music := make([][]string, 0, len(registry.ListMusic()))
	for _, m := range registry.ListMusic() {
		music = append(music, []string{m.ID, m.Name, m.Mood, m.Description})
	}

	effects := make([][]string, 0, len(registry.ListSoundEffects()))
	for _, e := range registry.ListSoundEffects() {
		effects = append(effects, []string{e.ID, e.Name, e.Category, e.Description})
	}

	_, err := fmt.Fprintf(out, "%s\n\n%s\n\n%s\n\nDefault voice: %s, default music: %s\n",
		renderTable("Voices", []string{"ID", "Name", "Category", "Gender", "Accent", "Tone"}, voices),
		renderTable("Background music", []string{"ID", "Name", "Mood", "Description"}, music),
		renderTable("Sound effects", []string{"ID", "Name", "Category", "Description"}, effects),
		registry.DefaultVoice(), registry.DefaultMusic(),
	)

	return err
}
