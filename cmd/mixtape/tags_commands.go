package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mixtape/internal/tags"
)

func newTagsCommand() *cobra.Command {
	tagsCmd := &cobra.Command{
		Use:   "tags",
		Short: "Inspect and edit the tags of downloaded files",
	}
	tagsCmd.AddCommand(newTagsShowCommand())
	tagsCmd.AddCommand(newTagsSetCommand())
	return tagsCmd
}

func newTagsShowCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:         "show FILE",
		Short:       "Print the tags stored in an mp3 file",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := tags.Read(args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, file)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTags(file))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newTagsSetCommand() *cobra.Command {
	var meta tags.Metadata
	var coverPath string
	cmd := &cobra.Command{
		Use:   "set FILE",
		Short: "Change tags of an mp3 file",
		Long: "Change tags of an mp3 file. Only the given fields are written. " +
			"The file is backed up to FILE.bak and restored if the write fails.",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var cover *tags.Cover
			if path := strings.TrimSpace(coverPath); path != "" {
				loaded, err := tags.LoadCover(path)
				if err != nil {
					return err
				}
				cover = loaded
			}
			meta = trimMetadata(meta)
			if meta == (tags.Metadata{}) && cover == nil {
				return fmt.Errorf("nothing to change; pass at least one tag flag or --cover")
			}
			if err := tags.NewWriter(nil).Edit(cmd.Context(), args[0], meta, cover); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated tags of %s\n", args[0])
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&meta.Title, "title", "", "Track title")
	flags.StringVar(&meta.Artist, "artist", "", "Track artist")
	flags.StringVar(&meta.Album, "album", "", "Album")
	flags.StringVar(&meta.AlbumArtist, "album-artist", "", "Album artist")
	flags.StringVar(&meta.Genre, "genre", "", "Genre")
	flags.StringVar(&meta.Publisher, "publisher", "", "Publisher")
	flags.StringVar(&meta.Date, "date", "", "Release year")
	flags.StringVar(&meta.Comment, "comment", "", "Comment")
	flags.StringVar(&coverPath, "cover", "", "JPEG or PNG image to embed as the front cover")
	return cmd
}

func trimMetadata(meta tags.Metadata) tags.Metadata {
	for _, field := range []*string{
		&meta.Title, &meta.Artist, &meta.Album, &meta.AlbumArtist,
		&meta.Genre, &meta.Publisher, &meta.Date, &meta.Comment,
	} {
		*field = strings.TrimSpace(*field)
	}
	return meta
}

func renderTags(file tags.File) string {
	cover := "none"
	if file.Cover != nil {
		cover = fmt.Sprintf("%s, %d bytes", file.Cover.MimeType, file.Cover.Size)
	}
	rows := [][]string{
		{"Title", file.Title},
		{"Artist", file.Artist},
		{"Album", file.Album},
		{"Album artist", file.AlbumArtist},
		{"Genre", file.Genre},
		{"Publisher", file.Publisher},
		{"Date", file.Date},
		{"Comment", file.Comment},
		{"Cover", cover},
	}
	return fmt.Sprintf("%s\n", file.Path) + renderTable([]string{"Tag", "Value"}, rows, nil)
}
