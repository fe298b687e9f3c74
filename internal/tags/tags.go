package tags

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"mixtape/internal/config"
	"mixtape/internal/logging"
)

const (
	frameAlbumArtist = "TPE2"
	commentLanguage  = "eng"
	coverDescription = "Front cover"
)

// ErrUnsupportedFormat is returned for files that do not carry ID3 tags.
var ErrUnsupportedFormat = errors.New("tagging supported for mp3 only")

// Metadata is the tag set written to one file. Empty fields are left as they
// are in the file.
type Metadata struct {
	Title       string `json:"title,omitempty"`
	Artist      string `json:"artist,omitempty"`
	Album       string `json:"album,omitempty"`
	AlbumArtist string `json:"album_artist,omitempty"`
	Genre       string `json:"genre,omitempty"`
	Publisher   string `json:"publisher,omitempty"`
	Date        string `json:"date,omitempty"`
	Comment     string `json:"comment,omitempty"`
}

// Defaults returns the configured defaults with overrides applied on top.
func Defaults(cfg config.Tags, overrides Metadata) Metadata {
	meta := Metadata{
		Genre:     cfg.Genre,
		Publisher: cfg.Publisher,
		Comment:   cfg.Comment,
	}
	if v := strings.TrimSpace(overrides.Genre); v != "" {
		meta.Genre = v
	}
	if v := strings.TrimSpace(overrides.Publisher); v != "" {
		meta.Publisher = v
	}
	meta.Album = strings.TrimSpace(overrides.Album)
	meta.AlbumArtist = strings.TrimSpace(overrides.AlbumArtist)
	meta.Date = strings.TrimSpace(overrides.Date)
	meta.Genre = titleCase(meta.Genre)
	return meta
}

var titleCaser = cases.Title(language.Und, cases.NoLower)

func titleCase(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return titleCaser.String(value)
}

// Writer writes ID3v2 tags in place.
type Writer struct {
	logger *slog.Logger
	save   func(*id3v2.Tag) error
}

// NewWriter constructs a tag writer.
func NewWriter(logger *slog.Logger) *Writer {
	return &Writer{
		logger: logging.NewComponentLogger(logger, "tags"),
		save:   (*id3v2.Tag).Save,
	}
}

// Apply writes meta into the file at path. Title and artist are required.
func (w *Writer) Apply(ctx context.Context, path string, meta Metadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkFormat(path); err != nil {
		return err
	}
	if strings.TrimSpace(meta.Title) == "" || strings.TrimSpace(meta.Artist) == "" {
		return errors.New("title and artist are required")
	}
	if err := w.write(path, meta, nil); err != nil {
		return err
	}
	w.logger.Debug("tags written", logging.String("file", filepath.Base(path)))
	return nil
}

func checkFormat(path string) error {
	if !strings.EqualFold(filepath.Ext(path), ".mp3") {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}
	return nil
}

// write sets every non-empty field of meta, replaces the front cover when
// one is given, and saves the tag.
func (w *Writer) write(path string, meta Metadata, cover *Cover) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("open tags: %w", err)
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	enc := tag.DefaultEncoding()

	if meta.Title != "" {
		tag.SetTitle(meta.Title)
	}
	if meta.Artist != "" {
		tag.SetArtist(meta.Artist)
	}
	if meta.Album != "" {
		tag.SetAlbum(meta.Album)
	}
	if meta.AlbumArtist != "" {
		tag.AddTextFrame(frameAlbumArtist, enc, meta.AlbumArtist)
	}
	if meta.Genre != "" {
		tag.SetGenre(meta.Genre)
	}
	if meta.Date != "" {
		tag.SetYear(meta.Date)
	}
	if meta.Publisher != "" {
		tag.AddTextFrame(tag.CommonID("Publisher"), enc, meta.Publisher)
	}
	if meta.Comment != "" {
		tag.DeleteFrames(tag.CommonID("Comments"))
		tag.AddCommentFrame(id3v2.CommentFrame{
			Encoding: enc,
			Language: commentLanguage,
			Text:     meta.Comment,
		})
	}
	if cover != nil {
		tag.DeleteFrames(tag.CommonID("Attached picture"))
		tag.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    enc,
			MimeType:    cover.MimeType,
			PictureType: id3v2.PTFrontCover,
			Description: coverDescription,
			Picture:     cover.Data,
		})
	}

	if err := w.save(tag); err != nil {
		return fmt.Errorf("save tags: %w", err)
	}
	return nil
}
