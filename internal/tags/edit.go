package tags

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/bogem/id3v2/v2"

	"mixtape/internal/logging"
)

// backupSuffix is appended to the file name while a manual edit is in
// progress.
const backupSuffix = ".bak"

// maxCoverBytes bounds embedded artwork.
const maxCoverBytes = 10 << 20

// Cover is front cover artwork embedded as an APIC frame.
type Cover struct {
	MimeType string `json:"mime_type"`
	Size     int    `json:"size"`
	Data     []byte `json:"-"`
}

// File is the tag set currently stored in one file.
type File struct {
	Path string `json:"path"`
	Metadata
	Cover *Cover `json:"cover,omitempty"`
}

// LoadCover reads a JPEG or PNG image for embedding.
func LoadCover(path string) (*Cover, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cover: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("cover image is empty")
	}
	if len(data) > maxCoverBytes {
		return nil, fmt.Errorf("cover image is larger than %d MiB", maxCoverBytes>>20)
	}
	mimeType := http.DetectContentType(data)
	if mimeType != "image/jpeg" && mimeType != "image/png" {
		return nil, fmt.Errorf("cover must be jpeg or png, got %s", mimeType)
	}
	return &Cover{MimeType: mimeType, Size: len(data), Data: data}, nil
}

// Read returns the tags stored in the mp3 at path.
func Read(path string) (File, error) {
	if err := checkFormat(path); err != nil {
		return File{}, err
	}
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return File{}, fmt.Errorf("open tags: %w", err)
	}
	defer tag.Close()

	out := File{
		Path: path,
		Metadata: Metadata{
			Title:       tag.Title(),
			Artist:      tag.Artist(),
			Album:       tag.Album(),
			AlbumArtist: tag.GetTextFrame(frameAlbumArtist).Text,
			Genre:       tag.Genre(),
			Publisher:   tag.GetTextFrame(tag.CommonID("Publisher")).Text,
			Date:        tag.Year(),
		},
	}
	for _, frame := range tag.GetFrames(tag.CommonID("Comments")) {
		if comment, ok := frame.(id3v2.CommentFrame); ok {
			out.Comment = comment.Text
			break
		}
	}
	for _, frame := range tag.GetFrames(tag.CommonID("Attached picture")) {
		pic, ok := frame.(id3v2.PictureFrame)
		if !ok {
			continue
		}
		out.Cover = &Cover{MimeType: pic.MimeType, Size: len(pic.Picture), Data: pic.Picture}
		if pic.PictureType == id3v2.PTFrontCover {
			break
		}
	}
	return out, nil
}

// Edit changes the non-empty fields of meta and, when cover is set, replaces
// the front cover. The original file is copied to path.bak first and put back
// if the write fails. The backup is removed on success.
func (w *Writer) Edit(ctx context.Context, path string, meta Metadata, cover *Cover) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkFormat(path); err != nil {
		return err
	}
	if meta == (Metadata{}) && cover == nil {
		return errors.New("nothing to change")
	}

	backup := path + backupSuffix
	if err := copyFile(path, backup); err != nil {
		return fmt.Errorf("back up %s: %w", filepath.Base(path), err)
	}

	if err := w.write(path, meta, cover); err != nil {
		if restoreErr := os.Rename(backup, path); restoreErr != nil {
			logging.ErrorWithContext(w.logger, "failed to restore tag backup", "tag_restore_failed",
				logging.Error(restoreErr),
				logging.String("backup", backup),
				logging.String(logging.FieldErrorHint, "copy the .bak file over the original by hand"),
			)
			return errors.Join(err, restoreErr)
		}
		w.logger.Warn("tag edit failed; original restored",
			logging.String(logging.FieldEventType, "tag_edit_reverted"),
			logging.String("file", filepath.Base(path)),
			logging.Error(err),
		)
		return err
	}

	if err := os.Remove(backup); err != nil && !errors.Is(err, os.ErrNotExist) {
		w.logger.Warn("could not remove tag backup", logging.String("backup", backup), logging.Error(err))
	}
	w.logger.Info("tags edited",
		logging.String(logging.FieldEventType, "tag_edited"),
		logging.String("file", filepath.Base(path)),
		logging.Bool("cover", cover != nil),
	)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
