// Package tags writes ID3v2 metadata into fetched MP3 files.
package tags
