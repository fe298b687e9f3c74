// Package fetch turns a video link into a local audio file using yt-dlp and
// ffmpeg, returning the title, uploader and duration read from yt-dlp's info
// JSON. When yt-dlp reports no duration the MP3 frames are counted instead.
package fetch
