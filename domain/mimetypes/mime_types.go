package mimetypes

import (
	"bourracho/domain"
	"bourracho/errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/samber/lo"
)

var (
	imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp", ".svg", ".heic", ".heif"}
	videoExtensions = []string{".mp4", ".avi", ".mov", ".wmv", ".flv", ".webm", ".mkv"}
	audioExtensions = []string{".mp3", ".wav", ".flac", ".aac", ".ogg", ".m4a", ".wma"}
)

// Classify resolves the media type of an upload.
// The declared content type wins, then the file extension, then the sniffed content.
func Classify(contentType, filename string, content []byte) (domain.MediaType, error) {
	if mediaType, ok := fromMIME(contentType); ok {
		return mediaType, nil
	}
	ext := Extension(filename)
	switch {
	case lo.Contains(imageExtensions, ext):
		return domain.MediaImage, nil
	case lo.Contains(videoExtensions, ext):
		return domain.MediaVideo, nil
	case lo.Contains(audioExtensions, ext):
		return domain.MediaAudio, nil
	}
	if len(content) > 0 {
		if mediaType, ok := fromMIME(mimetype.Detect(content).String()); ok {
			return mediaType, nil
		}
	}
	return "", fmt.Errorf("%w: %q / %q", errors.ErrUnsupportedMediaType, contentType, ext)
}

// Extension returns the lowercased extension of filename, dot included.
func Extension(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

func fromMIME(contentType string) (domain.MediaType, bool) {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", false
	}
	switch {
	case strings.HasPrefix(mt, "image/"):
		return domain.MediaImage, true
	case strings.HasPrefix(mt, "video/"):
		return domain.MediaVideo, true
	case strings.HasPrefix(mt, "audio/"):
		return domain.MediaAudio, true
	default:
		return "", false
	}
}

// FromExtension guesses the content type of a stored key from its extension.
// It returns an empty string when the extension is unknown.
func FromExtension(key string) string {
	return mime.TypeByExtension(Extension(key))
}
