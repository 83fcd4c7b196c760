package domain

import (
	"mime"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MediaKind classifies stored media for display grouping.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
	MediaAudio MediaKind = "audio"
)

// MediaItem references externally stored binary content owned by one capsule.
type MediaItem struct {
	ID          uuid.UUID `json:"id"`
	CapsuleID   uuid.UUID `json:"capsule_id"`
	StoragePath string    `json:"storage_path"`
	FileName    string    `json:"file_name"`
	Kind        MediaKind `json:"media_kind"`
	CreatedAt   time.Time `json:"created_at"`
}

// ParseMediaKind maps a stored value to a kind. Empty or unknown values are
// treated as images, which is how rows written before kinds existed behave.
func ParseMediaKind(s string) MediaKind {
	switch MediaKind(strings.ToLower(strings.TrimSpace(s))) {
	case MediaVideo:
		return MediaVideo
	case MediaAudio:
		return MediaAudio
	default:
		return MediaImage
	}
}

// KindFromUpload derives the kind from the declared content type, falling
// back to the file extension.
func KindFromUpload(fileName, contentType string) MediaKind {
	if k, ok := kindFromContentType(contentType); ok {
		return k
	}
	if ext := path.Ext(fileName); ext != "" {
		if k, ok := kindFromContentType(mime.TypeByExtension(strings.ToLower(ext))); ok {
			return k
		}
	}
	return MediaImage
}

func kindFromContentType(ct string) (MediaKind, bool) {
	ct = strings.ToLower(strings.TrimSpace(ct))
	switch {
	case strings.HasPrefix(ct, "image/"):
		return MediaImage, true
	case strings.HasPrefix(ct, "video/"):
		return MediaVideo, true
	case strings.HasPrefix(ct, "audio/"):
		return MediaAudio, true
	default:
		return "", false
	}
}
