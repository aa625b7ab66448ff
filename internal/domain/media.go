package domain

// MediaKind is the closed set of payload kinds the relay forwards.
type MediaKind int

const (
	MediaNone MediaKind = iota
	MediaPhoto
	MediaVideo
	MediaDocument
	MediaAudio
	MediaVoice
	MediaVideoNote
	MediaSticker
)

var mediaKindNames = [...]string{
	MediaNone:      "none",
	MediaPhoto:     "photo",
	MediaVideo:     "video",
	MediaDocument:  "document",
	MediaAudio:     "audio",
	MediaVoice:     "voice",
	MediaVideoNote: "video_note",
	MediaSticker:   "sticker",
}

func (k MediaKind) String() string {
	if k < 0 || int(k) >= len(mediaKindNames) {
		return "unknown"
	}
	return mediaKindNames[k]
}

// SupportsCaption reports whether the Bot API accepts a caption for this kind.
func (k MediaKind) SupportsCaption() bool {
	switch k {
	case MediaPhoto, MediaVideo, MediaDocument, MediaAudio, MediaVoice:
		return true
	default:
		return false
	}
}

// Media is a single attached payload. Kind is MediaNone when nothing is attached.
type Media struct {
	Kind   MediaKind
	FileID string
}
