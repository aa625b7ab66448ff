package relay

import "topicrelay/internal/domain"

// mediaPriority is the order in which attachment fields are inspected.
// The first non-empty field decides the kind.
var mediaPriority = []struct {
	kind   domain.MediaKind
	fileID func(domain.Attachments) string
}{
	{domain.MediaPhoto, func(a domain.Attachments) string { return a.Photo }},
	{domain.MediaVideo, func(a domain.Attachments) string { return a.Video }},
	{domain.MediaDocument, func(a domain.Attachments) string { return a.Document }},
	{domain.MediaAudio, func(a domain.Attachments) string { return a.Audio }},
	{domain.MediaVoice, func(a domain.Attachments) string { return a.Voice }},
	{domain.MediaVideoNote, func(a domain.Attachments) string { return a.VideoNote }},
	{domain.MediaSticker, func(a domain.Attachments) string { return a.Sticker }},
}

// DescribeMedia picks the single payload to forward from a message's attachments.
func DescribeMedia(a domain.Attachments) domain.Media {
	for _, p := range mediaPriority {
		if id := p.fileID(a); id != "" {
			return domain.Media{Kind: p.kind, FileID: id}
		}
	}
	return domain.Media{Kind: domain.MediaNone}
}
