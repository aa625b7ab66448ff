package domain

import "time"

// DestinationID identifies a forum thread (topic) inside the monitored group.
type DestinationID int

// Sender is the author of an inbound message.
type Sender struct {
	ID          int64
	DisplayName string
	Username    string
}

// Attachments holds the file IDs of every payload kind a message may carry.
// Telegram sends at most one; an empty string means absent.
type Attachments struct {
	Photo     string
	Video     string
	Document  string
	Audio     string
	Voice     string
	VideoNote string
	Sticker   string
}

type InboundMessage struct {
	UpdateID    int
	MessageID   int
	VenueID     int64 // chat ID of the group
	ThreadID    int   // forum topic, 0 when the group has no topics
	Sender      *Sender
	Text        string
	Caption     string
	Attachments Attachments
	Timestamp   time.Time
}
