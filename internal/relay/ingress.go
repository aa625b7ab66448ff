package relay

import "topicrelay/internal/domain"

// IngressFilter admits only messages posted by a user in the monitored thread
// of the monitored group.
type IngressFilter struct {
	venueID  int64
	threadID int
}

func NewIngressFilter(venueID int64, threadID int) *IngressFilter {
	return &IngressFilter{venueID: venueID, threadID: threadID}
}

func (f *IngressFilter) Accept(msg domain.InboundMessage) bool {
	return msg.Sender != nil &&
		msg.VenueID == f.venueID &&
		msg.ThreadID == f.threadID
}
