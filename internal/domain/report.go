package domain

import "time"

// Decision records where a routing decision came from.
type Decision string

const (
	DecisionNone    Decision = "none"    // nothing forwarded
	DecisionKeyword Decision = "keyword" // fresh, from markers in the text
	DecisionContext Decision = "context" // inherited from the sender's sticky context
)

// ContentKind names what a single delivery carried: "text", "attribution",
// or a media kind name.
type ContentKind string

const (
	ContentText        ContentKind = "text"
	ContentAttribution ContentKind = "attribution"
)

// ContentOf returns the content kind for a media payload.
func ContentOf(kind MediaKind) ContentKind {
	return ContentKind(kind.String())
}

// Delivery is the outcome of one send to one destination.
type Delivery struct {
	Destination DestinationID
	Content     ContentKind
	MessageID   int
	Err         error
}

// RouteReport is the per-message record of a routing pass.
type RouteReport struct {
	RouteID      string
	UpdateID     int
	SenderID     int64
	Decision     Decision
	Destinations []DestinationID
	Deliveries   []Delivery
	Started      time.Time
	Duration     time.Duration
}

// Failed returns the number of deliveries that returned an error.
func (r RouteReport) Failed() int {
	n := 0
	for _, d := range r.Deliveries {
		if d.Err != nil {
			n++
		}
	}
	return n
}
