package relay

import (
	"slices"
	"strings"

	"topicrelay/internal/config"
	"topicrelay/internal/domain"
)

// Classifier maps message text to the destinations whose markers it contains.
type Classifier struct {
	routes       []config.Route
	lowerMarkers []string // pre-computed lowercase markers, same order as routes
	names        map[domain.DestinationID]string
}

func NewClassifier(routes []config.Route) *Classifier {
	c := &Classifier{
		routes:       append([]config.Route(nil), routes...),
		lowerMarkers: make([]string, len(routes)),
		names:        make(map[domain.DestinationID]string, len(routes)),
	}
	for i, r := range routes {
		c.lowerMarkers[i] = strings.ToLower(strings.TrimSpace(r.Marker))
		dest := domain.DestinationID(r.ThreadID)
		if _, ok := c.names[dest]; !ok && r.Name != "" {
			c.names[dest] = r.Name
		}
	}
	return c
}

// Classify returns the destinations for every marker found in text, in route
// order, without duplicates. Matching is a case-insensitive substring search.
func (c *Classifier) Classify(text string) []domain.DestinationID {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)

	var dests []domain.DestinationID
	for i, marker := range c.lowerMarkers {
		if marker == "" || !strings.Contains(lower, marker) {
			continue
		}
		dest := domain.DestinationID(c.routes[i].ThreadID)
		if !slices.Contains(dests, dest) {
			dests = append(dests, dest)
		}
	}
	return dests
}

// Name returns the configured label for dest, or "" if it has none.
func (c *Classifier) Name(dest domain.DestinationID) string {
	return c.names[dest]
}
