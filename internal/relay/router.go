package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"topicrelay/internal/bus"
	"topicrelay/internal/domain"
	"topicrelay/internal/metrics"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
)

// RouterConfig wires a Router to its collaborators.
type RouterConfig struct {
	Classifier        *Classifier
	Contexts          *ContextStore
	Deliverer         domain.Deliverer
	Events            *bus.EventBus // optional; receives one EventRouted per message
	AttributionPrefix string
	Logger            *slog.Logger
	Now               func() time.Time // defaults to time.Now
}

// Router decides where a message goes and fans it out to every destination.
type Router struct {
	classifier *Classifier
	contexts   *ContextStore
	deliverer  domain.Deliverer
	events     *bus.EventBus
	prefix     string
	logger     *slog.Logger
	now        func() time.Time
}

func NewRouter(cfg RouterConfig) *Router {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Router{
		classifier: cfg.Classifier,
		contexts:   cfg.Contexts,
		deliverer:  cfg.Deliverer,
		events:     cfg.Events,
		prefix:     cfg.AttributionPrefix,
		logger:     cfg.Logger,
		now:        cfg.Now,
	}
}

// Route forwards msg to the destinations implied by its markers or, lacking
// markers, by the sender's sticky context. Delivery failures are logged and
// never stop the remaining sends.
func (r *Router) Route(ctx context.Context, msg domain.InboundMessage) {
	report := r.route(ctx, msg)

	metrics.Routed(string(report.Decision)).Inc()
	metrics.RouteDuration.Observe(report.Duration.Seconds())
	metrics.ActiveContexts.Set(int64(r.contexts.Len()))

	if r.events != nil {
		r.events.Emit(bus.Event{Type: bus.EventRouted, Report: report})
	}
}

func (r *Router) route(ctx context.Context, msg domain.InboundMessage) (report domain.RouteReport) {
	start := r.now()
	report = domain.RouteReport{
		RouteID:  uuid.NewString(),
		UpdateID: msg.UpdateID,
		Decision: domain.DecisionNone,
		Started:  start,
	}
	defer func() { report.Duration = r.now().Sub(start) }()

	if msg.Sender == nil {
		return report
	}
	senderID := msg.Sender.ID
	report.SenderID = senderID
	log := r.logger.With("route_id", report.RouteID, "sender_id", senderID)

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	hasText := strings.TrimSpace(text) != ""
	media := DescribeMedia(msg.Attachments)
	hasMedia := media.Kind != domain.MediaNone

	dests := r.classifier.Classify(text)
	switch {
	case len(dests) > 0:
		report.Decision = domain.DecisionKeyword
		log.Info("markers found", "destinations", dests)
	case hasText || hasMedia:
		dests = r.contexts.Get(senderID, start)
		if len(dests) == 0 {
			log.Info("no markers and no active context, not forwarding")
			return report
		}
		report.Decision = domain.DecisionContext
		log.Info("forwarding by sender context", "destinations", dests)
	default:
		log.Debug("empty message, nothing to forward")
		return report
	}
	report.Destinations = dests

	header := Attribution(r.prefix, msg.Sender)
	for _, dest := range dests {
		if hasText {
			report.Deliveries = append(report.Deliveries,
				r.sendText(ctx, log, dest, domain.ContentText, header+":\n\n"+escapeMarkdown(text)))
		}
		if hasMedia {
			report.Deliveries = append(report.Deliveries,
				r.sendMedia(ctx, log, dest, media, header, msg.Caption)...)
		}
	}

	if report.Decision == domain.DecisionKeyword {
		r.contexts.Put(senderID, dests, r.now())
	}

	if failed := report.Failed(); failed > 0 {
		log.Warn("forwarded with failures", "deliveries", len(report.Deliveries), "failed", failed)
	}
	return report
}

// sendMedia forwards the payload with the attribution as caption. Video notes
// and stickers cannot carry a caption, so the attribution follows as a
// separate text: always for video notes, only when a caption existed for stickers.
func (r *Router) sendMedia(ctx context.Context, log *slog.Logger, dest domain.DestinationID, media domain.Media, header, caption string) []domain.Delivery {
	full := header
	if caption != "" {
		full += ":\n\n" + escapeMarkdown(caption)
	}

	if media.Kind.SupportsCaption() {
		return []domain.Delivery{r.deliver(log, dest, domain.ContentOf(media.Kind), func() (int, error) {
			return r.deliverer.SendMedia(ctx, dest, media, full)
		})}
	}

	out := []domain.Delivery{r.deliver(log, dest, domain.ContentOf(media.Kind), func() (int, error) {
		return r.deliverer.SendMedia(ctx, dest, media, "")
	})}
	if media.Kind == domain.MediaVideoNote || caption != "" {
		out = append(out, r.sendText(ctx, log, dest, domain.ContentAttribution, full))
	}
	return out
}

func (r *Router) sendText(ctx context.Context, log *slog.Logger, dest domain.DestinationID, content domain.ContentKind, body string) domain.Delivery {
	return r.deliver(log, dest, content, func() (int, error) {
		return r.deliverer.SendText(ctx, dest, body)
	})
}

func (r *Router) deliver(log *slog.Logger, dest domain.DestinationID, content domain.ContentKind, send func() (int, error)) domain.Delivery {
	d := domain.Delivery{Destination: dest, Content: content}
	d.MessageID, d.Err = send()

	attrs := []any{"destination", int(dest), "content", string(content)}
	if name := r.classifier.Name(dest); name != "" {
		attrs = append(attrs, "topic", name)
	}
	if d.Err != nil {
		log.Error("delivery failed", append(attrs, "err", d.Err)...)
	} else {
		log.Info("delivered", append(attrs, "message_id", d.MessageID)...)
	}
	metrics.Deliveries(int(dest), string(content), d.Err == nil).Inc()
	return d
}

// linkTextStripper drops the characters legacy Markdown cannot carry inside
// link text, where backslash escapes are shown literally.
var linkTextStripper = strings.NewReplacer("_", "", "*", "", "`", "", "[", "", "]", "")

// escapeMarkdown makes user text render literally under the Markdown parse
// mode, so stray markup cannot fail the whole send.
func escapeMarkdown(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

// Attribution renders the "sent by" header: prefix followed by a Markdown
// link to the sender's profile.
func Attribution(prefix string, s *domain.Sender) string {
	name := strings.TrimSpace(linkTextStripper.Replace(s.DisplayName))
	if name == "" {
		name = strconv.FormatInt(s.ID, 10)
	}
	link := fmt.Sprintf("[%s](tg://user?id=%d)", name, s.ID)
	if prefix == "" {
		return link
	}
	return prefix + " " + link
}
