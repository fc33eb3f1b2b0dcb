package deliver

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"daily-digest/internal/curated"
	"daily-digest/internal/engagement"
)

// ItemSource reads the curated set to send.
type ItemSource interface {
	FindAll(ctx context.Context) ([]curated.Item, error)
}

// Renderer assembles the digest document for a tracking id.
type Renderer interface {
	Render(items []curated.Item, trackingID, date string) (string, error)
}

// SendRecorder persists the send event after a successful transmit.
type SendRecorder interface {
	RecordSend(ctx context.Context, ev *engagement.SendEvent) error
}

// Service sends the rendered digest and records the send event. Failures are
// logged and reported as "not delivered this cycle"; there is no automatic
// re-send.
type Service struct {
	items    ItemSource
	renderer Renderer
	mailer   Mailer
	events   SendRecorder

	from       string
	recipients []string
	logger     *log.Logger

	now           func() time.Time
	newTrackingID func() string
}

func NewService(items ItemSource, renderer Renderer, mailer Mailer, events SendRecorder, from string, recipients []string, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}

	return &Service{
		items:         items,
		renderer:      renderer,
		mailer:        mailer,
		events:        events,
		from:          from,
		recipients:    recipients,
		logger:        logger,
		now:           time.Now,
		newTrackingID: uuid.NewString,
	}
}

// Send delivers the given items under a fresh tracking id. Returns false and
// writes nothing on any rendering or transport failure; never panics or
// raises past this boundary.
func (s *Service) Send(ctx context.Context, items []curated.Item) bool {
	if len(items) == 0 {
		s.logger.Println("no news items available to send")
		return false
	}
	if len(s.recipients) == 0 {
		s.logger.Println("no recipients configured")
		return false
	}

	trackingID := s.newTrackingID()
	date := s.now().UTC().Format("2006-01-02")

	html, err := s.renderer.Render(items, trackingID, date)
	if err != nil {
		s.logger.Printf("error rendering digest: %v", err)
		return false
	}

	subject := fmt.Sprintf("MENA/SEA News Today - %s", date)
	if err := s.mailer.Send(s.from, s.recipients, subject, html); err != nil {
		s.logger.Printf("error sending email: %v", err)
		return false
	}
	s.logger.Printf("email sent successfully to %d recipients", len(s.recipients))

	titles := make([]string, 0, len(items))
	for _, item := range items {
		titles = append(titles, item.ArticleInfo.Title)
	}

	ev := &engagement.SendEvent{
		TrackingID: trackingID,
		SentAt:     s.now().UTC(),
		Recipients: s.recipients,
		ItemCount:  len(items),
		Titles:     titles,
	}
	if err := s.events.RecordSend(ctx, ev); err != nil {
		// The mail already went out; losing the send event only degrades
		// analytics, so the send still counts as delivered.
		s.logger.Printf("failed to record send event %s: %v", trackingID, err)
	}

	return true
}

// SendToday reads the curated collection and delivers it. Used by the
// administrative trigger endpoint and the deliver CLI command.
func (s *Service) SendToday(ctx context.Context) (int, bool) {
	items, err := s.items.FindAll(ctx)
	if err != nil {
		s.logger.Printf("error reading curated items: %v", err)
		return 0, false
	}
	return len(items), s.Send(ctx, items)
}
