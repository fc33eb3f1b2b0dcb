// Package track exposes the recipient-facing engagement endpoints. The
// pixel and click paths are fire-and-forget: they answer successfully even
// when the store write fails, because a tracking failure must never surface
// as a visible error in a mail client. All state lives in the document
// store; one goroutine per request, nothing shared in process.
package track

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"daily-digest/internal/engagement"
)

// 1x1 transparent GIF served for every pixel request.
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// Sender runs the curated-read + delivery cycle for the administrative
// trigger endpoint.
type Sender interface {
	SendToday(ctx context.Context) (int, bool)
}

type Handler struct {
	events    engagement.Repository
	sender    Sender
	publisher Publisher // nil disables engagement publishing
	logger    *log.Logger

	now func() time.Time
}

func NewHandler(events engagement.Repository, sender Sender, publisher Publisher, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}

	return &Handler{
		events:    events,
		sender:    sender,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

func (h *Handler) Register(r *mux.Router) {
	// The unload hook delivers the close signal via navigator.sendBeacon,
	// which always issues a POST.
	r.HandleFunc("/track/close/{id}", h.closeSignal).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/track/click/{id}", h.clickSignal).Methods(http.MethodGet)
	r.HandleFunc("/track/{id}", h.openPixel).Methods(http.MethodGet)
	r.HandleFunc("/send_emails", h.triggerSend).Methods(http.MethodGet)
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
}

// openPixel records a new open event and always answers with the pixel,
// whatever the record-write outcome.
func (h *Handler) openPixel(w http.ResponseWriter, r *http.Request) {
	trackingID := mux.Vars(r)["id"]

	ev := &engagement.OpenEvent{
		TrackingID:       trackingID,
		OpenedAt:         h.now().UTC(),
		IP:               clientIP(r),
		UserAgent:        r.UserAgent(),
		TimeSpentSeconds: 0,
	}
	if err := h.events.RecordOpen(r.Context(), ev); err != nil {
		h.logger.Printf("failed to record open for %s: %v", trackingID, err)
	} else {
		h.publish(r.Context(), EngagementMessage{
			Event:      EventOpened,
			Timestamp:  ev.OpenedAt,
			TrackingID: trackingID,
			IP:         ev.IP,
			UserAgent:  ev.UserAgent,
		})
	}

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pixelGIF)
}

// closeSignal patches the most recently created open event for the tracking
// id. A close without a matching open answers not-found but creates nothing.
func (h *Handler) closeSignal(w http.ResponseWriter, r *http.Request) {
	trackingID := mux.Vars(r)["id"]

	timeSpent, err := strconv.Atoi(r.URL.Query().Get("time_spent"))
	if err != nil || timeSpent < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "invalid time_spent"})
		return
	}

	closedAt := h.now().UTC()
	err = h.events.CloseLatestOpen(r.Context(), trackingID, timeSpent, closedAt)
	switch {
	case errors.Is(err, engagement.ErrNoOpenEvent):
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "not_found"})
		return
	case err != nil:
		h.logger.Printf("failed to close open for %s: %v", trackingID, err)
	default:
		h.publish(r.Context(), EngagementMessage{
			Event:            EventClosed,
			Timestamp:        closedAt,
			TrackingID:       trackingID,
			TimeSpentSeconds: timeSpent,
		})
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// clickSignal appends a click event, then redirects to the target so the
// recipient's navigation is not broken.
func (h *Handler) clickSignal(w http.ResponseWriter, r *http.Request) {
	trackingID := mux.Vars(r)["id"]
	targetURL := r.URL.Query().Get("url")

	ev := &engagement.ClickEvent{
		TrackingID: trackingID,
		ClickedAt:  h.now().UTC(),
		IP:         clientIP(r),
		UserAgent:  r.UserAgent(),
		TargetURL:  targetURL,
	}
	if err := h.events.RecordClick(r.Context(), ev); err != nil {
		h.logger.Printf("failed to record click for %s: %v", trackingID, err)
	} else {
		h.publish(r.Context(), EngagementMessage{
			Event:      EventClicked,
			Timestamp:  ev.ClickedAt,
			TrackingID: trackingID,
			IP:         ev.IP,
			UserAgent:  ev.UserAgent,
			TargetURL:  targetURL,
		})
	}

	if targetURL != "" {
		http.Redirect(w, r, targetURL, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// triggerSend runs curation read + delivery synchronously. Administrative,
// not recipient-facing, so failures are visible here.
func (h *Handler) triggerSend(w http.ResponseWriter, r *http.Request) {
	if h.sender == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "delivery not configured"})
		return
	}

	count, sent := h.sender.SendToday(r.Context())
	if !sent {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"status": "failed",
			"items":  count,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "sent",
		"items":  count,
	})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// publish is best-effort: a bus failure is logged, never surfaced.
func (h *Handler) publish(ctx context.Context, msg EngagementMessage) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.PublishEngagement(ctx, msg); err != nil {
		h.logger.Printf("failed to publish %s for %s: %v", msg.Event, msg.TrackingID, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
