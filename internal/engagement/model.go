package engagement

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SendEvent records one successful digest delivery. Immutable; the tracking
// id is the correlation key every later engagement event refers back to.
type SendEvent struct {
	TrackingID string    `bson:"tracking_id"`
	SentAt     time.Time `bson:"sent_at"`
	Recipients []string  `bson:"recipients"`
	ItemCount  int       `bson:"item_count"`
	Titles     []string  `bson:"titles"`
}

// OpenEvent is created on every pixel fetch. TimeSpentSeconds and ClosedAt
// are patched later by a close signal; until then the open counts as zero
// reading time. Multiple opens for the same tracking id (several devices,
// mail-client refetches) each create their own event.
type OpenEvent struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	TrackingID       string             `bson:"tracking_id"`
	OpenedAt         time.Time          `bson:"opened_at"`
	IP               string             `bson:"ip"`
	UserAgent        string             `bson:"user_agent"`
	TimeSpentSeconds int                `bson:"time_spent_seconds"`
	ClosedAt         *time.Time         `bson:"closed_at,omitempty"`
}

// ClickEvent is append-only, one per link activation.
type ClickEvent struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	TrackingID string             `bson:"tracking_id"`
	ClickedAt  time.Time          `bson:"clicked_at"`
	IP         string             `bson:"ip"`
	UserAgent  string             `bson:"user_agent"`
	TargetURL  string             `bson:"target_url"`
}
