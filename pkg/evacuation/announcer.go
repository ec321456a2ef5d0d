package evacuation

import (
	"context"
	"time"

	"github.com/dd0wney/echoaid/pkg/logging"
)

// Kind classifies an announcement so sinks can prioritise or filter.
type Kind string

const (
	KindAlert    Kind = "alert"
	KindRoute    Kind = "route"
	KindWarning  Kind = "warning"
	KindProgress Kind = "progress"
	KindSafe     Kind = "safe"
	KindBlockade Kind = "blockade"
)

// Announcement is one spoken or displayed message. An empty OccupantID
// addresses everyone in the building.
type Announcement struct {
	OccupantID string    `json:"occupant_id,omitempty"`
	Kind       Kind      `json:"kind"`
	Text       string    `json:"text"`
	At         time.Time `json:"at"`
}

// AnnouncementSink delivers announcements to occupants, typically through
// text-to-speech on their device.
type AnnouncementSink interface {
	Announce(ctx context.Context, a Announcement) error
}

// LogAnnouncer writes announcements to a logger.
type LogAnnouncer struct {
	logger logging.Logger
}

// NewLogAnnouncer creates a sink that logs every announcement at info level.
func NewLogAnnouncer(logger logging.Logger) *LogAnnouncer {
	return &LogAnnouncer{logger: logging.OrDefault(logger).With(logging.Component("announcer"))}
}

// Announce logs a.
func (l *LogAnnouncer) Announce(_ context.Context, a Announcement) error {
	fields := []logging.Field{logging.String("kind", string(a.Kind)), logging.String("text", a.Text)}
	if a.OccupantID != "" {
		fields = append(fields, logging.Occupant(a.OccupantID))
	}
	l.logger.Info("announcement", fields...)
	return nil
}

// NopAnnouncer discards announcements.
type NopAnnouncer struct{}

func (NopAnnouncer) Announce(context.Context, Announcement) error { return nil }
