package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/garyjia/counsel-settlement/internal/domain/event"
)

// Journal is a subscriber that writes one log line per committed change and
// keeps per-type counters since process start.
type Journal struct {
	logger Logger

	mu       sync.Mutex
	counts   map[event.Type]int64
	lastSeen time.Time
}

// JournalStats is a point-in-time copy of the journal counters
type JournalStats struct {
	Counts   map[event.Type]int64 `json:"counts"`
	LastSeen time.Time            `json:"last_seen"`
}

// NewJournal creates a journal logging through logger
func NewJournal(logger Logger) *Journal {
	return &Journal{
		logger: logger,
		counts: make(map[event.Type]int64),
	}
}

// Register subscribes the journal to every known event type
func (j *Journal) Register(d Dispatcher) {
	d.SubscribeNamed(event.TypeSessionSettled, "journal", "logs committed settlements", j.sessionSettled)
	d.SubscribeNamed(event.TypeSessionsReset, "journal", "logs bulk session resets", j.sessionsReset)
	d.SubscribeNamed(event.TypeEnrollmentsReplaced, "journal", "logs enrollment changes", j.masterDataChanged)
	d.SubscribeNamed(event.TypeCenterScheduleUpdated, "journal", "logs tariff changes", j.masterDataChanged)
}

// Stats returns a copy of the counters
func (j *Journal) Stats() JournalStats {
	j.mu.Lock()
	defer j.mu.Unlock()
	counts := make(map[event.Type]int64, len(j.counts))
	for k, v := range j.counts {
		counts[k] = v
	}
	return JournalStats{Counts: counts, LastSeen: j.lastSeen}
}

func (j *Journal) record(evt *event.Event) {
	j.mu.Lock()
	j.counts[evt.Type]++
	j.lastSeen = evt.Timestamp
	j.mu.Unlock()
}

func (j *Journal) sessionSettled(ctx context.Context, evt *event.Event) error {
	j.record(evt)
	j.logger.Info("Session settled",
		"session_id", evt.SubjectID,
		"client_id", evt.GetPayloadString("client_id"),
		"teacher_id", evt.GetPayloadString("teacher_id"),
		"mode", evt.GetPayloadString("mode"),
		"total_fee", humanize.Comma(evt.GetPayloadInt("total_fee")),
		"total_support", humanize.Comma(evt.GetPayloadInt("total_support")),
		"final_client_cost", humanize.Comma(evt.GetPayloadInt("final_client_cost")),
	)
	return nil
}

func (j *Journal) sessionsReset(ctx context.Context, evt *event.Event) error {
	j.record(evt)
	j.logger.Info("All sessions reset",
		"deleted", humanize.Comma(evt.GetPayloadInt("deleted")),
		"event_id", evt.ID,
	)
	return nil
}

func (j *Journal) masterDataChanged(ctx context.Context, evt *event.Event) error {
	j.record(evt)
	j.logger.Info("Master data changed",
		"event_type", evt.Type,
		"subject_id", evt.SubjectID,
		"event_id", evt.ID,
	)
	return nil
}
