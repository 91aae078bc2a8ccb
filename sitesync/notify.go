package sitesync

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Event types published by notifiers.
const (
	EventNewFAQs   = "new_faqs"
	EventConflicts = "conflicts"
)

// Event describes a committed run a company asked to hear about.
type Event struct {
	Type      string   `json:"type"`
	CompanyID string   `json:"company_id"`
	JobID     string   `json:"job_id"`
	Count     int      `json:"count"`
	IDs       []string `json:"ids"`
	At        int64    `json:"at"`
}

func newFAQsEvent(job *Job, entries []*Entry) Event {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return Event{Type: EventNewFAQs, CompanyID: job.CompanyID, JobID: job.ID, Count: len(ids), IDs: ids, At: time.Now().UnixMilli()}
}

func conflictsEvent(job *Job, conflicts []*Conflict) Event {
	ids := make([]string, len(conflicts))
	for i, c := range conflicts {
		ids[i] = c.ID
	}
	return Event{Type: EventConflicts, CompanyID: job.CompanyID, JobID: job.ID, Count: len(ids), IDs: ids, At: time.Now().UnixMilli()}
}

// LogNotifier writes events to the log. Delivery to people is left to
// whatever consumes the log.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NewFAQs(ctx context.Context, job *Job, entries []*Entry) {
	n.log(newFAQsEvent(job, entries))
}

func (n *LogNotifier) Conflicts(ctx context.Context, job *Job, conflicts []*Conflict) {
	n.log(conflictsEvent(job, conflicts))
}

func (n *LogNotifier) log(ev Event) {
	n.logger.Info("notify: "+ev.Type, "company_id", ev.CompanyID, "job_id", ev.JobID, "count", ev.Count)
}

// RedisNotifier publishes events as JSON on a Redis pub/sub channel.
type RedisNotifier struct {
	rdb     goredis.UniversalClient
	channel string
	logger  *slog.Logger
}

// NewRedisNotifier returns a RedisNotifier publishing on channel.
func NewRedisNotifier(rdb goredis.UniversalClient, channel string, logger *slog.Logger) *RedisNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisNotifier{rdb: rdb, channel: channel, logger: logger}
}

func (n *RedisNotifier) NewFAQs(ctx context.Context, job *Job, entries []*Entry) {
	n.publish(ctx, newFAQsEvent(job, entries))
}

func (n *RedisNotifier) Conflicts(ctx context.Context, job *Job, conflicts []*Conflict) {
	n.publish(ctx, conflictsEvent(job, conflicts))
}

func (n *RedisNotifier) publish(ctx context.Context, ev Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		n.logger.Error("notify: marshal event", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := n.rdb.Publish(ctx, n.channel, raw).Err(); err != nil {
		n.logger.Warn("notify: redis publish", "channel", n.channel, "company_id", ev.CompanyID, "error", err)
	}
}
