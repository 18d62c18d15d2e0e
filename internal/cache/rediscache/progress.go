package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Progress entry statuses for an in-flight check run.
const (
	ProgressChecking  = "checking"
	ProgressCompleted = "completed"
	ProgressError     = "error"
)

type ProgressEntry struct {
	Status    string    `json:"status"`
	Result    string    `json:"result,omitempty"`
	EtaFound  string    `json:"eta_found,omitempty"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// ProgressFeed публикует ход проверки под correlation id.
// Одна запись на shipment (перезаписывается), весь hash живёт retention —
// брошенный прогон не оставит мусора в redis.
type ProgressFeed struct {
	c         *redis.Client
	retention time.Duration
}

func NewProgressFeed(addr string, retention time.Duration) *ProgressFeed {
	if retention <= 0 {
		retention = 6 * time.Hour
	}
	return &ProgressFeed{
		c:         redis.NewClient(&redis.Options{Addr: addr}),
		retention: retention,
	}
}

func progressKey(runID string) string {
	return fmt.Sprintf("progress:%s", runID)
}

func (f *ProgressFeed) Publish(ctx context.Context, runID string, shipmentID uint64, e ProgressEntry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshal progress entry")
	}
	key := progressKey(runID)
	pipe := f.c.TxPipeline()
	pipe.HSet(ctx, key, fmt.Sprintf("%d", shipmentID), b)
	pipe.Expire(ctx, key, f.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "redis progress publish")
	}
	return nil
}

func (f *ProgressFeed) Poll(ctx context.Context, runID string) (map[string]ProgressEntry, error) {
	raw, err := f.c.HGetAll(ctx, progressKey(runID)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis progress poll")
	}
	out := make(map[string]ProgressEntry, len(raw))
	for field, v := range raw {
		var e ProgressEntry
		if json.Unmarshal([]byte(v), &e) != nil {
			continue
		}
		out[field] = e
	}
	return out, nil
}

// Clear удаляет фид завершённого прогона, не дожидаясь retention.
func (f *ProgressFeed) Clear(ctx context.Context, runID string) error {
	if err := f.c.Del(ctx, progressKey(runID)).Err(); err != nil {
		return errors.Wrap(err, "redis progress clear")
	}
	return nil
}
