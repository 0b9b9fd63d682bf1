package cache

import (
	"context"
	"time"

	"github.com/ShedrackAmodu/school-comm-service/internal/domain"
)

// HistoryResult is the cached payload for a room history page. Messages
// carry their full read-by sets; per-viewer read flags are derived by
// the caller so one entry serves every member of the room.
type HistoryResult struct {
	Messages []domain.ChatMessage `json:"messages"`
}

type HistoryCache interface {
	Get(ctx context.Context, key string) (*HistoryResult, error)
	Set(ctx context.Context, key string, result *HistoryResult, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	BuildKey(roomID string, limit int) string
	Close() error
}
