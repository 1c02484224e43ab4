package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/logwatcher/internal/core/domain"
)

// StreamSink appends every delivered log to a Redis stream.
type StreamSink struct {
	client *Client
	key    string
	maxLen int64
}

// NewStreamSink creates a sink writing to the stream called name.
// maxLen > 0 trims the stream approximately to that length.
func NewStreamSink(client *Client, name string, maxLen int64) *StreamSink {
	return &StreamSink{
		client: client,
		key:    client.streamKey(name),
		maxLen: maxLen,
	}
}

// OnLogsReceived writes logs in one pipeline. Entries carry the window bounds
// and the JSON encoded log.
func (s *StreamSink) OnLogsReceived(
	ctx context.Context,
	logs []domain.TransactionLog,
	startTimestamp, endTimestamp int64,
) error {
	if len(logs) == 0 {
		return nil
	}

	pipe := s.client.rdb.Pipeline()
	for _, l := range logs {
		data, err := json.Marshal(l)
		if err != nil {
			return fmt.Errorf("failed to marshal log: %w", err)
		}

		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: s.key,
			MaxLen: s.maxLen,
			Approx: s.maxLen > 0,
			Values: map[string]any{
				"address":      l.Address,
				"timestamp":    l.Timestamp,
				"window_start": startTimestamp,
				"window_end":   endTimestamp,
				"log":          data,
			},
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("xadd failed: %w", err)
	}
	return nil
}
