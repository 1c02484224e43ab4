package processor

import (
	"context"
	"errors"

	"github.com/vietddude/logwatcher/internal/core/cursor"
	"github.com/vietddude/logwatcher/internal/core/domain"
)

var (
	// ErrMissingElasticURL is returned when Options has no backend URL.
	ErrMissingElasticURL = errors.New("elastic url is required")

	// ErrInvalidLookBehind is returned for a negative look-behind cap.
	ErrInvalidLookBehind = errors.New("max look-behind must not be negative")
)

// DefaultLockKey names the guard shared by all cycles of one processor.
const DefaultLockKey = "newLogs"

// LogTopic is the severity of a diagnostic message.
type LogTopic string

const (
	TopicDebug LogTopic = "Debug"
	TopicError LogTopic = "Error"
)

// LogsReceivedFunc consumes the logs of one window. Errors are returned from
// Run but do not roll the cursor back.
type LogsReceivedFunc func(ctx context.Context, logs []domain.TransactionLog, startTimestamp, endTimestamp int64) error

// MessageLoggedFunc receives diagnostics.
type MessageLoggedFunc func(topic LogTopic, message string)

// Options configures a Processor. All callbacks are optional.
type Options struct {
	ElasticURL string

	// MaxLookBehindInSeconds caps how far behind now a window may start.
	// Zero disables the cap.
	MaxLookBehindInSeconds int64

	// LockKey names the re-entrancy guard. Defaults to DefaultLockKey.
	LockKey string

	OnLogsReceived            LogsReceivedFunc
	GetLastProcessedTimestamp cursor.GetFunc
	SetLastProcessedTimestamp cursor.SetFunc
	OnMessageLogged           MessageLoggedFunc
}

// Validate checks required fields.
func (o Options) Validate() error {
	if o.ElasticURL == "" {
		return ErrMissingElasticURL
	}
	if o.MaxLookBehindInSeconds < 0 {
		return ErrInvalidLookBehind
	}
	return nil
}
