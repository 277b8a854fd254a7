package queue

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the task payload schema.
	SchemaVersionV1 = 1

	// TaskExtractInteraction classifies one user/agent exchange and writes
	// it to long-term memory when it qualifies.
	TaskExtractInteraction = "memory.extract_interaction"

	// TaskFinalizeEpisode summarizes a closed episode into episodic memory.
	TaskFinalizeEpisode = "episode.finalize"

	// TaskSummarizeConversation advances a conversation's summary bookmark.
	TaskSummarizeConversation = "conversation.summarize"

	// TaskIngestResource chunks and indexes a learner resource.
	TaskIngestResource = "resource.ingest"
)

// Task is the transport-neutral envelope carried by every backend.
type Task struct {
	SchemaVersion int            `json:"schema_version"`
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Kwargs        map[string]any `json:"kwargs"`
	EnqueuedAt    time.Time      `json:"enqueued_at"`
}

// NewTask builds a task envelope with a fresh id.
func NewTask(name string, kwargs map[string]any) (*Task, error) {
	if name == "" {
		return nil, ErrEmptyTaskName
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	return &Task{
		SchemaVersion: SchemaVersionV1,
		ID:            uuid.NewString(),
		Name:          name,
		Kwargs:        kwargs,
		EnqueuedAt:    time.Now().UTC(),
	}, nil
}

func (t *Task) Marshal() ([]byte, error) {
	return json.Marshal(t)
}

// UnmarshalTask decodes an envelope and validates it.
func UnmarshalTask(data []byte) (*Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decoding task: %w", err)
	}
	if t.Name == "" {
		return nil, ErrEmptyTaskName
	}
	if t.SchemaVersion != SchemaVersionV1 {
		return nil, fmt.Errorf("unsupported task schema version %d", t.SchemaVersion)
	}
	if t.Kwargs == nil {
		t.Kwargs = map[string]any{}
	}
	return &t, nil
}

// String returns kwargs[key] as a string, or "" when absent.
func (t *Task) String(key string) string {
	switch v := t.Kwargs[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int64 returns kwargs[key] as an int64. Values that crossed a JSON
// transport arrive as float64 and are converted back.
func (t *Task) Int64(key string) (int64, bool) {
	switch v := t.Kwargs[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
