package memory

import (
	"strconv"
	"strings"
	"time"

	contractx "github.com/tanpawarit/claims-orchestrator/agent/contract"
)

const (
	metaThreadID              = "thread_id"
	metaConversationTimestamp = "conversation_timestamp"
	metaProcessedTimestamp    = "processed_timestamp"
	metaMessageCount          = "message_count"
	metaContentLength         = "content_length"
)

// FormatMessages renders a transcript as "[ts] ROLE: text" lines, oldest first.
// Messages without text are dropped.
func FormatMessages(msgs []contractx.Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		text := strings.TrimSpace(m.Content)
		if text == "" {
			continue
		}
		role := strings.ToUpper(strings.TrimSpace(string(m.Role)))
		if role == "" {
			role = "UNKNOWN"
		}
		line := role + ": " + text
		if !m.CreatedAt.IsZero() {
			line = "[" + m.CreatedAt.UTC().Format(time.RFC3339) + "] " + line
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, "\n")
}

// EarliestTimestamp returns the creation time of the oldest message.
func EarliestTimestamp(msgs []contractx.Message) time.Time {
	var earliest time.Time
	for _, m := range msgs {
		if m.CreatedAt.IsZero() {
			continue
		}
		if earliest.IsZero() || m.CreatedAt.Before(earliest) {
			earliest = m.CreatedAt
		}
	}
	return earliest.UTC()
}

func toMetadata(rec contractx.MemoryRecord) map[string]string {
	return map[string]string{
		metaThreadID:              rec.ID,
		metaConversationTimestamp: rec.ConversationTimestamp.UTC().Format(time.RFC3339Nano),
		metaProcessedTimestamp:    rec.ProcessedTimestamp.UTC().Format(time.RFC3339Nano),
		metaMessageCount:          strconv.Itoa(rec.MessageCount),
		metaContentLength:         strconv.Itoa(rec.ContentLength),
	}
}

func fromMetadata(id, content string, meta map[string]string) contractx.MemoryRecord {
	rec := contractx.MemoryRecord{ID: id, Content: content}
	if v := meta[metaThreadID]; v != "" {
		rec.ID = v
	}
	rec.ConversationTimestamp, _ = time.Parse(time.RFC3339Nano, meta[metaConversationTimestamp])
	rec.ProcessedTimestamp, _ = time.Parse(time.RFC3339Nano, meta[metaProcessedTimestamp])
	rec.MessageCount, _ = strconv.Atoi(meta[metaMessageCount])
	rec.ContentLength, _ = strconv.Atoi(meta[metaContentLength])
	return rec
}
