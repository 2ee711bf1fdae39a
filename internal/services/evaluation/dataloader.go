package evaluation

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// csvColumns are the required columns of an exported conversation log.
var csvColumns = []string{
	"timestamp", "user_id", "session_id", "thread_id", "response_id",
	"query_text", "intent_detected", "intent_query_type",
	"final_response_message", "has_image", "error_message",
}

// timestampLayouts are tried in order; the day-first layouts cover exports
// from spreadsheet tools.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/06 15:04",
	"02-01-2006 15:04:05",
	"02/01/2006",
}

// ParseTimestamp parses ISO 8601 first, then day-first spreadsheet formats.
func ParseTimestamp(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", raw)
}

// Statistics summarizes a parsed conversation log.
type Statistics struct {
	TotalMessages      int            `json:"total_messages"`
	TotalThreads       int            `json:"total_threads"`
	TotalUsers         int            `json:"total_users"`
	IntentDistribution map[string]int `json:"intent_distribution"`
	MessagesWithImages int            `json:"messages_with_images"`
	MessagesWithErrors int            `json:"messages_with_errors"`
	DateRange          *DateRange     `json:"date_range,omitempty"`
}

// DateRange is the observed timestamp span.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// DataLoader parses CSV-exported chat logs into threads of ordered messages.
type DataLoader struct {
	messages []ChatMessage
}

// NewDataLoader parses csvContent into messages.
func NewDataLoader(csvContent string) (*DataLoader, error) {
	reader := csv.NewReader(strings.NewReader(csvContent))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("CSV has no header row")
	}

	header := map[string]int{}
	for i, name := range records[0] {
		header[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, required := range csvColumns {
		if _, ok := header[required]; !ok {
			return nil, fmt.Errorf("CSV missing required column %q", required)
		}
	}

	field := func(row []string, name string) string {
		idx := header[name]
		if idx >= len(row) {
			return ""
		}
		return row[idx]
	}

	messages := make([]ChatMessage, 0, len(records)-1)
	for rowNum, row := range records[1:] {
		ts, err := ParseTimestamp(field(row, "timestamp"))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", rowNum+2, err)
		}
		hasImage := false
		switch strings.TrimSpace(strings.ToLower(field(row, "has_image"))) {
		case "1", "true", "yes":
			hasImage = true
		}
		messages = append(messages, ChatMessage{
			Timestamp:            ts,
			UserID:               field(row, "user_id"),
			SessionID:            field(row, "session_id"),
			ThreadID:             field(row, "thread_id"),
			ResponseID:           field(row, "response_id"),
			QueryText:            field(row, "query_text"),
			IntentDetected:       field(row, "intent_detected"),
			IntentQueryType:      field(row, "intent_query_type"),
			FinalResponseMessage: field(row, "final_response_message"),
			HasImage:             hasImage,
			ErrorMessage:         strings.TrimSpace(field(row, "error_message")),
		})
	}

	return &DataLoader{messages: messages}, nil
}

// Messages returns all parsed messages.
func (d *DataLoader) Messages() []ChatMessage {
	return d.messages
}

// GetThread groups messages for a thread id into a sorted thread, or nil
// when the id is unknown.
func (d *DataLoader) GetThread(threadID string) *ConversationThread {
	var threadMessages []ChatMessage
	for _, m := range d.messages {
		if m.ThreadID == threadID {
			threadMessages = append(threadMessages, m)
		}
	}
	if len(threadMessages) == 0 {
		return nil
	}

	sort.SliceStable(threadMessages, func(i, j int) bool {
		return threadMessages[i].Timestamp.Before(threadMessages[j].Timestamp)
	})

	hasErrors := false
	for _, m := range threadMessages {
		if m.ErrorMessage != "" {
			hasErrors = true
			break
		}
	}

	start := threadMessages[0].Timestamp
	end := threadMessages[len(threadMessages)-1].Timestamp

	return &ConversationThread{
		ThreadID:        threadID,
		UserID:          threadMessages[0].UserID,
		Messages:        threadMessages,
		StartTime:       start,
		EndTime:         end,
		DurationSeconds: end.Sub(start).Seconds(),
		MessageCount:    len(threadMessages),
		HasErrors:       hasErrors,
	}
}

// GetAllThreadIDs returns distinct thread ids.
func (d *DataLoader) GetAllThreadIDs() []string {
	seen := map[string]bool{}
	var ids []string
	for _, m := range d.messages {
		if !seen[m.ThreadID] {
			seen[m.ThreadID] = true
			ids = append(ids, m.ThreadID)
		}
	}
	return ids
}

// GetStatistics computes summary counts across the log.
func (d *DataLoader) GetStatistics() Statistics {
	stats := Statistics{
		TotalMessages:      len(d.messages),
		IntentDistribution: map[string]int{},
	}

	threads := map[string]bool{}
	users := map[string]bool{}
	var minTS, maxTS time.Time

	for i, m := range d.messages {
		threads[m.ThreadID] = true
		users[m.UserID] = true
		stats.IntentDistribution[m.IntentDetected]++
		if m.HasImage {
			stats.MessagesWithImages++
		}
		if m.ErrorMessage != "" {
			stats.MessagesWithErrors++
		}
		if i == 0 || m.Timestamp.Before(minTS) {
			minTS = m.Timestamp
		}
		if i == 0 || m.Timestamp.After(maxTS) {
			maxTS = m.Timestamp
		}
	}

	stats.TotalThreads = len(threads)
	stats.TotalUsers = len(users)
	if len(d.messages) > 0 {
		stats.DateRange = &DateRange{
			Start: minTS.Format(time.RFC3339),
			End:   maxTS.Format(time.RFC3339),
		}
	}
	return stats
}

// PreviewResult is the parsed-CSV preview payload.
type PreviewResult struct {
	Statistics
	ThreadIDs []string `json:"thread_ids"`
}

// PreviewCache memoizes CSV previews by content hash so re-uploading the
// same export does not reparse it.
type PreviewCache struct {
	cache *lru.Cache[string, *PreviewResult]
}

// NewPreviewCache creates a cache holding up to size previews.
func NewPreviewCache(size int) (*PreviewCache, error) {
	cache, err := lru.New[string, *PreviewResult](size)
	if err != nil {
		return nil, err
	}
	return &PreviewCache{cache: cache}, nil
}

// Preview parses (or recalls) statistics for csvContent.
func (p *PreviewCache) Preview(csvContent string) (*PreviewResult, error) {
	sum := sha256.Sum256([]byte(csvContent))
	key := hex.EncodeToString(sum[:])

	if cached, ok := p.cache.Get(key); ok {
		return cached, nil
	}

	loader, err := NewDataLoader(csvContent)
	if err != nil {
		return nil, err
	}

	ids := loader.GetAllThreadIDs()
	sort.Strings(ids)

	result := &PreviewResult{
		Statistics: loader.GetStatistics(),
		ThreadIDs:  ids,
	}
	p.cache.Add(key, result)
	return result, nil
}

// ContentHash returns the short content hash used for deduplication.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:12]
}
