// Package audit records every prompt/response exchange of a run in an
// append-only conversation log.
package audit

import (
	"sync"
	"time"

	"github.com/quorasec/conclave/pkg/schema"
)

// Recorder collects ConversationRecords for one run. Safe for concurrent
// use; generator and challenger fan-outs record from multiple goroutines.
type Recorder struct {
	mu      sync.Mutex
	records []schema.ConversationRecord
	now     func() time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// Record appends one exchange. Extra carries stage-specific annotations
// such as fallback markers or parse failures.
func (r *Recorder) Record(stage, role, modelLabel string, revision int, prompt, response string, extra map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, schema.ConversationRecord{
		Timestamp:  r.now(),
		Stage:      stage,
		Role:       role,
		ModelLabel: modelLabel,
		Revision:   revision,
		Prompt:     prompt,
		Response:   response,
		Extra:      extra,
	})
}

// Records returns a snapshot of the log in insertion order.
func (r *Recorder) Records() []schema.ConversationRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]schema.ConversationRecord, len(r.records))
	copy(out, r.records)
	return out
}

// Len reports how many exchanges have been recorded.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}
