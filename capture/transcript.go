package capture

import (
	"sort"
	"strings"
	"sync"

	"speakup/transcriber"
)

// Transcript merges streaming segments by sequence. A later interim
// supersedes an earlier one at the same sequence; a final is never
// replaced by an interim.
type Transcript struct {
	mu   sync.Mutex
	segs map[int]transcriber.Segment
}

func NewTranscript() *Transcript {
	return &Transcript{segs: make(map[int]transcriber.Segment)}
}

// Add records seg and reports whether the projection may have changed.
func (t *Transcript) Add(seg transcriber.Segment) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.segs[seg.Sequence]; ok && cur.IsFinal && !seg.IsFinal {
		return false
	}
	t.segs[seg.Sequence] = seg
	return true
}

// Segments returns the latest segment per sequence, in sequence order.
func (t *Transcript) Segments() []transcriber.Segment {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]transcriber.Segment, 0, len(t.segs))
	for _, s := range t.segs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

func (t *Transcript) Text() string {
	return Join(t.Segments())
}

// Join concatenates non-empty segment texts with single spaces.
func Join(segs []transcriber.Segment) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if text := strings.TrimSpace(s.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
