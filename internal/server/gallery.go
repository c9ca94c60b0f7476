package server

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"time"

	"github.com/MrCodeEU/livecheck/internal/liveness"
)

// Snapshot is one evidence frame captured on a challenge completion
type Snapshot struct {
	Index     int                    `json:"index"`
	SessionID string                 `json:"session_id"`
	Challenge liveness.ChallengeType `json:"challenge"`
	Label     string                 `json:"label"`
	At        time.Time              `json:"at"`
	URL       string                 `json:"url"`

	jpeg []byte
}

// Gallery keeps the most recent evidence frames of the current session in memory
type Gallery struct {
	mu    sync.RWMutex
	limit int
	next  int
	items []Snapshot
}

// NewGallery creates a gallery bounded to limit frames
func NewGallery(limit int) *Gallery {
	if limit <= 0 {
		limit = 6
	}
	return &Gallery{limit: limit}
}

// Reset drops all frames
func (g *Gallery) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.items = nil
}

// Add encodes img and stores it, evicting the oldest frame beyond the limit
func (g *Gallery) Add(sessionID string, id liveness.ChallengeID, label string, img image.Image, at time.Time) error {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	index := g.next
	g.next++
	g.items = append(g.items, Snapshot{
		Index:     index,
		SessionID: sessionID,
		Challenge: id.Type(),
		Label:     label,
		At:        at,
		URL:       fmt.Sprintf("/api/snapshots/%d.jpg", index),
		jpeg:      buf.Bytes(),
	})
	if over := len(g.items) - g.limit; over > 0 {
		g.items = append(g.items[:0:0], g.items[over:]...)
	}
	return nil
}

// List returns metadata for the stored frames, oldest first
func (g *Gallery) List() []Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Snapshot, len(g.items))
	copy(out, g.items)
	for i := range out {
		out[i].jpeg = nil
	}
	return out
}

// JPEG returns the encoded frame with the given index
func (g *Gallery) JPEG(index int) ([]byte, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, s := range g.items {
		if s.Index == index {
			return s.jpeg, true
		}
	}
	return nil, false
}
