package apiServer

import (
	"sync"
	"time"

	"github.com/suistream/suistream/pkg/uploader"
)

// Flow is the observable state of one asynchronous publish.
type Flow struct {
	ID        string    `json:"id"`
	Phase     string    `json:"phase"`
	Asset     string    `json:"asset,omitempty"`
	Attempt   int       `json:"attempt,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Done      bool      `json:"done"`
	Error     string    `json:"error,omitempty"`
	VideoID   string    `json:"videoId,omitempty"`
}

// Tracker keeps upload flows in memory. Publishes are serialized, so
// status callbacks always belong to the flow most recently begun.
type Tracker struct {
	mu      sync.RWMutex
	flows   map[string]*Flow
	current string
}

func NewTracker() *Tracker {
	return &Tracker{flows: make(map[string]*Flow)}
}

// Begin registers a queued flow. It does not receive status callbacks
// until Activate: another publish may still be running, and its
// statuses must not land on the new flow.
func (t *Tracker) Begin(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now().UTC()
	t.flows[id] = &Flow{ID: id, Phase: "queued", StartedAt: now, UpdatedAt: now}
}

// Activate makes a flow the target of status callbacks. Called by the
// publish goroutine once it holds the publish lock, so exactly one flow
// is active at a time.
func (t *Tracker) Activate(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = id
}

// OnStatus is wired into the handle's status callback.
func (t *Tracker) OnStatus(s uploader.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	flow, ok := t.flows[t.current]
	if !ok || flow.Done {
		return
	}
	flow.Phase = string(s.Phase)
	flow.Asset = s.Asset
	flow.Attempt = s.Attempt
	if s.Err != nil {
		flow.Error = s.Err.Error()
	}
	flow.UpdatedAt = time.Now().UTC()
}

// Finish marks a flow done.
func (t *Tracker) Finish(id, videoID string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	flow, ok := t.flows[id]
	if !ok {
		return
	}
	flow.Done = true
	flow.VideoID = videoID
	flow.UpdatedAt = time.Now().UTC()
	if err != nil {
		flow.Phase = string(uploader.PhaseFailed)
		flow.Error = err.Error()
	} else {
		flow.Phase = string(uploader.PhaseDone)
		flow.Error = ""
	}
}

// Get returns a snapshot of one flow.
func (t *Tracker) Get(id string) (Flow, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	flow, ok := t.flows[id]
	if !ok {
		return Flow{}, false
	}
	return *flow, true
}
