package intent

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"aura/internal/metrics"
)

// activeSkill is one converse-eligible skill with its recency timestamp.
type activeSkill struct {
	id            string
	lastActivated time.Time
}

// ActiveSkillEntry is the read-only view of a registry entry.
type ActiveSkillEntry struct {
	SkillID       string
	LastActivated time.Time
}

// ActiveSkillRegistry tracks which skills may claim a fresh utterance before
// structured matching runs. Entries are ordered most-recently-activated
// first and unique by skill id. All mutation happens under one mutex; it is
// shared across every concurrently resolving utterance.
type ActiveSkillRegistry struct {
	mu      sync.Mutex
	entries []activeSkill
	log     *zap.Logger

	// now is swappable for expiry tests.
	now func() time.Time
}

// NewActiveSkillRegistry creates an empty registry.
func NewActiveSkillRegistry(log *zap.Logger) *ActiveSkillRegistry {
	if log == nil {
		log = zap.NewNop()
	}
	return &ActiveSkillRegistry{log: log, now: time.Now}
}

// Activate inserts skillID at the front, removing any prior entry so the id
// stays unique. An empty id is refused with a warning.
func (r *ActiveSkillRegistry) Activate(skillID string) {
	if skillID == "" {
		r.log.Warn("refusing to activate empty skill id")
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(skillID)
	r.entries = append([]activeSkill{{id: skillID, lastActivated: r.now()}}, r.entries...)
	metrics.ActiveSkills.Set(float64(len(r.entries)))
}

// Deactivate removes skillID if present. Idempotent.
func (r *ActiveSkillRegistry) Deactivate(skillID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(skillID)
	metrics.ActiveSkills.Set(float64(len(r.entries)))
}

// PruneExpired drops entries older than timeout. Called lazily at the start
// of every converse attempt, never from a background timer.
func (r *ActiveSkillRegistry) PruneExpired(timeout time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.entries[:0]
	for _, e := range r.entries {
		if r.now().Sub(e.lastActivated) <= timeout {
			kept = append(kept, e)
		}
	}
	r.entries = kept
	metrics.ActiveSkills.Set(float64(len(r.entries)))
}

// Snapshot returns the entries most-recently-activated first. The returned
// slice is a copy; iteration never races with mutation.
func (r *ActiveSkillRegistry) Snapshot() []ActiveSkillEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ActiveSkillEntry, len(r.entries))
	for i, e := range r.entries {
		out[i] = ActiveSkillEntry{SkillID: e.id, LastActivated: e.lastActivated}
	}
	return out
}

func (r *ActiveSkillRegistry) removeLocked(skillID string) {
	for i, e := range r.entries {
		if e.id == skillID {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
}
