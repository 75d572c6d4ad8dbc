package intent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aura/internal/bus"
)

func snapshotIDs(r *ActiveSkillRegistry) []string {
	entries := r.Snapshot()
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.SkillID
	}
	return ids
}

func TestActiveSkillRegistryOrdering(t *testing.T) {
	r := NewActiveSkillRegistry(nil)

	r.Activate("x")
	r.Activate("y")
	assert.Equal(t, []string{"y", "x"}, snapshotIDs(r))

	// Re-activating moves to the front without duplicating.
	r.Activate("x")
	assert.Equal(t, []string{"x", "y"}, snapshotIDs(r))

	r.Activate("")
	assert.Equal(t, []string{"x", "y"}, snapshotIDs(r))

	r.Deactivate("y")
	assert.Equal(t, []string{"x"}, snapshotIDs(r))
	r.Deactivate("y")
	assert.Equal(t, []string{"x"}, snapshotIDs(r))
}

func TestActiveSkillRegistryPruneExpired(t *testing.T) {
	r := NewActiveSkillRegistry(nil)
	now := time.Now()
	r.now = func() time.Time { return now }

	r.Activate("old")
	now = now.Add(9 * time.Minute)
	r.Activate("fresh")
	now = now.Add(2 * time.Minute)

	r.PruneExpired(10 * time.Minute)
	assert.Equal(t, []string{"fresh"}, snapshotIDs(r))

	now = now.Add(20 * time.Minute)
	r.PruneExpired(10 * time.Minute)
	assert.Empty(t, snapshotIDs(r))
}

func TestConverseSkipsExpiredSkill(t *testing.T) {
	f := newFixture(nil)
	defer f.svc.Close()
	f.declineFallbacks()

	now := time.Now()
	f.svc.Registry().now = func() time.Time { return now }
	f.svc.Registry().Activate("stale-skill")
	now = now.Add(11 * time.Minute)

	// Read-only queries still show the entry until the converse path runs.
	activeReplies := record(f.bus, TopicActiveSkillsReply)
	require.NoError(t, f.bus.Publish(bus.NewMessage(TopicGetActiveSkills, nil)))
	require.Equal(t, 1, activeReplies.count())
	assert.Len(t, asAnySlice(activeReplies.last().Data["skills"]), 1)

	converseReqs := record(f.bus, TopicConverseRequest)
	require.NoError(t, f.bus.Publish(utteranceEvent("hello", "")))

	// The expired skill was never consulted, and the prune removed it.
	assert.Equal(t, 0, converseReqs.count())
	assert.Empty(t, snapshotIDs(f.svc.Registry()))
}

func TestConverseTriesSkillsMostRecentFirst(t *testing.T) {
	f := newFixture(nil)
	defer f.svc.Close()
	f.declineFallbacks()
	f.svc.Registry().Activate("first-skill")
	f.svc.Registry().Activate("second-skill")

	var asked []string
	f.bus.Subscribe(TopicConverseRequest, func(msg *bus.Message) {
		id, _ := msg.Data["skill_id"].(string)
		asked = append(asked, id)
		_ = f.bus.Publish(msg.Reply(TopicConverseResponse,
			map[string]any{"result": id == "first-skill"}))
	})

	require.NoError(t, f.bus.Publish(utteranceEvent("go on", "")))

	assert.Equal(t, []string{"second-skill", "first-skill"}, asked)
	// Claiming moved first-skill ahead of the declining skill.
	assert.Equal(t, []string{"first-skill", "second-skill"},
		snapshotIDs(f.svc.Registry()))
}

func TestConverseEvictsUnknownSkill(t *testing.T) {
	f := newFixture(nil)
	defer f.svc.Close()
	f.declineFallbacks()
	f.svc.Registry().Activate("ghost-skill")

	f.bus.Subscribe(TopicConverseRequest, func(msg *bus.Message) {
		_ = f.bus.Publish(msg.Reply(TopicConverseResponse,
			map[string]any{"error": "skill id does not exist"}))
	})

	require.NoError(t, f.bus.Publish(utteranceEvent("hello", "")))
	assert.Empty(t, snapshotIDs(f.svc.Registry()))
}

func TestConverseOtherErrorKeepsSkill(t *testing.T) {
	f := newFixture(nil)
	defer f.svc.Close()
	f.declineFallbacks()
	f.svc.Registry().Activate("flaky-skill")

	f.bus.Subscribe(TopicConverseRequest, func(msg *bus.Message) {
		_ = f.bus.Publish(msg.Reply(TopicConverseResponse,
			map[string]any{"error": "exception in converse method"}))
	})

	require.NoError(t, f.bus.Publish(utteranceEvent("hello", "")))
	assert.Equal(t, []string{"flaky-skill"}, snapshotIDs(f.svc.Registry()))
}

func TestConverseTimeoutIsDecline(t *testing.T) {
	f := newFixture(nil)
	defer f.svc.Close()
	f.declineFallbacks()
	f.svc.Registry().Activate("silent-skill")

	// No converse responder at all: the round trip times out and the chain
	// moves on instead of hanging.
	failures := record(f.bus, TopicIntentFailure)
	require.NoError(t, f.bus.Publish(utteranceEvent("hello", "")))

	assert.Equal(t, 1, failures.count())
	assert.Equal(t, []string{"silent-skill"}, snapshotIDs(f.svc.Registry()))
}

func TestRecognitionFailedNotifiesActiveSkills(t *testing.T) {
	f := newFixture(nil)
	defer f.svc.Close()
	f.svc.Registry().Activate("chat-skill")
	f.svc.Registry().Activate("game-skill")

	converseReqs := record(f.bus, TopicConverseRequest)
	f.bus.Subscribe(TopicConverseRequest, func(msg *bus.Message) {
		_ = f.bus.Publish(msg.Reply(TopicConverseResponse, map[string]any{"result": false}))
	})

	require.NoError(t, f.bus.Publish(bus.NewMessage(TopicRecognitionFailed, nil)))

	require.Equal(t, 2, converseReqs.count())
	// A recognition failure carries no utterances.
	assert.Empty(t, asAnySlice(converseReqs.last().Data["utterances"]))
}
