package participant

import (
	"context"
	"errors"
	"sync"
	"testing"

	"poll-service/internal/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	ConnID  string // empty for broadcasts
	Event   events.Name
	Payload any
}

type fakeGateway struct {
	mu           sync.Mutex
	sent         []sent
	disconnected []string
}

func (g *fakeGateway) Publish(event events.Name, payload any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, sent{Event: event, Payload: payload})
}

func (g *fakeGateway) PublishTo(connID string, event events.Name, payload any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, sent{ConnID: connID, Event: event, Payload: payload})
	return nil
}

func (g *fakeGateway) Disconnect(connID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.disconnected = append(g.disconnected, connID)
}

func (g *fakeGateway) broadcasts() [][]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out [][]string
	for _, s := range g.sent {
		if s.ConnID == "" && s.Event == events.ParticipantsUpdate {
			out = append(out, s.Payload.([]string))
		}
	}
	return out
}

type fakePresence struct {
	mu     sync.Mutex
	online map[string]bool
	err    error
}

func (p *fakePresence) SetParticipantOnline(ctx context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[name] = true
	return p.err
}

func (p *fakePresence) SetParticipantOffline(ctx context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.online, name)
	return p.err
}

func TestJoinAndLeave(t *testing.T) {
	gw := &fakeGateway{}
	presence := &fakePresence{online: map[string]bool{}}
	r := NewRegistry(gw, presence, nil)

	assert.Equal(t, []string{"alice"}, r.Join("c1", "alice"))
	assert.Equal(t, []string{"alice", "bob"}, r.Join("c2", "bob"))
	assert.True(t, presence.online["bob"])

	list, ok := r.Leave("c1")
	require.True(t, ok)
	assert.Equal(t, []string{"bob"}, list)
	assert.False(t, presence.online["alice"])

	_, ok = r.Leave("c1")
	assert.False(t, ok, "second leave is a no-op")

	assert.Equal(t, [][]string{{"alice"}, {"alice", "bob"}, {"bob"}}, gw.broadcasts())
}

func TestJoinWithoutNameGetsGuestName(t *testing.T) {
	r := NewRegistry(&fakeGateway{}, nil, nil)

	list := r.Join("abcdef123456", "")
	assert.Equal(t, []string{"guest_abcdef"}, list)

	name, ok := r.NameOf("abcdef123456")
	require.True(t, ok)
	assert.Equal(t, "guest_abcdef", name)
	assert.Equal(t, "guest_ab", GuestName("ab"))
}

func TestNameTakeoverSurvivesOldConnectionLeaving(t *testing.T) {
	gw := &fakeGateway{}
	r := NewRegistry(gw, nil, nil)

	r.Join("old", "alice")
	r.Join("new", "alice")
	assert.Equal(t, []string{"alice"}, r.Participants())

	list, ok := r.Leave("old")
	require.True(t, ok)
	assert.Equal(t, []string{"alice"}, list)

	list, ok = r.Leave("new")
	require.True(t, ok)
	assert.Empty(t, list)
}

func TestRejoinUnderNewNameReplacesOldName(t *testing.T) {
	r := NewRegistry(&fakeGateway{}, nil, nil)

	r.Join("c1", "alice")
	list := r.Join("c1", "alicia")
	assert.Equal(t, []string{"alicia"}, list)
}

func TestRemoveByName(t *testing.T) {
	gw := &fakeGateway{}
	r := NewRegistry(gw, nil, nil)
	r.Join("c1", "alice")
	r.Join("c2", "bob")

	list := r.RemoveByName("alice")
	assert.Equal(t, []string{"bob"}, list)

	gw.mu.Lock()
	require.Len(t, gw.sent, 4)
	notice := gw.sent[2]
	assert.Equal(t, "c1", notice.ConnID)
	assert.Equal(t, events.RemovedNotice, notice.Event)
	assert.Equal(t, map[string]string{"displayName": "alice"}, notice.Payload)
	assert.Equal(t, []string{"c1"}, gw.disconnected)
	gw.mu.Unlock()

	// the removed connection's own disconnect does not broadcast again
	_, ok := r.Leave("c1")
	assert.False(t, ok)
	assert.Len(t, gw.broadcasts(), 3)
}

func TestRemoveUnknownNameStillBroadcasts(t *testing.T) {
	gw := &fakeGateway{}
	r := NewRegistry(gw, nil, nil)
	r.Join("c1", "alice")

	list := r.RemoveByName("nobody")
	assert.Equal(t, []string{"alice"}, list)
	assert.Empty(t, gw.disconnected)
	assert.Len(t, gw.broadcasts(), 2)
}

func TestPresenceFailureIsNotFatal(t *testing.T) {
	presence := &fakePresence{online: map[string]bool{}, err: errors.New("redis down")}
	r := NewRegistry(&fakeGateway{}, presence, nil)

	assert.Equal(t, []string{"alice"}, r.Join("c1", "alice"))
}

func TestConcurrentJoins(t *testing.T) {
	gw := &fakeGateway{}
	r := NewRegistry(gw, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Join(string(rune('A'+i%26))+string(rune('a'+i/26)), "")
		}(i)
	}
	wg.Wait()

	assert.Len(t, r.Participants(), 50)
	broadcasts := gw.broadcasts()
	require.Len(t, broadcasts, 50)
	for i, list := range broadcasts {
		assert.Len(t, list, i+1)
	}
}
