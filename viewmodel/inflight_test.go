package viewmodel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/troydota/client.vote.komodohype.dev/api"
	"github.com/troydota/client.vote.komodohype.dev/session"
)

// gatedAPI answers from memory but holds every call not listed in free until the gate opens.
type gatedAPI struct {
	mtx      sync.Mutex
	polls    []api.Poll
	votes    map[string]int64
	history  []api.VoteHistoryEntry
	free     map[string]bool
	gate     chan struct{}
	started  chan string
	inFlight int
	peak     int
	casts    int
}

func newGatedAPI(polls ...api.Poll) *gatedAPI {
	return &gatedAPI{
		polls:   polls,
		votes:   map[string]int64{},
		free:    map[string]bool{},
		gate:    make(chan struct{}),
		started: make(chan string, 64),
	}
}

func (g *gatedAPI) enter(ctx context.Context, name string) error {
	g.mtx.Lock()
	if g.free[name] {
		g.mtx.Unlock()
		return nil
	}
	gate := g.gate
	g.inFlight++
	if g.inFlight > g.peak {
		g.peak = g.inFlight
	}
	g.mtx.Unlock()
	defer func() {
		g.mtx.Lock()
		g.inFlight--
		g.mtx.Unlock()
	}()

	g.started <- name
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gatedAPI) open() {
	g.mtx.Lock()
	close(g.gate)
	g.mtx.Unlock()
}

func (g *gatedAPI) rearm() {
	g.mtx.Lock()
	g.gate = make(chan struct{})
	g.mtx.Unlock()
}

func (g *gatedAPI) setPolls(polls ...api.Poll) {
	g.mtx.Lock()
	g.polls = polls
	g.mtx.Unlock()
}

// awaitStarted waits for n held calls and returns their names.
func (g *gatedAPI) awaitStarted(t *testing.T, n int) []string {
	t.Helper()
	names := []string{}
	for len(names) < n {
		select {
		case name := <-g.started:
			names = append(names, name)
		case <-time.After(5 * time.Second):
			require.FailNow(t, "calls did not start", "got %v", names)
		}
	}
	return names
}

func (g *gatedAPI) stats() (inFlight, peak, casts int) {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	return g.inFlight, g.peak, g.casts
}

func (g *gatedAPI) ListPolls(ctx context.Context) ([]api.Poll, error) {
	if err := g.enter(ctx, "ListPolls"); err != nil {
		return nil, err
	}
	g.mtx.Lock()
	defer g.mtx.Unlock()
	return append([]api.Poll{}, g.polls...), nil
}

func (g *gatedAPI) VotingHistory(ctx context.Context, _ string) ([]api.VoteHistoryEntry, error) {
	if err := g.enter(ctx, "VotingHistory"); err != nil {
		return nil, err
	}
	g.mtx.Lock()
	defer g.mtx.Unlock()
	return append([]api.VoteHistoryEntry{}, g.history...), nil
}

func (g *gatedAPI) GetPoll(ctx context.Context, _, id string) (api.Poll, error) {
	if err := g.enter(ctx, "GetPoll"); err != nil {
		return api.Poll{}, err
	}
	g.mtx.Lock()
	defer g.mtx.Unlock()
	for _, p := range g.polls {
		if p.ID == id {
			return p, nil
		}
	}
	return api.Poll{}, errors.New("no such poll")
}

func (g *gatedAPI) PollVotes(ctx context.Context, _, _ string) (map[string]int64, error) {
	if err := g.enter(ctx, "PollVotes"); err != nil {
		return nil, err
	}
	g.mtx.Lock()
	defer g.mtx.Unlock()
	out := map[string]int64{}
	for k, v := range g.votes {
		out[k] = v
	}
	return out, nil
}

func (g *gatedAPI) CastVote(ctx context.Context, _ string, vote api.CastVoteRequest) (api.Ack, error) {
	g.mtx.Lock()
	g.casts++
	g.mtx.Unlock()
	if err := g.enter(ctx, "CastVote"); err != nil {
		return api.Ack{}, err
	}
	g.mtx.Lock()
	g.votes[vote.CandidateID]++
	g.mtx.Unlock()
	return api.Ack{Message: "Vote cast successfully"}, nil
}

func TestPollList_InFlight(t *testing.T) {
	referendum := api.Poll{ID: "p3", Title: "Budget Referendum", IsActive: true}

	tests := []struct {
		name       string
		prime      bool
		run        func(*PollList, context.Context) error
		refreshing bool
		during     []string
	}{
		{"activate", false, (*PollList).Activate, false, []string{}},
		{"refresh", true, (*PollList).Refresh, true, []string{"p1"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			e.signIn(t)
			gate := newGatedAPI(election())
			vm := NewPollList(gate, e.sessions, e.alerts)

			if tc.prime {
				gate.open()
				require.NoError(t, vm.Activate(context.Background()))
				gate.awaitStarted(t, 2)
				gate.rearm()
			}
			gate.setPolls(election(), referendum)

			done := make(chan error, 1)
			go func() { done <- tc.run(vm, context.Background()) }()

			assert.ElementsMatch(t, []string{"ListPolls", "VotingHistory"}, gate.awaitStarted(t, 2))
			inFlight, _, _ := gate.stats()
			assert.Equal(t, 2, inFlight)
			assert.True(t, vm.Loading())
			assert.Equal(t, tc.refreshing, vm.Refreshing())
			assert.Equal(t, tc.during, ids(vm.Visible()))
			assert.True(t, vm.State().Loading)

			gate.open()
			require.NoError(t, <-done)

			assert.False(t, vm.Loading())
			assert.False(t, vm.Refreshing())
			assert.Equal(t, []string{"p1", "p3"}, ids(vm.Visible()))
			assert.Empty(t, e.alerts.List())
		})
	}
}

func TestPollDetail_LoadInFlight(t *testing.T) {
	e := newEnv(t)
	e.signIn(t)
	gate := newGatedAPI(countedElection())
	gate.votes = map[string]int64{"c1": 3, "c2": 1}
	gate.free["GetPoll"] = true
	vm := NewPollDetail(gate, e.sessions, e.alerts, nil, "p1")

	done := make(chan error, 1)
	go func() { done <- vm.Load(context.Background()) }()

	assert.ElementsMatch(t, []string{"PollVotes", "VotingHistory"}, gate.awaitStarted(t, 2))
	inFlight, _, _ := gate.stats()
	assert.Equal(t, 2, inFlight)
	assert.True(t, vm.Loading())
	st := vm.State()
	assert.Equal(t, PhaseLoading, st.Phase)
	assert.True(t, st.Loading)
	assert.Empty(t, st.Poll.Candidates)

	gate.open()
	require.NoError(t, <-done)

	st = vm.State()
	assert.False(t, st.Loading)
	assert.Equal(t, PhaseLoaded, st.Phase)
	assert.Equal(t, map[string]int64{"c1": 3, "c2": 1, "c3": 0}, votesOf(st.Poll.Candidates))
}

func TestPollDetail_SecondVoteWhileCasting(t *testing.T) {
	e := newEnv(t)
	e.signIn(t)
	gate := newGatedAPI(countedElection())
	gate.open()
	vm := NewPollDetail(gate, e.sessions, e.alerts, nil, "p1")
	ctx := context.Background()

	require.NoError(t, vm.Load(ctx))
	gate.awaitStarted(t, 3)
	gate.rearm()

	done := make(chan error, 1)
	go func() { done <- vm.Vote(ctx, "c1") }()
	assert.Equal(t, []string{"CastVote"}, gate.awaitStarted(t, 1))
	assert.True(t, vm.Loading())

	assert.ErrorIs(t, vm.Vote(ctx, "c2"), ErrAlreadyVoted)
	_, _, casts := gate.stats()
	assert.Equal(t, 1, casts)

	gate.open()
	require.NoError(t, <-done)

	assert.Equal(t, "c1", vm.UserVote())
	assert.Equal(t, []Alert{
		{"You have already voted", "You can only vote once in this poll."},
		{"Vote Submitted", "Your vote has been successfully cast."},
	}, e.alerts.List())
	_, _, casts = gate.stats()
	assert.Equal(t, 1, casts)
}

type unreadableStore struct {
	*session.MemoryStore
}

func (unreadableStore) Get(context.Context, session.Key) (string, bool, error) {
	return "", false, errors.New("disk on fire")
}

func TestSessionReadFailure(t *testing.T) {
	authFailed := Alert{"Error", "Failed to load authentication details."}

	tests := []struct {
		name string
		run  func(context.Context, *session.Manager, Notifier, *gatedAPI) error
	}{
		{"poll list", func(ctx context.Context, m *session.Manager, n Notifier, g *gatedAPI) error {
			return NewPollList(g, m, n).Activate(ctx)
		}},
		{"poll detail load", func(ctx context.Context, m *session.Manager, n Notifier, g *gatedAPI) error {
			return NewPollDetail(g, m, n, nil, "p1").Load(ctx)
		}},
		{"poll detail vote", func(ctx context.Context, m *session.Manager, n Notifier, g *gatedAPI) error {
			return NewPollDetail(g, m, n, nil, "p1").Vote(ctx, "c1")
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gate := newGatedAPI(election())
			gate.open()
			alerts := &Alerts{}
			sessions := session.NewManager(unreadableStore{session.NewMemoryStore()})

			err := tc.run(context.Background(), sessions, alerts, gate)
			require.Error(t, err)
			assert.NotErrorIs(t, err, session.ErrMissingToken)
			assert.Equal(t, []Alert{authFailed}, alerts.List())
			_, peak, casts := gate.stats()
			assert.Zero(t, peak)
			assert.Zero(t, casts)
		})
	}
}
