package viewmodel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/troydota/client.vote.komodohype.dev/api"
	"github.com/troydota/client.vote.komodohype.dev/session"
)

var (
	ErrAlreadyVoted = errors.New("already voted in this poll")
	ErrPollClosed   = errors.New("poll is no longer active")
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseLoaded
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseLoading:
		return "LOADING"
	case PhaseLoaded:
		return "LOADED"
	case PhaseError:
		return "ERROR"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

type DetailAPI interface {
	GetPoll(ctx context.Context, token, id string) (api.Poll, error)
	PollVotes(ctx context.Context, token, id string) (map[string]int64, error)
	VotingHistory(ctx context.Context, token string) ([]api.VoteHistoryEntry, error)
	CastVote(ctx context.Context, token string, vote api.CastVoteRequest) (api.Ack, error)
}

type PollDetailState struct {
	Phase Phase
	// Poll carries the candidates with merged vote counts once loaded.
	Poll     api.Poll
	UserVote string
	Loading  bool
	Err      error
}

// PollDetail is the screen of a single poll and the place votes are cast from.
type PollDetail struct {
	api      DetailAPI
	sessions *session.Manager
	notify   Notifier
	nav      Navigator
	log      *log.Entry
	id       string

	mtx        sync.Mutex
	phase      Phase
	poll       api.Poll
	userVote   string
	optimistic bool
	voting     bool
	pending    int
	err        error
}

// NewPollDetail builds the view-model of poll id. nav may be nil.
func NewPollDetail(c DetailAPI, sessions *session.Manager, notify Notifier, nav Navigator, id string) *PollDetail {
	if nav == nil {
		nav = noNavigator{}
	}
	return &PollDetail{
		api:      c,
		sessions: sessions,
		notify:   notify,
		nav:      nav,
		log:      log.WithFields(log.Fields{"component": "poll", "category": id}),
		id:       id,
	}
}

func (vm *PollDetail) begin() {
	vm.mtx.Lock()
	vm.pending++
	vm.mtx.Unlock()
}

func (vm *PollDetail) end() {
	vm.mtx.Lock()
	vm.pending--
	vm.mtx.Unlock()
}

func (vm *PollDetail) setPhase(p Phase, err error) {
	vm.mtx.Lock()
	vm.phase = p
	vm.err = err
	vm.mtx.Unlock()
}

func (vm *PollDetail) session(ctx context.Context) (session.Session, error) {
	s, err := vm.sessions.Current(ctx)
	if err != nil {
		if errors.Is(err, session.ErrMissingToken) {
			vm.notify.Alert(Alert{"Error", "Access token is missing. Please sign in again."})
		} else {
			vm.log.Errorf("session, err=%v", err)
			vm.notify.Alert(Alert{"Error", "Failed to load authentication details."})
		}
	}
	return s, err
}

// Load fetches the poll, then its vote counts and the user's voting history.
// An inactive poll is not shown: the user is sent back with a notice and ErrPollClosed.
func (vm *PollDetail) Load(ctx context.Context) error {
	vm.begin()
	defer vm.end()
	vm.setPhase(PhaseLoading, nil)

	s, err := vm.session(ctx)
	if err != nil {
		vm.setPhase(PhaseError, err)
		return err
	}

	poll, err := vm.api.GetPoll(ctx, s.Token, vm.id)
	if err != nil {
		return vm.loadFailed(ctx, err)
	}

	if !poll.IsActive {
		vm.notify.Alert(Alert{"Poll Closed", "This poll is no longer active."})
		vm.setPhase(PhaseIdle, nil)
		vm.nav.Back()
		return ErrPollClosed
	}

	var (
		wg         sync.WaitGroup
		votes      map[string]int64
		history    []api.VoteHistoryEntry
		votesErr   error
		historyErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		votes, votesErr = vm.api.PollVotes(ctx, s.Token, vm.id)
	}()
	go func() {
		defer wg.Done()
		history, historyErr = vm.api.VotingHistory(ctx, s.Token)
	}()
	wg.Wait()

	if err = errors.Join(votesErr, historyErr); err != nil {
		return vm.loadFailed(ctx, err)
	}

	var recorded string
	for _, h := range history {
		if h.PollID == vm.id {
			recorded = h.CandidateID
			break
		}
	}

	vm.mtx.Lock()
	defer vm.mtx.Unlock()
	vm.poll = api.MergeVotes(poll, votes)
	switch {
	case recorded != "":
		vm.userVote = recorded
		vm.optimistic = false
	case !vm.optimistic:
		vm.userVote = ""
	}
	vm.phase = PhaseLoaded
	vm.err = nil
	return nil
}

func (vm *PollDetail) loadFailed(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		vm.setPhase(PhaseIdle, nil)
		return ctx.Err()
	}
	vm.log.Errorf("poll, err=%v", err)
	vm.notify.Alert(Alert{"Error", "Failed to fetch poll data. Please try again."})
	vm.setPhase(PhaseError, err)
	return err
}

// Vote casts the user's vote for candidateID and reloads the poll.
// A vote already on record, or one still in flight, stops it before any request is made; the
// server still has the final word on duplicates.
func (vm *PollDetail) Vote(ctx context.Context, candidateID string) error {
	vm.mtx.Lock()
	if vm.userVote != "" || vm.voting {
		vm.mtx.Unlock()
		vm.notify.Alert(Alert{"You have already voted", "You can only vote once in this poll."})
		return ErrAlreadyVoted
	}
	vm.voting = true
	vm.pending++
	vm.mtx.Unlock()

	err := vm.cast(ctx, candidateID)

	vm.mtx.Lock()
	vm.voting = false
	vm.pending--
	vm.mtx.Unlock()
	if err != nil {
		return err
	}

	vm.notify.Alert(Alert{"Vote Submitted", "Your vote has been successfully cast."})
	if err = vm.Load(ctx); err != nil {
		return fmt.Errorf("reload after vote: %w", err)
	}
	return nil
}

// cast sends the vote and records it optimistically on success.
func (vm *PollDetail) cast(ctx context.Context, candidateID string) error {
	s, err := vm.session(ctx)
	if err != nil {
		return err
	}

	_, err = vm.api.CastVote(ctx, s.Token, api.CastVoteRequest{PollID: vm.id, CandidateID: candidateID})
	if err != nil {
		vm.log.Errorf("vote, err=%v", err)
		msg := api.ServerMessage(err)
		if msg == "" {
			msg = "Unable to cast vote. Please try again."
		}
		vm.notify.Alert(Alert{"Vote Failed", msg})
		return err
	}

	vm.mtx.Lock()
	vm.userVote = candidateID
	vm.optimistic = true
	vm.mtx.Unlock()
	return nil
}

func (vm *PollDetail) ID() string {
	return vm.id
}

func (vm *PollDetail) UserVote() string {
	vm.mtx.Lock()
	defer vm.mtx.Unlock()
	return vm.userVote
}

// HasVoted is true only for the candidate the user voted for.
func (vm *PollDetail) HasVoted(candidateID string) bool {
	vm.mtx.Lock()
	defer vm.mtx.Unlock()
	return vm.userVote != "" && vm.userVote == candidateID
}

func (vm *PollDetail) Candidates() []api.Candidate {
	vm.mtx.Lock()
	defer vm.mtx.Unlock()
	return append([]api.Candidate(nil), vm.poll.Candidates...)
}

func (vm *PollDetail) Loading() bool {
	vm.mtx.Lock()
	defer vm.mtx.Unlock()
	return vm.pending > 0
}

func (vm *PollDetail) State() PollDetailState {
	vm.mtx.Lock()
	defer vm.mtx.Unlock()
	p := vm.poll
	p.Candidates = append([]api.Candidate(nil), vm.poll.Candidates...)
	return PollDetailState{
		Phase:    vm.phase,
		Poll:     p,
		UserVote: vm.userVote,
		Loading:  vm.pending > 0,
		Err:      vm.err,
	}
}
