package viewmodel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/troydota/client.vote.komodohype.dev/api"
	"github.com/troydota/client.vote.komodohype.dev/session"
)

type Tab string

const (
	TabOngoing Tab = "Ongoing"
	TabVoted   Tab = "Voted"
	TabEnded   Tab = "Ended"
)

var Tabs = []Tab{TabOngoing, TabVoted, TabEnded}

func ParseTab(s string) (Tab, error) {
	for _, t := range Tabs {
		if strings.EqualFold(s, string(t)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown tab %q", s)
}

type PollsAPI interface {
	ListPolls(ctx context.Context) ([]api.Poll, error)
	VotingHistory(ctx context.Context, token string) ([]api.VoteHistoryEntry, error)
}

// InTab reports whether p is listed under tab. The predicates are independent: an active poll
// the user voted in is both Ongoing and Voted.
func InTab(tab Tab, p api.Poll, history []api.VoteHistoryEntry) bool {
	switch tab {
	case TabOngoing:
		return p.IsActive
	case TabEnded:
		return !p.IsActive
	case TabVoted:
		for _, h := range history {
			if h.PollID == p.ID {
				return true
			}
		}
	}
	return false
}

// TabPolls lists the polls of tab. Voted follows history order, once per poll, skipping
// entries whose poll is unknown.
func TabPolls(tab Tab, polls []api.Poll, history []api.VoteHistoryEntry) []api.Poll {
	out := []api.Poll{}
	if tab != TabVoted {
		for _, p := range polls {
			if InTab(tab, p, history) {
				out = append(out, p)
			}
		}
		return out
	}

	byID := make(map[string]api.Poll, len(polls))
	for _, p := range polls {
		byID[p.ID] = p
	}
	seen := map[string]bool{}
	for _, h := range history {
		p, ok := byID[h.PollID]
		if !ok || seen[h.PollID] {
			continue
		}
		seen[h.PollID] = true
		out = append(out, p)
	}
	return out
}

// Search keeps the polls whose title contains query, ignoring case.
func Search(polls []api.Poll, query string) []api.Poll {
	if query == "" {
		return polls
	}
	q := strings.ToLower(query)
	out := []api.Poll{}
	for _, p := range polls {
		if strings.Contains(strings.ToLower(p.Title), q) {
			out = append(out, p)
		}
	}
	return out
}

type PollListState struct {
	Tab               Tab
	Query             string
	Polls             []api.Poll
	ProfilePictureURL string
	Loading           bool
	Refreshing        bool
	// AuthErr is set when the last activation found no usable session.
	AuthErr error
}

// PollList is the home screen: every poll, split into tabs, with a title search.
type PollList struct {
	api      PollsAPI
	sessions *session.Manager
	notify   Notifier
	log      *log.Entry

	mtx               sync.Mutex
	polls             []api.Poll
	history           []api.VoteHistoryEntry
	profilePictureURL string
	tab               Tab
	query             string
	pending           int
	refreshing        bool
	authErr           error
}

func NewPollList(c PollsAPI, sessions *session.Manager, notify Notifier) *PollList {
	return &PollList{
		api:      c,
		sessions: sessions,
		notify:   notify,
		log:      log.WithField("component", "polls"),
		tab:      TabOngoing,
	}
}

// Activate loads the session, then polls and voting history.
// Without a token the user is told to sign in again and nothing is fetched.
func (vm *PollList) Activate(ctx context.Context) error {
	s, err := vm.session(ctx)
	if err != nil {
		return err
	}
	vm.mtx.Lock()
	vm.profilePictureURL = s.ProfilePictureURL
	vm.mtx.Unlock()

	return vm.fetch(ctx, s.Token)
}

// Refresh re-runs both fetches and swaps the state once both are done.
func (vm *PollList) Refresh(ctx context.Context) error {
	vm.mtx.Lock()
	vm.refreshing = true
	vm.mtx.Unlock()
	defer func() {
		vm.mtx.Lock()
		vm.refreshing = false
		vm.mtx.Unlock()
	}()

	s, err := vm.session(ctx)
	if err != nil {
		return err
	}
	return vm.fetch(ctx, s.Token)
}

func (vm *PollList) session(ctx context.Context) (session.Session, error) {
	s, err := vm.sessions.Current(ctx)
	if err != nil {
		if errors.Is(err, session.ErrMissingToken) {
			vm.notify.Alert(Alert{"Error", "Access token is missing. Please sign in again."})
		} else {
			vm.log.Errorf("session, err=%v", err)
			vm.notify.Alert(Alert{"Error", "Failed to load authentication details."})
		}
	}
	vm.mtx.Lock()
	vm.authErr = err
	vm.mtx.Unlock()
	return s, err
}

func (vm *PollList) fetch(ctx context.Context, token string) error {
	vm.mtx.Lock()
	vm.pending++
	vm.mtx.Unlock()
	defer func() {
		vm.mtx.Lock()
		vm.pending--
		vm.mtx.Unlock()
	}()

	var (
		wg         sync.WaitGroup
		polls      []api.Poll
		history    []api.VoteHistoryEntry
		pollsErr   error
		historyErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		polls, pollsErr = vm.api.ListPolls(ctx)
	}()
	go func() {
		defer wg.Done()
		history, historyErr = vm.api.VotingHistory(ctx, token)
	}()
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	// the half that succeeded is kept even when the other failed
	vm.mtx.Lock()
	if pollsErr == nil {
		vm.polls = polls
	}
	if historyErr == nil {
		vm.history = history
	}
	vm.mtx.Unlock()

	if pollsErr != nil {
		vm.log.Errorf("polls, err=%v", pollsErr)
		vm.notify.Alert(Alert{"Error", "Failed to load polls."})
	}
	if historyErr != nil {
		vm.log.Errorf("voting history, err=%v", historyErr)
		vm.notify.Alert(Alert{"Error", "Failed to fetch voting history."})
	}
	return errors.Join(pollsErr, historyErr)
}

func (vm *PollList) SetTab(t Tab) {
	vm.mtx.Lock()
	vm.tab = t
	vm.mtx.Unlock()
}

func (vm *PollList) SetQuery(q string) {
	vm.mtx.Lock()
	vm.query = q
	vm.mtx.Unlock()
}

// Visible is the active tab filtered by the search query.
func (vm *PollList) Visible() []api.Poll {
	vm.mtx.Lock()
	defer vm.mtx.Unlock()
	return Search(TabPolls(vm.tab, vm.polls, vm.history), vm.query)
}

// Loading is true while any fetch is outstanding.
func (vm *PollList) Loading() bool {
	vm.mtx.Lock()
	defer vm.mtx.Unlock()
	return vm.pending > 0
}

func (vm *PollList) Refreshing() bool {
	vm.mtx.Lock()
	defer vm.mtx.Unlock()
	return vm.refreshing
}

func (vm *PollList) State() PollListState {
	vm.mtx.Lock()
	defer vm.mtx.Unlock()
	return PollListState{
		Tab:               vm.tab,
		Query:             vm.query,
		Polls:             Search(TabPolls(vm.tab, vm.polls, vm.history), vm.query),
		ProfilePictureURL: vm.profilePictureURL,
		Loading:           vm.pending > 0,
		Refreshing:        vm.refreshing,
		AuthErr:           vm.authErr,
	}
}
