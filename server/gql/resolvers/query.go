package resolvers

import (
	"context"
	"errors"

	"github.com/troydota/client.vote.komodohype.dev/session"
	"github.com/troydota/client.vote.komodohype.dev/viewmodel"
)

type homeResolver struct {
	state  viewmodel.PollListState
	alerts []viewmodel.Alert
}

func (r *homeResolver) Tab() string {
	return string(r.state.Tab)
}

func (r *homeResolver) Tabs() []string {
	out := make([]string, len(viewmodel.Tabs))
	for i, t := range viewmodel.Tabs {
		out[i] = string(t)
	}
	return out
}

func (r *homeResolver) Search() string {
	return r.state.Query
}

func (r *homeResolver) SignedIn() bool {
	return r.state.AuthErr == nil
}

func (r *homeResolver) ProfilePictureURL() string {
	return r.state.ProfilePictureURL
}

func (r *homeResolver) Polls() []*pollResolver {
	out := make([]*pollResolver, len(r.state.Polls))
	for i, p := range r.state.Polls {
		out[i] = &pollResolver{poll: p}
	}
	return out
}

func (r *homeResolver) Alerts() []*alertResolver {
	return alerts(r.alerts)
}

// Home is the poll list screen. Fetch failures come back as alerts next to whatever loaded.
func (r *RootResolver) Home(ctx context.Context, args struct {
	Tab    *string
	Search *string
}) (*homeResolver, error) {
	tab := viewmodel.TabOngoing
	if args.Tab != nil && *args.Tab != "" {
		t, err := viewmodel.ParseTab(*args.Tab)
		if err != nil {
			return nil, errInvalidTab
		}
		tab = t
	}

	notices := &viewmodel.Alerts{}
	vm := viewmodel.NewPollList(r.api, r.sessions, notices)
	vm.SetTab(tab)
	if args.Search != nil {
		vm.SetQuery(*args.Search)
	}

	if err := vm.Activate(ctx); cancelled(ctx, err) {
		return nil, err
	}
	return &homeResolver{state: vm.State(), alerts: notices.List()}, nil
}

type pollScreenResolver struct {
	state  viewmodel.PollDetailState
	closed bool
	alerts []viewmodel.Alert
}

func (r *pollScreenResolver) Phase() string {
	return r.state.Phase.String()
}

func (r *pollScreenResolver) Closed() bool {
	return r.closed
}

func (r *pollScreenResolver) Poll() *pollResolver {
	if r.state.Phase != viewmodel.PhaseLoaded {
		return nil
	}
	return &pollResolver{poll: r.state.Poll, userVote: r.state.UserVote}
}

func (r *pollScreenResolver) UserVote() *string {
	if r.state.UserVote == "" {
		return nil
	}
	v := r.state.UserVote
	return &v
}

func (r *pollScreenResolver) Alerts() []*alertResolver {
	return alerts(r.alerts)
}

type pollScreen struct {
	vm      *viewmodel.PollDetail
	notices *viewmodel.Alerts
	closed  bool
}

func (r *RootResolver) mountPoll(id string) *pollScreen {
	ps := &pollScreen{notices: &viewmodel.Alerts{}}
	ps.vm = viewmodel.NewPollDetail(r.api, r.sessions, ps.notices, viewmodel.NavigatorFunc(func() {
		ps.closed = true
	}), id)
	return ps
}

func (ps *pollScreen) resolver() *pollScreenResolver {
	return &pollScreenResolver{state: ps.vm.State(), closed: ps.closed, alerts: ps.notices.List()}
}

func (r *RootResolver) Poll(ctx context.Context, args struct{ ID string }) (*pollScreenResolver, error) {
	ps := r.mountPoll(args.ID)
	if err := ps.vm.Load(ctx); cancelled(ctx, err) {
		return nil, err
	}
	return ps.resolver(), nil
}

// Session is null when nobody is signed in.
func (r *RootResolver) Session(ctx context.Context) (*sessionResolver, error) {
	s, err := r.sessions.Current(ctx)
	if errors.Is(err, session.ErrMissingToken) {
		return nil, nil
	}
	if err != nil {
		entry(ctx, "session").Errorf("session, err=%v", err)
		return nil, errInternalServer
	}
	return newSessionResolver(s), nil
}
