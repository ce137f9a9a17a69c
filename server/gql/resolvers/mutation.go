package resolvers

import (
	"context"
	"errors"

	"github.com/troydota/client.vote.komodohype.dev/viewmodel"
)

type loginResolver struct {
	session *sessionResolver
	alerts  []viewmodel.Alert
}

func (r *loginResolver) Ok() bool {
	return r.session != nil
}

func (r *loginResolver) Session() *sessionResolver {
	return r.session
}

func (r *loginResolver) Alerts() []*alertResolver {
	return alerts(r.alerts)
}

func (r *RootResolver) Login(ctx context.Context, args struct {
	Username string
	Password string
}) (*loginResolver, error) {
	notices := &viewmodel.Alerts{}
	s, err := viewmodel.NewSignIn(r.api, r.sessions, notices).Submit(ctx, args.Username, args.Password)
	if cancelled(ctx, err) {
		return nil, err
	}
	res := &loginResolver{alerts: notices.List()}
	if err == nil {
		res.session = newSessionResolver(s)
	}
	return res, nil
}

// CastVote loads the poll first so a vote already on record is refused without a request.
func (r *RootResolver) CastVote(ctx context.Context, args struct {
	PollID      string
	CandidateID string
}) (*pollScreenResolver, error) {
	ps := r.mountPoll(args.PollID)

	err := ps.vm.Load(ctx)
	if cancelled(ctx, err) {
		return nil, err
	}
	if err != nil {
		return ps.resolver(), nil
	}

	err = ps.vm.Vote(ctx, args.CandidateID)
	switch {
	case cancelled(ctx, err):
		return nil, err
	case err != nil && !errors.Is(err, viewmodel.ErrAlreadyVoted):
		entry(ctx, "castVote").Infof("poll=%s candidate=%s, err=%v", args.PollID, args.CandidateID, err)
	}
	return ps.resolver(), nil
}
