package resolvers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/troydota/client.vote.komodohype.dev/api"
	"github.com/troydota/client.vote.komodohype.dev/render"
	"github.com/troydota/client.vote.komodohype.dev/session"
	"github.com/troydota/client.vote.komodohype.dev/utils"
	"github.com/troydota/client.vote.komodohype.dev/viewmodel"
)

var (
	errInternalServer = fmt.Errorf("internal server error")
	errInvalidTab     = fmt.Errorf("we don't know what tab that is")
)

// Client is everything the screens need from the voting API.
type Client interface {
	viewmodel.PollsAPI
	viewmodel.DetailAPI
	viewmodel.AuthAPI
}

// RootResolver mounts a fresh view-model for every query, so requests never share screen state.
type RootResolver struct {
	api      Client
	sessions *session.Manager
}

func New(c Client, sessions *session.Manager) *RootResolver {
	return &RootResolver{api: c, sessions: sessions}
}

func entry(ctx context.Context, op string) *log.Entry {
	e := log.WithFields(log.Fields{"component": "gql", "category": op})
	if ip, ok := ctx.Value(utils.Key("ip")).(string); ok {
		e = e.WithField("ip", ip)
	}
	return e
}

func clamp(n int64) int32 {
	switch {
	case n > math.MaxInt32:
		return math.MaxInt32
	case n < 0:
		return 0
	}
	return int32(n)
}

type alertResolver struct {
	a viewmodel.Alert
}

func (r *alertResolver) Title() string {
	return r.a.Title
}

func (r *alertResolver) Message() string {
	return r.a.Message
}

func alerts(list []viewmodel.Alert) []*alertResolver {
	out := make([]*alertResolver, len(list))
	for i, a := range list {
		out[i] = &alertResolver{a}
	}
	return out
}

type candidateResolver struct {
	c     api.Candidate
	voted bool
}

func (r *candidateResolver) ID() string {
	return r.c.ID
}

func (r *candidateResolver) Name() string {
	return r.c.Name
}

func (r *candidateResolver) Party() string {
	return r.c.Party
}

func (r *candidateResolver) ImageURL() string {
	return r.c.ImageURL
}

func (r *candidateResolver) Votes() int32 {
	return clamp(r.c.Votes)
}

func (r *candidateResolver) Voted() bool {
	return r.voted
}

type pollResolver struct {
	poll     api.Poll
	userVote string
}

func (r *pollResolver) ID() string {
	return r.poll.ID
}

func (r *pollResolver) Title() string {
	return r.poll.Title
}

func (r *pollResolver) Description() string {
	return r.poll.Description
}

func (r *pollResolver) ImageURL() string {
	return r.poll.ImageURL
}

func (r *pollResolver) IsActive() bool {
	return r.poll.IsActive
}

func (r *pollResolver) Status() string {
	return render.Status(r.poll.IsActive)
}

func (r *pollResolver) TotalVotes() int32 {
	return clamp(r.poll.TotalVotes)
}

func (r *pollResolver) Candidates() []*candidateResolver {
	out := make([]*candidateResolver, len(r.poll.Candidates))
	for i, c := range r.poll.Candidates {
		out[i] = &candidateResolver{c: c, voted: r.userVote != "" && c.ID == r.userVote}
	}
	return out
}

type sessionResolver struct {
	s      session.Session
	claims *session.Claims
	now    time.Time
}

func newSessionResolver(s session.Session) *sessionResolver {
	r := &sessionResolver{s: s, now: time.Now()}
	if c, err := session.ParseClaims(s.Token); err == nil {
		r.claims = &c
	}
	return r
}

func (r *sessionResolver) TokenType() string {
	return r.s.TokenType
}

func (r *sessionResolver) ProfilePictureURL() string {
	return r.s.ProfilePictureURL
}

func (r *sessionResolver) Subject() *string {
	if r.claims == nil || r.claims.Subject == "" {
		return nil
	}
	return &r.claims.Subject
}

func (r *sessionResolver) ExpiresAt() *string {
	if r.claims == nil || r.claims.ExpiresAt.IsZero() {
		return nil
	}
	s := r.claims.ExpiresAt.Format(time.RFC3339)
	return &s
}

func (r *sessionResolver) Expired() bool {
	return r.claims != nil && r.claims.Expired(r.now)
}

// cancelled tells a caller that went away apart from failures already shown as alerts.
func cancelled(ctx context.Context, err error) bool {
	return err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err())
}
