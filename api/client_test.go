package api_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/troydota/client.vote.komodohype.dev/api"
	"github.com/troydota/client.vote.komodohype.dev/testutil"
)

func election() api.Poll {
	return api.Poll{
		ID:         "p1",
		Title:      "Election 2025",
		IsActive:   true,
		TotalVotes: 5,
		Candidates: []api.Candidate{
			{ID: "c1", Name: "Ada", Party: "Blue", Votes: 3},
			{ID: "c2", Name: "Grace", Party: "Green", Votes: 2},
			{ID: "c3", Name: "Linus", Party: "Red"},
		},
	}
}

func setup(t *testing.T) (*testutil.Backend, *api.Client, string) {
	b := testutil.NewBackend(t)
	b.AddPoll(election())
	token := b.AddUser("alice", "secret")

	c, err := api.New(b.URL + "/")
	require.NoError(t, err)
	return b, c, token
}

func TestNew_InvalidBaseURL(t *testing.T) {
	_, err := api.New("ftp://example.com")
	assert.Error(t, err)

	_, err = api.New("://bad")
	assert.Error(t, err)
}

func TestListPolls_IsPublic(t *testing.T) {
	b, c, _ := setup(t)

	polls, err := c.ListPolls(context.Background())
	require.NoError(t, err)
	require.Len(t, polls, 1)
	assert.Equal(t, "Election 2025", polls[0].Title)
	assert.Empty(t, b.LastAuth)
}

func TestGetPoll_WithoutVotes(t *testing.T) {
	b, c, token := setup(t)

	p, err := c.GetPoll(context.Background(), token, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer "+token, b.LastAuth)
	for _, cand := range p.Candidates {
		assert.Zero(t, cand.Votes)
	}
}

func TestProtectedEndpoints_RequireToken(t *testing.T) {
	b, c, _ := setup(t)
	ctx := context.Background()

	_, err := c.GetPoll(ctx, "", "p1")
	assert.ErrorIs(t, err, api.ErrMissingToken)
	_, err = c.PollVotes(ctx, "", "p1")
	assert.ErrorIs(t, err, api.ErrMissingToken)
	_, err = c.VotingHistory(ctx, "")
	assert.ErrorIs(t, err, api.ErrMissingToken)
	_, err = c.CastVote(ctx, "", api.CastVoteRequest{PollID: "p1", CandidateID: "c1"})
	assert.ErrorIs(t, err, api.ErrMissingToken)

	assert.Zero(t, b.Calls(testutil.RoutePoll))
	assert.Zero(t, b.Calls(testutil.RouteVotes))
	assert.Zero(t, b.Calls(testutil.RouteHistory))
	assert.Zero(t, b.Calls(testutil.RouteCastVote))
}

func TestPollVotes_MergeDefaultsToZero(t *testing.T) {
	_, c, token := setup(t)
	ctx := context.Background()

	p, err := c.GetPoll(ctx, token, "p1")
	require.NoError(t, err)
	votes, err := c.PollVotes(ctx, token, "p1")
	require.NoError(t, err)

	merged := api.MergeVotes(p, votes)
	assert.EqualValues(t, 3, merged.Candidates[0].Votes)
	assert.EqualValues(t, 2, merged.Candidates[1].Votes)
	assert.EqualValues(t, 0, merged.Candidates[2].Votes)
	assert.Zero(t, p.Candidates[0].Votes, "merge must not mutate its input")
}

func TestPollIDsAreEscaped(t *testing.T) {
	b, c, token := setup(t)
	odd := election()
	odd.ID = "2025/runoff?round=2"
	b.AddPoll(odd)
	ctx := context.Background()

	p, err := c.GetPoll(ctx, token, odd.ID)
	require.NoError(t, err)
	assert.Equal(t, odd.ID, p.ID)
	assert.Equal(t, "/polls/2025%2Frunoff%3Fround=2/", b.LastPath)

	votes, err := c.PollVotes(ctx, token, odd.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, votes["c1"])
	assert.Equal(t, "/admin/polls/2025%2Frunoff%3Fround=2/votes/", b.LastPath)
}

func TestPollVotes_NullMap(t *testing.T) {
	b, c, token := setup(t)
	b.Raw(testutil.RouteVotes, `{"votes": null}`)

	votes, err := c.PollVotes(context.Background(), token, "p1")
	require.NoError(t, err)
	assert.NotNil(t, votes)
	assert.Empty(t, votes)
}

func TestCastVoteAndHistory(t *testing.T) {
	b, c, token := setup(t)
	ctx := context.Background()

	ack, err := c.CastVote(ctx, token, api.CastVoteRequest{PollID: "p1", CandidateID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, "Vote cast successfully", ack.Message)
	assert.Equal(t, api.CastVoteRequest{PollID: "p1", CandidateID: "c1"}, b.LastCast)

	history, err := c.VotingHistory(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, []api.VoteHistoryEntry{{PollID: "p1", CandidateID: "c1"}}, history)

	_, err = c.CastVote(ctx, token, api.CastVoteRequest{PollID: "p1", CandidateID: "c2"})
	require.Error(t, err)
	assert.True(t, api.IsKind(err, api.KindStatus))
	assert.Equal(t, "User has already voted in this poll", api.ServerMessage(err))

	var apiErr *api.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		route string
		body  string
		call  func(c *api.Client, token string) error
	}{
		{
			name:  "polls not an array",
			route: testutil.RoutePolls,
			body:  `{"polls": []}`,
			call: func(c *api.Client, _ string) error {
				_, err := c.ListPolls(context.Background())
				return err
			},
		},
		{
			name:  "poll without id",
			route: testutil.RoutePolls,
			body:  `[{"title": "no id"}]`,
			call: func(c *api.Client, _ string) error {
				_, err := c.ListPolls(context.Background())
				return err
			},
		},
		{
			name:  "candidate without id",
			route: testutil.RoutePoll,
			body:  `{"_id": "p1", "candidates": [{"name": "Ada"}]}`,
			call: func(c *api.Client, token string) error {
				_, err := c.GetPoll(context.Background(), token, "p1")
				return err
			},
		},
		{
			name:  "history entry without candidate",
			route: testutil.RouteHistory,
			body:  `{"voting_history": [{"poll_id": "p1"}]}`,
			call: func(c *api.Client, token string) error {
				_, err := c.VotingHistory(context.Background(), token)
				return err
			},
		},
		{
			name:  "token without access_token",
			route: testutil.RouteLogin,
			body:  `{"token_type": "bearer"}`,
			call: func(c *api.Client, _ string) error {
				_, err := c.Login(context.Background(), "alice", "secret")
				return err
			},
		},
		{
			name:  "malformed json",
			route: testutil.RouteVotes,
			body:  `{"votes": {"c1": "three"`,
			call: func(c *api.Client, token string) error {
				_, err := c.PollVotes(context.Background(), token, "p1")
				return err
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b, c, token := setup(t)
			b.Raw(tc.route, tc.body)

			err := tc.call(c, token)
			require.Error(t, err)
			assert.True(t, api.IsKind(err, api.KindDecode), "got %v", err)
		})
	}
}

func TestStatusAndTransportErrors(t *testing.T) {
	b, c, token := setup(t)
	b.Fail(testutil.RouteHistory, http.StatusInternalServerError)

	_, err := c.VotingHistory(context.Background(), token)
	assert.True(t, api.IsKind(err, api.KindStatus))
	assert.Equal(t, "history failed", api.ServerMessage(err))

	_, err = c.GetPoll(context.Background(), "token-mallory", "p1")
	assert.True(t, api.IsKind(err, api.KindStatus))
	assert.Equal(t, "Not authenticated", api.ServerMessage(err))

	b.Close()
	_, err = c.ListPolls(context.Background())
	assert.True(t, api.IsKind(err, api.KindTransport))
	assert.Empty(t, api.ServerMessage(err))
}

func TestContextCancelled(t *testing.T) {
	_, c, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ListPolls(ctx)
	assert.True(t, api.IsKind(err, api.KindTransport))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRateLimit(t *testing.T) {
	b := testutil.NewBackend(t)
	b.AddPoll(election())
	c, err := api.New(b.URL, api.WithRateLimit(0.001, 1))
	require.NoError(t, err)

	_, err = c.ListPolls(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.ListPolls(ctx)
	assert.True(t, api.IsKind(err, api.KindTransport))
	assert.Equal(t, 1, b.Calls(testutil.RoutePolls))
}

func TestLogin(t *testing.T) {
	b, c, token := setup(t)

	res, err := c.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, token, res.AccessToken)
	assert.Equal(t, "bearer", res.TokenType)
	assert.Equal(t, map[string]string{
		"grant_type":    "password",
		"username":      "alice",
		"password":      "secret",
		"scope":         "",
		"client_id":     "",
		"client_secret": "",
	}, b.LastForm)

	_, err = c.Login(context.Background(), "alice", "wrong")
	assert.True(t, api.IsKind(err, api.KindStatus))
}

func TestRegister(t *testing.T) {
	b, c, _ := setup(t)

	res, err := c.Register(context.Background(), api.RegisterRequest{
		Username:       "bob",
		Password:       "hunter2",
		ProfilePicture: bytes.NewReader([]byte{0xff, 0xd8, 0xff}),
	})
	require.NoError(t, err)
	assert.Equal(t, "User registered successfully", res.Message)
	assert.Equal(t, "profile_picture.jpeg", b.LastForm["filename"])
	assert.Equal(t, "image/jpeg", b.LastForm["content_type"])

	_, err = c.Register(context.Background(), api.RegisterRequest{Username: "bob", Password: "x", ProfilePicture: bytes.NewReader(nil)})
	assert.Equal(t, "Username already exists", api.ServerMessage(err))

	login, err := c.Login(context.Background(), "bob", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/bob.jpeg", login.ProfilePictureURL)
}
