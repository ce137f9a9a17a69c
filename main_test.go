package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/troydota/client.vote.komodohype.dev/api"
	"github.com/troydota/client.vote.komodohype.dev/configure"
	"github.com/troydota/client.vote.komodohype.dev/testutil"
)

type cli struct {
	t   *testing.T
	cfg configure.ClientCfg
}

func newCLI(t *testing.T) (*cli, *testutil.Backend) {
	b := testutil.NewBackend(t)
	b.AddPoll(api.Poll{
		ID:       "p1",
		Title:    "Election 2025",
		IsActive: true,
		Candidates: []api.Candidate{
			{ID: "c1", Name: "Ada", Party: "Blue", Votes: 1233},
			{ID: "c2", Name: "Grace", Party: "Green"},
		},
		TotalVotes: 1233,
	})
	b.AddPoll(api.Poll{ID: "p2", Title: "Old Referendum"})
	b.AddUser("alice", "secret")

	return &cli{t: t, cfg: configure.ClientCfg{
		APIBaseURL:     b.URL,
		APIRateBurst:   1,
		SessionBackend: "sqlite",
		SessionPath:    filepath.Join(t.TempDir(), "session.db"),
	}}, b
}

func (c *cli) run(args ...string) (int, string, string) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	code := run(context.Background(), c.cfg, args, out, errOut)
	return code, out.String(), errOut.String()
}

func TestRun_Usage(t *testing.T) {
	c, _ := newCLI(t)

	code, _, errOut := c.run("dance")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "usage: vote")

	code, _, _ = c.run("cast", "p1")
	assert.Equal(t, 2, code)

	code, _, _ = c.run("polls", "Archived")
	assert.Equal(t, 2, code)
}

func TestRun_SignedOut(t *testing.T) {
	c, b := newCLI(t)

	code, out, errOut := c.run("polls")
	assert.Equal(t, 1, code)
	assert.Empty(t, out)
	assert.Equal(t, "Error: Access token is missing. Please sign in again.\n", errOut)
	assert.Zero(t, b.Calls(testutil.RoutePolls))

	code, _, errOut = c.run("whoami")
	assert.Equal(t, 1, code)
	assert.Equal(t, "not signed in\n", errOut)
}

func TestRun_VotingSession(t *testing.T) {
	c, b := newCLI(t)

	code, out, _ := c.run("login", "alice", "secret")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "token type: bearer")

	code, out, _ = c.run("whoami")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "signed in")

	code, out, _ = c.run("polls")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "[Ongoing]")
	assert.Contains(t, out, "Election 2025  [Voting Open]")
	assert.NotContains(t, out, "Old Referendum")

	code, out, _ = c.run("polls", "ended", "ref")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Old Referendum  [Voting Closed]")

	code, out, errOut := c.run("cast", "p1", "c2")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "Vote Submitted: Your vote has been successfully cast.\n", errOut)
	assert.Contains(t, out, "1,234 votes")
	assert.Contains(t, out, "* your vote")

	code, _, errOut = c.run("cast", "p1", "c1")
	assert.Equal(t, 1, code)
	assert.Equal(t, "You have already voted: You can only vote once in this poll.\n", errOut)
	assert.Equal(t, 1, b.Calls(testutil.RouteCastVote))

	code, out, _ = c.run("polls", "Voted")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Election 2025")

	code, _, errOut = c.run("poll", "p2")
	assert.Equal(t, 1, code)
	assert.Equal(t, "Poll Closed: This poll is no longer active.\n", errOut)
}

func TestRun_Register(t *testing.T) {
	c, b := newCLI(t)
	pic := filepath.Join(t.TempDir(), "me.png")
	require.NoError(t, os.WriteFile(pic, []byte("png"), 0o600))

	code, out, _ := c.run("register", "bob", "pw", pic)
	require.Equal(t, 0, code)
	assert.Equal(t, "User registered successfully\n", out)
	assert.Equal(t, "me.png", b.LastForm["filename"])
	assert.Equal(t, "image/png", b.LastForm["content_type"])

	code, _, errOut := c.run("register", "bob", "pw", pic)
	assert.Equal(t, 1, code)
	assert.Equal(t, "Username already exists\n", errOut)

	code, _, _ = c.run("register", "carol", "pw", filepath.Join(t.TempDir(), "missing.png"))
	assert.Equal(t, 1, code)
}

func TestOpenStore_Unknown(t *testing.T) {
	_, _, err := openStore(context.Background(), configure.ClientCfg{SessionBackend: "etcd"})
	assert.Error(t, err)
}
