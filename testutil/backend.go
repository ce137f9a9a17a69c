// Package testutil runs an in-process stand-in for the voting backend.
package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/troydota/client.vote.komodohype.dev/api"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Route names accepted by Fail and Calls.
const (
	RoutePolls    = "polls"
	RoutePoll     = "poll"
	RouteVotes    = "votes"
	RouteHistory  = "history"
	RouteCastVote = "cast_vote"
	RouteLogin    = "login"
	RouteRegister = "register"
)

type Backend struct {
	*httptest.Server

	mtx      sync.Mutex
	polls    []api.Poll
	votes    map[string]map[string]int64
	users    map[string]string
	pictures map[string]string
	history  map[string][]api.VoteHistoryEntry
	fail     map[string]int
	raw      map[string]string
	calls    map[string]int
	// HistoryLag keeps cast votes out of the voting history, like an eventually consistent server.
	HistoryLag bool
	LastCast   api.CastVoteRequest
	LastForm   map[string]string
	LastAuth   string
	LastPath   string
}

func NewBackend(t *testing.T) *Backend {
	t.Helper()

	b := &Backend{
		votes:    map[string]map[string]int64{},
		users:    map[string]string{},
		pictures: map[string]string{},
		history:  map[string][]api.VoteHistoryEntry{},
		fail:     map[string]int{},
		raw:      map[string]string{},
		calls:    map[string]int{},
	}

	r := mux.NewRouter().UseEncodedPath()
	r.HandleFunc("/polls/", b.wrap(RoutePolls, false, b.listPolls)).Methods(http.MethodGet)
	r.HandleFunc("/polls/{id}/", b.wrap(RoutePoll, true, b.getPoll)).Methods(http.MethodGet)
	r.HandleFunc("/admin/polls/{id}/votes/", b.wrap(RouteVotes, true, b.getVotes)).Methods(http.MethodGet)
	r.HandleFunc("/voting_history/", b.wrap(RouteHistory, true, b.getHistory)).Methods(http.MethodGet)
	r.HandleFunc("/cast_vote/", b.wrap(RouteCastVote, true, b.castVote)).Methods(http.MethodPost)
	r.HandleFunc("/token", b.wrap(RouteLogin, false, b.login)).Methods(http.MethodPost)
	r.HandleFunc("/register/", b.wrap(RouteRegister, false, b.register)).Methods(http.MethodPost)

	b.Server = httptest.NewServer(r)
	t.Cleanup(b.Server.Close)
	return b
}

// AddPoll registers a poll; candidate vote counts go to the votes endpoint, not the poll payload.
func (b *Backend) AddPoll(p api.Poll) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	counts := map[string]int64{}
	candidates := make([]api.Candidate, len(p.Candidates))
	for i, c := range p.Candidates {
		if c.Votes != 0 {
			counts[c.ID] = c.Votes
		}
		c.Votes = 0
		candidates[i] = c
	}
	p.Candidates = candidates
	b.votes[p.ID] = counts
	b.polls = append(b.polls, p)
}

// AddUser registers a user and returns the bearer token login will issue.
func (b *Backend) AddUser(username, password string) string {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	b.users[username] = password
	return tokenFor(username)
}

func (b *Backend) AddHistory(token string, e api.VoteHistoryEntry) {
	b.mtx.Lock()
	b.history[token] = append(b.history[token], e)
	b.mtx.Unlock()
}

// Fail makes route answer with status until cleared with status 0.
func (b *Backend) Fail(route string, status int) {
	b.mtx.Lock()
	if status == 0 {
		delete(b.fail, route)
	} else {
		b.fail[route] = status
	}
	b.mtx.Unlock()
}

// Raw makes route answer 200 with body verbatim.
func (b *Backend) Raw(route, body string) {
	b.mtx.Lock()
	b.raw[route] = body
	b.mtx.Unlock()
}

func (b *Backend) Calls(route string) int {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.calls[route]
}

func (b *Backend) Votes(id string) map[string]int64 {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	out := map[string]int64{}
	for k, v := range b.votes[id] {
		out[k] = v
	}
	return out
}

func tokenFor(username string) string {
	return "token-" + username
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func detail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

func (b *Backend) wrap(route string, auth bool, h func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mtx.Lock()
		b.calls[route]++
		b.LastAuth = r.Header.Get("Authorization")
		b.LastPath = r.URL.EscapedPath()
		status, failing := b.fail[route]
		raw, isRaw := b.raw[route]
		b.mtx.Unlock()

		if failing {
			detail(w, status, fmt.Sprintf("%s failed", route))
			return
		}
		if isRaw {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, raw)
			return
		}

		var token string
		if auth {
			token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			b.mtx.Lock()
			known := false
			for u := range b.users {
				if tokenFor(u) == token {
					known = true
				}
			}
			b.mtx.Unlock()
			if !known {
				detail(w, http.StatusUnauthorized, "Not authenticated")
				return
			}
		}
		h(w, r, token)
	}
}

func (b *Backend) findPoll(id string) (api.Poll, bool) {
	for _, p := range b.polls {
		if p.ID == id {
			return p, true
		}
	}
	return api.Poll{}, false
}

// pollID is the unescaped {id} of an encoded-path route.
func pollID(r *http.Request) string {
	id := mux.Vars(r)["id"]
	if v, err := url.PathUnescape(id); err == nil {
		return v
	}
	return id
}

func (b *Backend) listPolls(w http.ResponseWriter, _ *http.Request, _ string) {
	b.mtx.Lock()
	polls := append([]api.Poll{}, b.polls...)
	b.mtx.Unlock()
	writeJSON(w, http.StatusOK, polls)
}

func (b *Backend) getPoll(w http.ResponseWriter, r *http.Request, _ string) {
	b.mtx.Lock()
	p, ok := b.findPoll(pollID(r))
	b.mtx.Unlock()
	if !ok {
		detail(w, http.StatusNotFound, "Poll not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (b *Backend) getVotes(w http.ResponseWriter, r *http.Request, _ string) {
	id := pollID(r)
	writeJSON(w, http.StatusOK, map[string]interface{}{"poll_id": id, "votes": b.Votes(id)})
}

func (b *Backend) getHistory(w http.ResponseWriter, _ *http.Request, token string) {
	b.mtx.Lock()
	h := append([]api.VoteHistoryEntry{}, b.history[token]...)
	b.mtx.Unlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{"voting_history": h})
}

func (b *Backend) castVote(w http.ResponseWriter, r *http.Request, token string) {
	var req api.CastVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		detail(w, http.StatusUnprocessableEntity, "Invalid body")
		return
	}

	b.mtx.Lock()
	defer b.mtx.Unlock()
	b.LastCast = req

	p, ok := b.findPoll(req.PollID)
	if !ok {
		detail(w, http.StatusNotFound, "Poll not found")
		return
	}
	if !p.IsActive {
		detail(w, http.StatusBadRequest, "Poll is closed")
		return
	}
	for _, e := range b.history[token] {
		if e.PollID == req.PollID {
			detail(w, http.StatusBadRequest, "User has already voted in this poll")
			return
		}
	}

	b.votes[req.PollID][req.CandidateID]++
	for i := range b.polls {
		if b.polls[i].ID == req.PollID {
			b.polls[i].TotalVotes++
		}
	}
	if !b.HistoryLag {
		b.history[token] = append(b.history[token], api.VoteHistoryEntry{PollID: req.PollID, CandidateID: req.CandidateID})
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Vote cast successfully"})
}

func (b *Backend) login(w http.ResponseWriter, r *http.Request, _ string) {
	if err := r.ParseForm(); err != nil {
		detail(w, http.StatusBadRequest, "Invalid form")
		return
	}
	b.mtx.Lock()
	b.LastForm = map[string]string{}
	for k := range r.PostForm {
		b.LastForm[k] = r.PostForm.Get(k)
	}
	username := r.PostForm.Get("username")
	password, ok := b.users[username]
	picture := b.pictures[username]
	b.mtx.Unlock()

	if r.PostForm.Get("grant_type") != "password" || !ok || password != r.PostForm.Get("password") {
		detail(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}
	res := api.TokenResponse{AccessToken: tokenFor(username), TokenType: "bearer", ProfilePictureURL: picture}
	writeJSON(w, http.StatusOK, res)
}

func (b *Backend) register(w http.ResponseWriter, r *http.Request, _ string) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		detail(w, http.StatusBadRequest, "Invalid form")
		return
	}
	username, password := r.FormValue("username"), r.FormValue("password")
	f, fh, err := r.FormFile("profile_picture")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Profile picture is required"})
		return
	}
	defer f.Close()

	b.mtx.Lock()
	defer b.mtx.Unlock()
	b.LastForm = map[string]string{
		"username":     username,
		"password":     password,
		"filename":     fh.Filename,
		"content_type": fh.Header.Get("Content-Type"),
	}
	if _, exists := b.users[username]; exists {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Username already exists"})
		return
	}
	b.users[username] = password
	b.pictures[username] = "https://img.example/" + username + ".jpeg"
	writeJSON(w, http.StatusOK, map[string]string{"message": "User registered successfully"})
}
