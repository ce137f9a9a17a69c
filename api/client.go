// Package api talks to the voting backend over HTTP.
//
// Each call performs exactly one request: no retries, no backoff, and no timeout other than
// the one carried by the caller's context. Failures are *Error values classified by Kind.
package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
}

type Option func(*Client)

// WithRateLimit spaces outgoing requests to at most perSecond, allowing bursts of burst.
// A zero or negative perSecond leaves the client unlimited.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("api base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api base url: unsupported scheme %q", u.Scheme)
	}

	c := &Client{base: u, http: http.DefaultClient}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type request struct {
	op          string
	method      string
	path        string
	token       string
	auth        bool
	body        io.Reader
	contentType string
}

func (c *Client) do(ctx context.Context, r request, out interface{}) error {
	if r.auth && r.token == "" {
		return fmt.Errorf("%s: %w", r.op, ErrMissingToken)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &Error{Op: r.op, Kind: KindTransport, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.base.String()+r.path, r.body)
	if err != nil {
		return &Error{Op: r.op, Kind: KindTransport, Err: err}
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if r.auth {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	entry := log.WithFields(log.Fields{"component": "api", "category": r.op})
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		entry.Debugf("%s %s id=%s, err=%v", r.method, r.path, reqID, err)
		return &Error{Op: r.op, Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Op: r.op, Kind: KindTransport, Status: resp.StatusCode, Err: err}
	}
	entry.Debugf("%s %s id=%s status=%d took=%s", r.method, r.path, reqID, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Op: r.op, Kind: KindStatus, Status: resp.StatusCode, Message: serverMessage(body)}
	}

	// POST endpoints may acknowledge with an empty body
	if out == nil || (r.method == http.MethodPost && len(bytes.TrimSpace(body)) == 0) {
		return nil
	}
	if err = json.Unmarshal(body, out); err != nil {
		return &Error{Op: r.op, Kind: KindDecode, Status: resp.StatusCode, Err: err}
	}
	return nil
}

func decodeErr(op string, err error) error {
	return &Error{Op: op, Kind: KindDecode, Status: http.StatusOK, Err: err}
}

// ListPolls is public; it never sends a token.
func (c *Client) ListPolls(ctx context.Context) ([]Poll, error) {
	const op = "list polls"
	var polls []Poll
	if err := c.do(ctx, request{op: op, method: http.MethodGet, path: "/polls/"}, &polls); err != nil {
		return nil, err
	}
	for _, p := range polls {
		if err := p.validate(); err != nil {
			return nil, decodeErr(op, err)
		}
	}
	return polls, nil
}

// GetPoll returns the poll without per-candidate votes.
func (c *Client) GetPoll(ctx context.Context, token, id string) (Poll, error) {
	const op = "poll detail"
	var poll Poll
	err := c.do(ctx, request{
		op:     op,
		method: http.MethodGet,
		path:   "/polls/" + url.PathEscape(id) + "/",
		token:  token,
		auth:   true,
	}, &poll)
	if err != nil {
		return Poll{}, err
	}
	if err = poll.validate(); err != nil {
		return Poll{}, decodeErr(op, err)
	}
	return poll, nil
}

// PollVotes returns candidate id to vote count. A missing or null map is empty, not an error.
func (c *Client) PollVotes(ctx context.Context, token, id string) (map[string]int64, error) {
	var res pollVotesResponse
	err := c.do(ctx, request{
		op:     "poll votes",
		method: http.MethodGet,
		path:   "/admin/polls/" + url.PathEscape(id) + "/votes/",
		token:  token,
		auth:   true,
	}, &res)
	if err != nil {
		return nil, err
	}
	if res.Votes == nil {
		res.Votes = map[string]int64{}
	}
	return res.Votes, nil
}

func (c *Client) VotingHistory(ctx context.Context, token string) ([]VoteHistoryEntry, error) {
	const op = "voting history"
	var res votingHistoryResponse
	err := c.do(ctx, request{
		op:     op,
		method: http.MethodGet,
		path:   "/voting_history/",
		token:  token,
		auth:   true,
	}, &res)
	if err != nil {
		return nil, err
	}
	for _, e := range res.VotingHistory {
		if err = e.validate(); err != nil {
			return nil, decodeErr(op, err)
		}
	}
	return res.VotingHistory, nil
}

func (c *Client) CastVote(ctx context.Context, token string, vote CastVoteRequest) (Ack, error) {
	b, err := json.Marshal(vote)
	if err != nil {
		return Ack{}, err
	}
	var ack Ack
	err = c.do(ctx, request{
		op:          "cast vote",
		method:      http.MethodPost,
		path:        "/cast_vote/",
		token:       token,
		auth:        true,
		body:        bytes.NewReader(b),
		contentType: "application/json",
	}, &ack)
	return ack, err
}

// Login performs the OAuth2 password grant.
func (c *Client) Login(ctx context.Context, username, password string) (TokenResponse, error) {
	const op = "login"
	form := url.Values{
		"grant_type":    {"password"},
		"username":      {username},
		"password":      {password},
		"scope":         {""},
		"client_id":     {""},
		"client_secret": {""},
	}
	var token TokenResponse
	err := c.do(ctx, request{
		op:          op,
		method:      http.MethodPost,
		path:        "/token",
		body:        strings.NewReader(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
	}, &token)
	if err != nil {
		return TokenResponse{}, err
	}
	if err = token.validate(); err != nil {
		return TokenResponse{}, decodeErr(op, err)
	}
	return token, nil
}

func (c *Client) Register(ctx context.Context, r RegisterRequest) (RegisterResponse, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	if err := w.WriteField("username", r.Username); err != nil {
		return RegisterResponse{}, err
	}
	if err := w.WriteField("password", r.Password); err != nil {
		return RegisterResponse{}, err
	}

	name, contentType := r.FileName, r.ContentType
	if name == "" {
		name = "profile_picture.jpeg"
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="profile_picture"; filename=%q`, name))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return RegisterResponse{}, err
	}
	if r.ProfilePicture != nil {
		if _, err = io.Copy(part, r.ProfilePicture); err != nil {
			return RegisterResponse{}, err
		}
	}
	if err = w.Close(); err != nil {
		return RegisterResponse{}, err
	}

	var res RegisterResponse
	err = c.do(ctx, request{
		op:          "register",
		method:      http.MethodPost,
		path:        "/register/",
		body:        body,
		contentType: w.FormDataContentType(),
	}, &res)
	return res, err
}
