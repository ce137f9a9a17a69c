package api

import (
	"fmt"
	"io"
)

type Candidate struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Party    string `json:"party"`
	ImageURL string `json:"image_url"`
	// Votes is not part of the poll payload; it is merged from PollVotes.
	Votes int64 `json:"votes"`
}

type Poll struct {
	ID          string      `json:"_id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	ImageURL    string      `json:"poll_image_url"`
	IsActive    bool        `json:"is_active"`
	TotalVotes  int64       `json:"total_votes"`
	Candidates  []Candidate `json:"candidates"`
}

type VoteHistoryEntry struct {
	PollID      string `json:"poll_id"`
	CandidateID string `json:"candidate_id"`
}

type CastVoteRequest struct {
	PollID      string `json:"poll_id"`
	CandidateID string `json:"candidate_id"`
}

type Ack struct {
	Message string `json:"message,omitempty"`
}

type TokenResponse struct {
	AccessToken       string `json:"access_token"`
	TokenType         string `json:"token_type"`
	ProfilePictureURL string `json:"profile_picture_url,omitempty"`
}

type RegisterRequest struct {
	Username string
	Password string
	// ProfilePicture is streamed as the profile_picture form file.
	ProfilePicture io.Reader
	FileName       string
	ContentType    string
}

type RegisterResponse struct {
	Message string `json:"message"`
}

type votingHistoryResponse struct {
	VotingHistory []VoteHistoryEntry `json:"voting_history"`
}

type pollVotesResponse struct {
	Votes map[string]int64 `json:"votes"`
}

func (c Candidate) validate() error {
	if c.ID == "" {
		return fmt.Errorf("candidate %q has no id", c.Name)
	}
	return nil
}

func (p Poll) validate() error {
	if p.ID == "" {
		return fmt.Errorf("poll %q has no _id", p.Title)
	}
	for _, c := range p.Candidates {
		if err := c.validate(); err != nil {
			return fmt.Errorf("poll %s: %w", p.ID, err)
		}
	}
	return nil
}

func (e VoteHistoryEntry) validate() error {
	if e.PollID == "" || e.CandidateID == "" {
		return fmt.Errorf("voting history entry %+v is incomplete", e)
	}
	return nil
}

func (t TokenResponse) validate() error {
	if t.AccessToken == "" {
		return fmt.Errorf("token response has no access_token")
	}
	return nil
}

// MergeVotes returns a copy of p whose candidates carry the counts in votes.
// Candidates absent from votes get zero.
func MergeVotes(p Poll, votes map[string]int64) Poll {
	candidates := make([]Candidate, len(p.Candidates))
	for i, c := range p.Candidates {
		c.Votes = votes[c.ID]
		candidates[i] = c
	}
	p.Candidates = candidates
	return p
}
