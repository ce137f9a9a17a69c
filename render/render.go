// Package render draws view-model state as plain text for the terminal.
// It only formats; every decision is made by the view-models.
package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/troydota/client.vote.komodohype.dev/api"
	"github.com/troydota/client.vote.komodohype.dev/session"
	"github.com/troydota/client.vote.komodohype.dev/viewmodel"
)

const NoPolls = "No polls found."

func Votes(n int64) string {
	if n == 1 {
		return "1 vote"
	}
	return humanize.Comma(n) + " votes"
}

func Status(active bool) string {
	if active {
		return "Voting Open"
	}
	return "Voting Closed"
}

func PollCard(w io.Writer, p api.Poll) error {
	b := &strings.Builder{}
	fmt.Fprintf(b, "%s  [%s]\n", p.Title, Status(p.IsActive))
	if p.Description != "" {
		fmt.Fprintf(b, "  %s\n", p.Description)
	}
	fmt.Fprintf(b, "  id %s, %s\n", p.ID, Votes(p.TotalVotes))
	_, err := io.WriteString(w, b.String())
	return err
}

func PollList(w io.Writer, polls []api.Poll) error {
	if len(polls) == 0 {
		_, err := fmt.Fprintln(w, NoPolls)
		return err
	}
	for i, p := range polls {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if err := PollCard(w, p); err != nil {
			return err
		}
	}
	return nil
}

// Home draws the tab bar, the search query if any, and the visible polls.
func Home(w io.Writer, s viewmodel.PollListState) error {
	tabs := make([]string, 0, len(viewmodel.Tabs))
	for _, t := range viewmodel.Tabs {
		if t == s.Tab {
			tabs = append(tabs, "["+string(t)+"]")
		} else {
			tabs = append(tabs, " "+string(t)+" ")
		}
	}
	b := &strings.Builder{}
	b.WriteString(strings.Join(tabs, " "))
	b.WriteByte('\n')
	if s.Query != "" {
		fmt.Fprintf(b, "search: %q\n", s.Query)
	}
	b.WriteByte('\n')
	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}
	return PollList(w, s.Polls)
}

func CandidateRow(w io.Writer, c api.Candidate, voted bool) error {
	mark := " "
	if voted {
		mark = "*"
	}
	party := c.Party
	if party == "" {
		party = "-"
	}
	_, err := fmt.Fprintf(w, "%s %-20s %-16s %12s  (%s)\n", mark, c.Name, party, Votes(c.Votes), c.ID)
	return err
}

func PollDetail(w io.Writer, s viewmodel.PollDetailState) error {
	if s.Phase != viewmodel.PhaseLoaded {
		_, err := fmt.Fprintf(w, "poll %s\n", strings.ToLower(s.Phase.String()))
		return err
	}
	if err := PollCard(w, s.Poll); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	for _, c := range s.Poll.Candidates {
		if err := CandidateRow(w, c, s.UserVote != "" && c.ID == s.UserVote); err != nil {
			return err
		}
	}
	if s.UserVote != "" {
		_, err := fmt.Fprintln(w, "\n* your vote")
		return err
	}
	return nil
}

func Alert(w io.Writer, a viewmodel.Alert) error {
	_, err := fmt.Fprintf(w, "%s: %s\n", a.Title, a.Message)
	return err
}

func Alerts(w io.Writer, alerts []viewmodel.Alert) error {
	for _, a := range alerts {
		if err := Alert(w, a); err != nil {
			return err
		}
	}
	return nil
}

// Session shows who is signed in. claims may be nil for opaque tokens.
func Session(w io.Writer, s session.Session, claims *session.Claims, now time.Time) error {
	b := &strings.Builder{}
	if claims != nil && claims.Subject != "" {
		fmt.Fprintf(b, "signed in as %s\n", claims.Subject)
	} else {
		b.WriteString("signed in\n")
	}
	fmt.Fprintf(b, "token type: %s\n", s.TokenType)
	if claims != nil && !claims.ExpiresAt.IsZero() {
		verb := "expires"
		if claims.Expired(now) {
			verb = "expired"
		}
		fmt.Fprintf(b, "token %s %s\n", verb, humanize.RelTime(claims.ExpiresAt, now, "ago", "from now"))
	}
	if s.ProfilePictureURL != "" {
		fmt.Fprintf(b, "profile picture: %s\n", s.ProfilePictureURL)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
