// Package identity resolves loosely-specified person references (a numeric
// id, "@username", a bare email, or a display name) against a known roster of
// canonical user records.
package identity

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNotFound reports a reference that matches no roster entry.
var ErrNotFound = errors.New("user not found")

// ErrAmbiguous reports a reference that cannot be pinned to exactly one
// roster entry. Callers should ask the human for a username or email rather
// than guess.
var ErrAmbiguous = errors.New("user reference is ambiguous")

// RefType records the channel through which a person entered the
// conversation. It drives redaction when the roster is shown to the model.
type RefType string

const (
	RefFromUsername RefType = "fromUsername"
	RefFromEmail    RefType = "fromEmail"
	RefOther        RefType = "other"
)

// UserRecord is a canonical roster entry. Records are immutable for the
// duration of one orchestration invocation.
type UserRecord struct {
	ID       int    `json:"id" yaml:"id"`
	Username string `json:"username" yaml:"username"`
	Email    string `json:"email" yaml:"email"`
	TimeZone string `json:"timeZone" yaml:"timeZone"`
}

// Reference is a looser record for a person mentioned in the conversation,
// who may or may not resolve to a UserRecord. At least one of ID, Username,
// or Email must be set.
type Reference struct {
	ID       int     `json:"id,omitempty" yaml:"id,omitempty"`
	Username string  `json:"username,omitempty" yaml:"username,omitempty"`
	Email    string  `json:"email,omitempty" yaml:"email,omitempty"`
	Type     RefType `json:"type" yaml:"type"`
}

// Resolve matches a structured reference against the roster. Field priority
// is id, then username, then email.
func Resolve(ref Reference, roster []UserRecord) (*UserRecord, error) {
	if ref.ID != 0 {
		return byID(ref.ID, roster)
	}
	if ref.Username != "" {
		return byUsername(ref.Username, roster)
	}
	if ref.Email != "" {
		return byEmail(ref.Email, roster)
	}
	return nil, fmt.Errorf("%w: reference carries no id, username, or email", ErrNotFound)
}

// ResolveString matches a free-text reference: a numeric id, "@username", a
// bare email address, or a display name. Display names that match zero or
// several entries are reported as ambiguous; the caller-facing policy is to
// ask for clarification, never to guess.
func ResolveString(s string, roster []UserRecord) (*UserRecord, error) {
	ref := strings.TrimSpace(s)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty reference", ErrNotFound)
	}

	if id, err := strconv.Atoi(ref); err == nil {
		return byID(id, roster)
	}

	if strings.HasPrefix(ref, "@") {
		return byUsername(strings.TrimPrefix(ref, "@"), roster)
	}

	if LooksLikeEmail(ref) {
		return byEmail(ref, roster)
	}

	return byDisplayName(ref, roster)
}

func byID(id int, roster []UserRecord) (*UserRecord, error) {
	for i := range roster {
		if roster[i].ID == id {
			return &roster[i], nil
		}
	}
	return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
}

// byUsername prefers an exact-case match, then falls back to a
// case-insensitive one so collisions stay deterministic.
func byUsername(name string, roster []UserRecord) (*UserRecord, error) {
	for i := range roster {
		if roster[i].Username == name {
			return &roster[i], nil
		}
	}
	for i := range roster {
		if strings.EqualFold(roster[i].Username, name) {
			return &roster[i], nil
		}
	}
	return nil, fmt.Errorf("%w: username %q", ErrNotFound, name)
}

func byEmail(email string, roster []UserRecord) (*UserRecord, error) {
	for i := range roster {
		if roster[i].Email == email {
			return &roster[i], nil
		}
	}
	for i := range roster {
		if strings.EqualFold(roster[i].Email, email) {
			return &roster[i], nil
		}
	}
	return nil, fmt.Errorf("%w: email %q", ErrNotFound, email)
}

func byDisplayName(name string, roster []UserRecord) (*UserRecord, error) {
	var matches []*UserRecord
	for i := range roster {
		if strings.EqualFold(roster[i].Username, name) {
			matches = append(matches, &roster[i])
		}
	}
	if len(matches) == 1 {
		return matches[0], nil
	}
	return nil, fmt.Errorf("%w: name %q matches %d roster entries", ErrAmbiguous, name, len(matches))
}

// LooksLikeEmail reports whether s has the shape local@domain.tld. Callers
// use it to tell a literal external address apart from a roster reference.
func LooksLikeEmail(s string) bool {
	at := strings.Index(s, "@")
	if at <= 0 || at == len(s)-1 {
		return false
	}
	domain := s[at+1:]
	dot := strings.Index(domain, ".")
	return dot > 0 && dot < len(domain)-1
}
