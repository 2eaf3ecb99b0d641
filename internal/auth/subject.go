// Package auth implements the authorization server core: principal and
// client lookup, credential verification, single-use authorization codes,
// signed bearer tokens, and the grant dispatch that ties them together.
package auth

import (
	"fmt"
	"strings"
)

// SubjectKind discriminates the two classes of authenticated identity.
type SubjectKind int

const (
	// KindUser is an end-user subject, serialized as "user:<name>".
	KindUser SubjectKind = iota

	// KindClient is a machine client subject, serialized as "client:<id>".
	KindClient

	// KindAny accepts either subject kind. Only meaningful as a guard
	// requirement for shared resources; no Subject ever carries it.
	KindAny
)

// Subject is the authenticated identity a token asserts: either an
// end-user or a machine client. The kind is the sole authorization-scope
// mechanism on protected resources.
type Subject struct {
	Kind SubjectKind
	Name string
}

// UserSubject returns the subject for an end-user.
func UserSubject(username string) Subject {
	return Subject{Kind: KindUser, Name: username}
}

// ClientSubject returns the subject for a machine client.
func ClientSubject(clientID string) Subject {
	return Subject{Kind: KindClient, Name: clientID}
}

// String returns the claim form, "user:<name>" or "client:<id>".
func (s Subject) String() string {
	if s.Kind == KindClient {
		return "client:" + s.Name
	}

	return "user:" + s.Name
}

// ParseSubject parses a claim string back into a Subject. Only the two
// well-formed prefixed forms are accepted; anything else is an error,
// never silently coerced.
func ParseSubject(s string) (Subject, error) {
	prefix, name, ok := strings.Cut(s, ":")
	if !ok || name == "" {
		return Subject{}, fmt.Errorf("malformed subject %q", s)
	}

	switch prefix {
	case "user":
		return Subject{Kind: KindUser, Name: name}, nil
	case "client":
		return Subject{Kind: KindClient, Name: name}, nil
	}

	return Subject{}, fmt.Errorf("malformed subject %q", s)
}
