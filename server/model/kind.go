package model

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ErrUnknownKind is returned when a collection name does not map to a Kind.
var ErrUnknownKind = errors.New("unknown entity kind")

// Kind is the closed set of mirrored entity kinds.
type Kind int

const (
	KindOrganization Kind = iota + 1
	KindRepository
	KindCommit
	KindPullRequest
	KindIssue
	KindTimelineEvent
	KindMember
)

type kindInfo struct {
	name       string
	collection string
	// key fields after the owning user id
	fields []string
}

var kindTable = map[Kind]kindInfo{
	KindOrganization:  {"Organization", "organizations", []string{"login"}},
	KindRepository:    {"Repository", "repositories", []string{"orgLogin", "name"}},
	KindCommit:        {"Commit", "commits", []string{"repoName", "sha"}},
	KindPullRequest:   {"PullRequest", "pull-requests", []string{"repoName", "number"}},
	KindIssue:         {"Issue", "issues", []string{"repoName", "number"}},
	KindTimelineEvent: {"TimelineEvent", "issue-changelogs", []string{"issueNumber", "eventId"}},
	KindMember:        {"Member", "users", []string{"orgLogin", "login"}},
}

// Kinds returns every kind in hierarchy order.
func Kinds() []Kind {
	return []Kind{
		KindOrganization,
		KindRepository,
		KindCommit,
		KindPullRequest,
		KindIssue,
		KindTimelineEvent,
		KindMember,
	}
}

// ParseKind resolves a collection name such as "pull-requests".
func ParseKind(collection string) (Kind, error) {
	for k, info := range kindTable {
		if info.collection == collection {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, collection)
}

func (k Kind) Valid() bool {
	_, ok := kindTable[k]
	return ok
}

func (k Kind) String() string {
	if info, ok := kindTable[k]; ok {
		return info.name
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Collection is the storage collection name used for the kind.
func (k Kind) Collection() string {
	return kindTable[k].collection
}

// KeyFields lists the natural key fields that follow the user id.
func (k Kind) KeyFields() []string {
	return append([]string(nil), kindTable[k].fields...)
}

// Key builds a natural key, checking the number of parts against the kind.
func (k Kind) Key(user UserId, parts ...string) (Key, error) {
	info, ok := kindTable[k]
	if !ok {
		return Key{}, ErrUnknownKind
	}
	if user == "" {
		return Key{}, errors.New("natural key requires a user id")
	}
	if len(parts) != len(info.fields) {
		return Key{}, fmt.Errorf("%s key needs %d parts (%s), got %d",
			info.name, len(info.fields), strings.Join(info.fields, ", "), len(parts))
	}
	for i, p := range parts {
		if p == "" {
			return Key{}, fmt.Errorf("%s key part %s is empty", info.name, info.fields[i])
		}
	}
	return Key{Kind: k, UserID: user, Parts: append([]string(nil), parts...)}, nil
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, ErrUnknownKind
	}
	return []byte(k.Collection()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Key is the natural key of a mirrored record.
type Key struct {
	Kind   Kind     `json:"kind"`
	UserID UserId   `json:"userId"`
	Parts  []string `json:"parts"`
}

// ID encodes the key as a single string, unique within the kind's collection.
func (k Key) ID() string {
	var b strings.Builder
	b.WriteString(UserPrefix(k.UserID))
	for i, p := range k.Parts {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(url.PathEscape(p))
	}
	return b.String()
}

// UserPrefix is the ID prefix shared by every key owned by user.
func UserPrefix(user UserId) string {
	return url.PathEscape(user.String()) + "/"
}

// Fields maps key field names to their values, including userId.
func (k Key) Fields() map[string]string {
	out := map[string]string{"userId": k.UserID.String()}
	for i, name := range kindTable[k.Kind].fields {
		if i < len(k.Parts) {
			out[name] = k.Parts[i]
		}
	}
	return out
}

func (k Key) String() string {
	return k.Kind.Collection() + ":" + k.ID()
}
