package types

import (
	"fmt"
	"strings"
	"time"
)

type User struct {
	Id        int       `json:"id"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type Space struct {
	Id         int         `json:"id"`
	Name       string      `json:"name"`
	InviteSlug string      `json:"invite"`
	Role       string      `json:"role,omitempty"`
	Channels   ChannelList `json:"channels"`
	CreatedAt  time.Time   `json:"created_at,omitempty"`
	UpdatedAt  time.Time   `json:"updated_at,omitempty"`
}

// ChannelList groups a space's channel names by kind, mirroring the
// shape clients render the sidebar from.
type ChannelList struct {
	Text    []string `json:"text"`
	Private []string `json:"private"`
}

type Message struct {
	Id        int64          `json:"id"`
	Seq       int64          `json:"seq"`
	SpaceId   int            `json:"space_id"`
	Channel   string         `json:"channel"`
	AuthorId  int            `json:"author_id"`
	Author    string         `json:"author,omitempty"`
	Text      string         `json:"text"`
	Reactions map[string]int `json:"reactions,omitempty"`
	Deleted   bool           `json:"deleted,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	EditedAt  *time.Time     `json:"edited_at,omitempty"`
}

// ChannelRef identifies a channel within a space. The wire form is
// "<kind>:<name>", e.g. "text:general", scoped by a space id.
type ChannelRef struct {
	SpaceId int
	Kind    string
	Name    string
}

const (
	ChannelKindText    = "text"
	ChannelKindPrivate = "private"
)

func (c ChannelRef) String() string {
	return fmt.Sprintf("%s:%s", c.Kind, c.Name)
}

// Key returns the globally unique channel key used for routing events.
func (c ChannelRef) Key() string {
	return fmt.Sprintf("%d/%s:%s", c.SpaceId, c.Kind, c.Name)
}

// ParseChannelRef parses the "<kind>:<name>" wire form.
func ParseChannelRef(spaceId int, s string) (ChannelRef, error) {
	kind, name, ok := strings.Cut(s, ":")
	if !ok || name == "" {
		return ChannelRef{}, fmt.Errorf("malformed channel %q", s)
	}
	if kind != ChannelKindText && kind != ChannelKindPrivate {
		return ChannelRef{}, fmt.Errorf("unknown channel kind %q", kind)
	}
	return ChannelRef{SpaceId: spaceId, Kind: kind, Name: name}, nil
}
