package database

import "time"

type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
)

type User struct {
	Id           int
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Session struct {
	Token     string
	UserId    int
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type Space struct {
	Id         int
	Name       string
	InviteSlug string
	OwnerId    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Membership struct {
	SpaceId   int
	UserId    int
	Role      Role
	Space     Space
	CreatedAt time.Time
}

type Channel struct {
	Id        int
	SpaceId   int
	Kind      string
	Name      string
	CreatedAt time.Time
}

// Message rows are append-only apart from edits and tombstoning. Seq is
// monotonic within a channel and never reused; a tombstoned row keeps its
// id and seq with the text cleared.
type Message struct {
	Id        int64
	ChannelId int
	Seq       int64
	AuthorId  int
	Text      string
	Deleted   bool
	CreatedAt time.Time
	EditedAt  *time.Time
}

type CreateUserParams struct {
	Username     string
	PasswordHash string
}

type CreateSpaceParams struct {
	Name       string
	InviteSlug string
	OwnerId    int
	// Channels created in the same transaction as the space and the
	// owner membership.
	DefaultChannels []CreateChannelParams
}

type CreateChannelParams struct {
	SpaceId int
	Kind    string
	Name    string
}

type CreateMessageParams struct {
	ChannelId int
	Seq       int64
	AuthorId  int
	Text      string
	CreatedAt time.Time
}
