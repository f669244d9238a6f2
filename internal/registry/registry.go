// Package registry owns spaces, memberships and channel directories.
package registry

import (
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/speakset/speakset/internal/apperr"
	"github.com/speakset/speakset/internal/database"
	"github.com/speakset/speakset/internal/types"
	"github.com/teris-io/shortid"
)

const (
	DefaultTextChannel    = "general"
	DefaultPrivateChannel = "staff-only"

	maxSlugAttempts = 5
)

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

type Registry struct {
	db  database.SpeaksetRepository
	log *log.Logger
	sid *shortid.Shortid
}

func NewRegistry(logger *log.Logger, db database.SpeaksetRepository) (*Registry, error) {
	sid, err := shortid.New(1, shortid.DefaultABC, 2342)
	if err != nil {
		return nil, fmt.Errorf("shortid: %w", err)
	}

	return &Registry{db: db, log: logger, sid: sid}, nil
}

// CreateSpace creates the space with its owner membership and the default
// general/staff-only channels in one transaction. Invite slugs are derived
// from the name; collisions get a shortid suffix, so two spaces named
// "Dev" end up with distinct slugs.
func (r *Registry) CreateSpace(ownerId int, name string) (types.Space, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Space{}, apperr.Validation("space name is required")
	}

	slug := slugify(name)
	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		if attempt > 0 {
			suffix, err := r.sid.Generate()
			if err != nil {
				return types.Space{}, fmt.Errorf("generate slug suffix: %w", err)
			}
			slug = slugify(name) + "-" + strings.ToLower(suffix)
		}

		space, err := r.db.CreateSpace(database.CreateSpaceParams{
			Name:       name,
			InviteSlug: slug,
			OwnerId:    ownerId,
			DefaultChannels: []database.CreateChannelParams{
				{Kind: types.ChannelKindText, Name: DefaultTextChannel},
				{Kind: types.ChannelKindPrivate, Name: DefaultPrivateChannel},
			},
		})
		if err != nil {
			if errors.Is(err, database.ErrDuplicate) {
				continue
			}
			return types.Space{}, apperr.Unavailable("create space", err)
		}

		return types.Space{
			Id:         space.Id,
			Name:       space.Name,
			InviteSlug: space.InviteSlug,
			Role:       string(database.RoleOwner),
			Channels: types.ChannelList{
				Text:    []string{DefaultTextChannel},
				Private: []string{DefaultPrivateChannel},
			},
			CreatedAt: space.CreatedAt,
			UpdatedAt: space.UpdatedAt,
		}, nil
	}

	return types.Space{}, apperr.Conflict("could not allocate a unique invite slug")
}

// ListSpaces returns the spaces the user belongs to, with role and the
// channel directory grouped by kind.
func (r *Registry) ListSpaces(userId int) ([]types.Space, error) {
	memberships, err := r.db.ListMemberships(userId)
	if err != nil {
		return nil, apperr.Unavailable("list memberships", err)
	}

	spaces := make([]types.Space, 0, len(memberships))
	for _, m := range memberships {
		channels, err := r.db.ListChannels(m.SpaceId)
		if err != nil {
			return nil, apperr.Unavailable("list channels", err)
		}

		space := types.Space{
			Id:         m.Space.Id,
			Name:       m.Space.Name,
			InviteSlug: m.Space.InviteSlug,
			Role:       string(m.Role),
			CreatedAt:  m.Space.CreatedAt,
			UpdatedAt:  m.Space.UpdatedAt,
		}
		for _, ch := range channels {
			switch ch.Kind {
			case types.ChannelKindPrivate:
				space.Channels.Private = append(space.Channels.Private, ch.Name)
			default:
				space.Channels.Text = append(space.Channels.Text, ch.Name)
			}
		}
		spaces = append(spaces, space)
	}

	return spaces, nil
}

// AddChannel creates a channel in a space. Only the Owner may add
// channels; names are unique per (space, kind).
func (r *Registry) AddChannel(spaceId, actorId int, kind, name string) (types.ChannelRef, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.ChannelRef{}, apperr.Validation("channel name is required")
	}
	if kind != types.ChannelKindText && kind != types.ChannelKindPrivate {
		return types.ChannelRef{}, apperr.Validation("channel kind must be text or private")
	}

	membership, err := r.db.GetMembership(spaceId, actorId)
	if err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return types.ChannelRef{}, apperr.Forbidden("not a member of this space")
		}
		return types.ChannelRef{}, apperr.Unavailable("lookup membership", err)
	}
	if membership.Role != database.RoleOwner {
		return types.ChannelRef{}, apperr.Forbidden("only the space owner can add channels")
	}

	ch, err := r.db.CreateChannel(database.CreateChannelParams{
		SpaceId: spaceId,
		Kind:    kind,
		Name:    name,
	})
	if err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return types.ChannelRef{}, apperr.Conflict("channel already exists")
		}
		return types.ChannelRef{}, apperr.Unavailable("create channel", err)
	}

	return types.ChannelRef{SpaceId: ch.SpaceId, Kind: ch.Kind, Name: ch.Name}, nil
}

// JoinBySlug grants Member role via an invite slug. Joining a space the
// user already belongs to returns the space unchanged.
func (r *Registry) JoinBySlug(slug string, userId int) (types.Space, error) {
	space, err := r.db.GetSpaceBySlug(strings.TrimSpace(slug))
	if err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return types.Space{}, apperr.NotFound("no space with that invite")
		}
		return types.Space{}, apperr.Unavailable("lookup space", err)
	}

	role := database.RoleMember
	existing, err := r.db.GetMembership(space.Id, userId)
	switch {
	case err == nil:
		role = existing.Role
	case errors.Is(err, database.ErrNoRows):
		if err := r.db.CreateMembership(database.Membership{
			SpaceId: space.Id,
			UserId:  userId,
			Role:    database.RoleMember,
		}); err != nil && !errors.Is(err, database.ErrDuplicate) {
			return types.Space{}, apperr.Unavailable("create membership", err)
		}
	default:
		return types.Space{}, apperr.Unavailable("lookup membership", err)
	}

	channels, err := r.db.ListChannels(space.Id)
	if err != nil {
		return types.Space{}, apperr.Unavailable("list channels", err)
	}

	result := types.Space{
		Id:         space.Id,
		Name:       space.Name,
		InviteSlug: space.InviteSlug,
		Role:       string(role),
		CreatedAt:  space.CreatedAt,
		UpdatedAt:  space.UpdatedAt,
	}
	for _, ch := range channels {
		switch ch.Kind {
		case types.ChannelKindPrivate:
			result.Channels.Private = append(result.Channels.Private, ch.Name)
		default:
			result.Channels.Text = append(result.Channels.Text, ch.Name)
		}
	}

	return result, nil
}

// Membership returns the actor's role in a space, or Forbidden.
func (r *Registry) Membership(spaceId, userId int) (database.Membership, error) {
	m, err := r.db.GetMembership(spaceId, userId)
	if err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return database.Membership{}, apperr.Forbidden("not a member of this space")
		}
		return database.Membership{}, apperr.Unavailable("lookup membership", err)
	}
	return m, nil
}

func slugify(name string) string {
	slug := slugStrip.ReplaceAllString(strings.ToLower(name), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "space"
	}
	return slug
}
