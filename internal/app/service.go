package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"syncly/api/internal/access"
	"syncly/api/internal/config"
	"syncly/api/internal/identity"
	"syncly/api/internal/notify"
	"syncly/api/internal/search"
	"syncly/api/internal/store"
	"syncly/api/internal/titlesync"
	"syncly/api/internal/util"
)

// Actor is the authenticated caller, established from the session token.
type Actor struct {
	ID    string
	Email string
	Name  string
}

// RoomPayload is the API shape of a room.
type RoomPayload struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatorID    string    `json:"creatorId"`
	CreatorEmail string    `json:"creatorEmail"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// RoomView is the combined payload for a room fetch: the room, the actor's
// own role in it, and the resolved collaborator list.
type RoomView struct {
	Room          RoomPayload           `json:"room"`
	Role          access.Role           `json:"role"`
	Collaborators []access.Collaborator `json:"collaborators"`
}

type dataStore interface {
	GetRoom(ctx context.Context, roomID string) (store.Room, error)
	CreateRoom(ctx context.Context, room store.Room, creatorCaps []string) (store.Room, error)
	UpdateRoomTitle(ctx context.Context, roomID, title string) error
	DeleteRoom(ctx context.Context, roomID string) error
	ListAccessEntries(ctx context.Context, roomID string) ([]store.AccessEntry, error)
	GetAccessEntry(ctx context.Context, roomID, email string) (store.AccessEntry, error)
	UpsertAccessEntry(ctx context.Context, roomID, email string, capabilities []string) error
	DeleteAccessEntry(ctx context.Context, roomID, email string) error
	ListRoomsForEmail(ctx context.Context, email string) ([]store.Room, error)
	Ping(ctx context.Context) error
}

type accessNotifier interface {
	Publish(ctx context.Context, event notify.Event) error
}

type roomIndex interface {
	IndexRoom(record search.RoomRecord)
	DeleteRoom(id string)
	Search(q search.Query) search.Response
}

type Service struct {
	cfg       config.Config
	store     dataStore
	directory identity.Directory
	index     roomIndex
	notifier  accessNotifier
}

// NewService wires the room service. index and notifier may be nil when the
// corresponding backend is not configured.
func NewService(cfg config.Config, st *store.RoomStore, directory identity.Directory, index *search.Service, notifier *notify.Publisher) *Service {
	s := &Service{
		cfg:       cfg,
		store:     st,
		directory: directory,
	}
	if index != nil {
		s.index = index
	}
	if notifier != nil {
		s.notifier = notifier
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Role reports the actor's role in a room. Actors absent from the access
// map get the viewer role; membership gating is the callers' concern.
func (s *Service) Role(ctx context.Context, roomID string, actor Actor) (access.Role, error) {
	entry, err := s.store.GetAccessEntry(ctx, roomID, actor.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return access.RoleViewer, nil
	}
	if err != nil {
		return "", fmt.Errorf("load access entry: %w", err)
	}
	return access.Evaluate(toCapabilities(entry.Capabilities)), nil
}

// GetRoom returns the combined room payload. Actors outside the access map
// are refused.
func (s *Service) GetRoom(ctx context.Context, roomID string, actor Actor) (RoomView, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return RoomView{}, errRoomNotFound(roomID)
	}
	if err != nil {
		return RoomView{}, fmt.Errorf("load room: %w", err)
	}

	entries, err := s.store.ListAccessEntries(ctx, roomID)
	if err != nil {
		return RoomView{}, fmt.Errorf("load access map: %w", err)
	}

	me, ok := findEntry(entries, actor.Email)
	if !ok {
		return RoomView{}, errNotMember()
	}

	collaborators, err := s.resolveCollaborators(ctx, entries)
	if err != nil {
		return RoomView{}, err
	}

	return RoomView{
		Room:          toPayload(room),
		Role:          access.Evaluate(toCapabilities(me.Capabilities)),
		Collaborators: collaborators,
	}, nil
}

// Collaborators resolves a room's access map against the identity
// directory. Only members may list collaborators.
func (s *Service) Collaborators(ctx context.Context, roomID string, actor Actor) ([]access.Collaborator, error) {
	if _, err := s.store.GetRoom(ctx, roomID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errRoomNotFound(roomID)
		}
		return nil, fmt.Errorf("load room: %w", err)
	}

	entries, err := s.store.ListAccessEntries(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("load access map: %w", err)
	}
	if _, ok := findEntry(entries, actor.Email); !ok {
		return nil, errNotMember()
	}
	return s.resolveCollaborators(ctx, entries)
}

func (s *Service) resolveCollaborators(ctx context.Context, entries []store.AccessEntry) ([]access.Collaborator, error) {
	accessEntries := make([]access.Entry, 0, len(entries))
	emails := make([]string, 0, len(entries))
	for _, entry := range entries {
		accessEntries = append(accessEntries, access.Entry{
			Email:        entry.Email,
			Capabilities: toCapabilities(entry.Capabilities),
		})
		emails = append(emails, entry.Email)
	}
	if len(accessEntries) == 0 {
		return []access.Collaborator{}, nil
	}

	known, err := s.directory.Lookup(ctx, emails)
	if err != nil {
		return nil, domainError(http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Identity directory unavailable", nil)
	}
	return access.Resolve(accessEntries, known), nil
}

// CreateDocument creates a room with the actor as creator and sole editor.
func (s *Service) CreateDocument(ctx context.Context, actor Actor, title string) (RoomPayload, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Untitled Document"
	}
	title = titlesync.Truncate(title)

	room := store.Room{
		ID:           util.NewID("room"),
		Title:        title,
		CreatorID:    actor.ID,
		CreatorEmail: actor.Email,
	}
	created, err := s.store.CreateRoom(ctx, room, fromCapabilities(access.CapabilitiesFor(access.RoleEditor)))
	if err != nil {
		return RoomPayload{}, fmt.Errorf("create room: %w", err)
	}

	s.reindexRoom(ctx, created.ID)
	return toPayload(created), nil
}

// DeleteDocument removes a room and its access map. Only the creator may
// delete.
func (s *Service) DeleteDocument(ctx context.Context, roomID string, actor Actor) error {
	room, err := s.store.GetRoom(ctx, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return errRoomNotFound(roomID)
	}
	if err != nil {
		return fmt.Errorf("load room: %w", err)
	}
	if room.CreatorEmail != actor.Email {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only the creator can delete a document", nil)
	}

	if err := s.store.DeleteRoom(ctx, roomID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errRoomNotFound(roomID)
		}
		return fmt.Errorf("delete room: %w", err)
	}

	if s.index != nil {
		s.index.DeleteRoom(roomID)
	}
	return nil
}

// Rename updates a room title. Any editor may rename; titles are truncated
// to the cap and renaming to the current title is a store no-op.
func (s *Service) Rename(ctx context.Context, roomID string, actor Actor, title string) (RoomPayload, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return RoomPayload{}, errRoomNotFound(roomID)
	}
	if err != nil {
		return RoomPayload{}, fmt.Errorf("load room: %w", err)
	}

	if err := s.requireWrite(ctx, roomID, actor); err != nil {
		return RoomPayload{}, err
	}

	title = titlesync.Truncate(strings.TrimSpace(title))
	if title == "" {
		return RoomPayload{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Title must not be empty", nil)
	}
	if title == room.Title {
		return toPayload(room), nil
	}

	if err := s.store.UpdateRoomTitle(ctx, roomID, title); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RoomPayload{}, errRoomNotFound(roomID)
		}
		return RoomPayload{}, fmt.Errorf("rename room: %w", err)
	}
	room.Title = title

	s.reindexRoom(ctx, roomID)
	return toPayload(room), nil
}

// TitleSession builds a title synchronizer for the actor, bound to the
// room's current title and the actor's write permission. Commits flow
// through Rename so every gate applies.
func (s *Service) TitleSession(ctx context.Context, roomID string, actor Actor) (*titlesync.Synchronizer, error) {
	view, err := s.GetRoom(ctx, roomID, actor)
	if err != nil {
		return nil, err
	}
	canWrite := view.Role == access.RoleEditor
	return titlesync.New(view.Room.Title, canWrite, func(ctx context.Context, title string) error {
		_, err := s.Rename(ctx, roomID, actor, title)
		return err
	}), nil
}

// Invite grants or updates a collaborator's role. Re-granting the same role
// is an idempotent success; demoting the creator is refused.
func (s *Service) Invite(ctx context.Context, roomID string, actor Actor, email, rawRole string) error {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Invalid email address", map[string]any{"email": email})
	}
	role, ok := access.ParseRole(rawRole)
	if !ok {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Role must be editor or viewer", map[string]any{"role": rawRole})
	}

	room, err := s.store.GetRoom(ctx, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return errRoomNotFound(roomID)
	}
	if err != nil {
		return fmt.Errorf("load room: %w", err)
	}
	if err := s.requireWrite(ctx, roomID, actor); err != nil {
		return err
	}

	if email == room.CreatorEmail && role != access.RoleEditor {
		return domainError(http.StatusConflict, "INVARIANT_VIOLATION", "The creator always keeps editor access", nil)
	}

	existing, err := s.store.GetAccessEntry(ctx, roomID, email)
	kind := notify.KindInvited
	if err == nil {
		if access.Evaluate(toCapabilities(existing.Capabilities)) == role {
			return nil
		}
		kind = notify.KindRoleChanged
	} else if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("load access entry: %w", err)
	}

	if err := s.store.UpsertAccessEntry(ctx, roomID, email, fromCapabilities(access.CapabilitiesFor(role))); err != nil {
		return fmt.Errorf("grant access: %w", err)
	}

	s.publishAccessEvent(notify.Event{
		RoomID:    roomID,
		Email:     email,
		Role:      string(role),
		UpdatedBy: actor.ID,
		Kind:      kind,
	})
	s.reindexRoom(ctx, roomID)
	return nil
}

// Revoke removes a collaborator. Revoking an absent entry succeeds quietly;
// revoking the creator is refused.
func (s *Service) Revoke(ctx context.Context, roomID string, actor Actor, email string) error {
	room, err := s.store.GetRoom(ctx, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return errRoomNotFound(roomID)
	}
	if err != nil {
		return fmt.Errorf("load room: %w", err)
	}
	if err := s.requireWrite(ctx, roomID, actor); err != nil {
		return err
	}
	if email == room.CreatorEmail {
		return domainError(http.StatusConflict, "INVARIANT_VIOLATION", "The creator cannot be removed", nil)
	}

	_, err = s.store.GetAccessEntry(ctx, roomID, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load access entry: %w", err)
	}

	if err := s.store.DeleteAccessEntry(ctx, roomID, email); err != nil {
		return fmt.Errorf("revoke access: %w", err)
	}

	s.publishAccessEvent(notify.Event{
		RoomID:    roomID,
		Email:     email,
		UpdatedBy: actor.ID,
		Kind:      notify.KindRevoked,
	})
	s.reindexRoom(ctx, roomID)
	return nil
}

// ListDocuments returns every room the actor appears in.
func (s *Service) ListDocuments(ctx context.Context, actor Actor) ([]RoomPayload, error) {
	rooms, err := s.store.ListRoomsForEmail(ctx, actor.Email)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	payloads := make([]RoomPayload, 0, len(rooms))
	for _, room := range rooms {
		payloads = append(payloads, toPayload(room))
	}
	return payloads, nil
}

// SearchRooms searches the actor's rooms by title.
func (s *Service) SearchRooms(actor Actor, text string, limit, offset int) search.Response {
	if s.index == nil {
		return search.Response{Results: []search.Result{}, Query: text}
	}
	return s.index.Search(search.Query{
		Text:       text,
		ActorEmail: actor.Email,
		Limit:      limit,
		Offset:     offset,
	})
}

func (s *Service) requireWrite(ctx context.Context, roomID string, actor Actor) error {
	entry, err := s.store.GetAccessEntry(ctx, roomID, actor.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return errNotMember()
	}
	if err != nil {
		return fmt.Errorf("load access entry: %w", err)
	}
	if !access.CanWrite(toCapabilities(entry.Capabilities)) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Editor access required", nil)
	}
	return nil
}

// publishAccessEvent is fire-and-forget; a dead broker never fails the
// grant that triggered it.
func (s *Service) publishAccessEvent(event notify.Event) {
	if s.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.notifier.Publish(ctx, event); err != nil {
			log.Printf("notify: publish %s for room %s: %v", event.Kind, event.RoomID, err)
		}
	}()
}

func (s *Service) reindexRoom(ctx context.Context, roomID string) {
	if s.index == nil {
		return
	}
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		log.Printf("search: load room %s for reindex: %v", roomID, err)
		return
	}
	entries, err := s.store.ListAccessEntries(ctx, roomID)
	if err != nil {
		log.Printf("search: load members of %s for reindex: %v", roomID, err)
		return
	}
	emails := make([]string, 0, len(entries))
	for _, entry := range entries {
		emails = append(emails, entry.Email)
	}
	s.index.IndexRoom(search.RoomRecord{
		ID:           room.ID,
		Title:        room.Title,
		CreatorID:    room.CreatorID,
		MemberEmails: emails,
	})
}

func errRoomNotFound(roomID string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", "Room not found", map[string]any{"roomId": roomID})
}

func errNotMember() *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", "You do not have access to this room", nil)
}

func findEntry(entries []store.AccessEntry, email string) (store.AccessEntry, bool) {
	for _, entry := range entries {
		if entry.Email == email {
			return entry, true
		}
	}
	return store.AccessEntry{}, false
}

func toCapabilities(raw []string) []access.Capability {
	caps := make([]access.Capability, len(raw))
	for i, c := range raw {
		caps[i] = access.Capability(c)
	}
	return caps
}

func fromCapabilities(caps []access.Capability) []string {
	raw := make([]string, len(caps))
	for i, c := range caps {
		raw[i] = string(c)
	}
	return raw
}

func toPayload(room store.Room) RoomPayload {
	return RoomPayload{
		ID:           room.ID,
		Title:        room.Title,
		CreatorID:    room.CreatorID,
		CreatorEmail: room.CreatorEmail,
		CreatedAt:    room.CreatedAt,
		UpdatedAt:    room.UpdatedAt,
	}
}
