// Package conversation implements direct messaging between two users and the inbox built on top of it.
package conversation

import (
	"context"
	"errors"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"html"
	"marketplace-api/internal/apperr"
	"marketplace-api/internal/storage"
	"marketplace-api/internal/storage/zapadapter"
	"strings"
	"time"
)

// Store is the part of storage.Store used by the Service
type Store interface {
	storage.ConversationStore
	UserByID(ctx context.Context, id string) (storage.User, error)
	UsersByIDs(ctx context.Context, ids []string) ([]storage.User, error)
	ValidID(id string) bool
}

// Message is a chat as returned to clients
type Message struct {
	ID     string          `json:"id"`
	Text   string          `json:"text"`
	Time   time.Time       `json:"time"`
	Viewed bool            `json:"viewed"`
	Sender storage.Profile `json:"sender"`
}

// View is a conversation as seen by one of its participants
// Next is the cursor of the preceding page, nil on the first page
type View struct {
	ID          string          `json:"id"`
	Chats       []Message       `json:"chats"`
	PeerProfile storage.Profile `json:"peerProfile"`
	Next        *int            `json:"next,omitempty"`
}

// InboxEntry is one row of a user's inbox
type InboxEntry struct {
	ID          string          `json:"id"`
	PeerProfile storage.Profile `json:"peerProfile"`
	LastMessage string          `json:"lastMessage"`
	Timestamp   time.Time       `json:"timestamp"`
	UnreadCount int             `json:"unreadCount"`
}

// Appended is a persisted chat along with the profile of its sender and the id of the other participant
type Appended struct {
	Chat      storage.Chat
	Sender    storage.Profile
	Recipient string
}

// Service defines fields used by conversation operations
type Service struct {
	logger *zap.SugaredLogger
	store  Store
	policy *bluemonday.Policy
	now    func() time.Time
}

func NewService(logger *zap.SugaredLogger, store Store) *Service {
	return &Service{
		logger: logger,
		store:  store,
		policy: bluemonday.StrictPolicy(),
		now:    time.Now,
	}
}

func otherParticipant(participants []string, id string) string {
	for _, p := range participants {
		if p != id {
			return p
		}
	}
	return ""
}

// GetOrCreate returns the id of the conversation between userID and peerID, creating it on first contact
func (s *Service) GetOrCreate(ctx context.Context, userID, peerID string) (string, error) {
	if !s.store.ValidID(peerID) {
		return "", apperr.Validation("Invalid peer ID")
	}
	if peerID == userID {
		return "", apperr.Validation("Cannot start a conversation with yourself")
	}

	_, err := s.store.UserByID(ctx, peerID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", apperr.NotFound("User not found")
	}
	if err != nil {
		return "", err
	}

	zapadapter.WithRequestID(ctx, s.logger).Debugf("Upserting conversation between (%s) and (%s)", userID, peerID)

	return s.store.UpsertConversation(ctx, userID, peerID)
}

// clean strips markup from text, entities escaped by the policy are decoded back
func (s *Service) clean(text string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(text)))
}

// AppendChat persists content sent by senderID, a zero at is replaced by the server clock
func (s *Service) AppendChat(ctx context.Context, conversationID, senderID, content string, at time.Time) (Appended, error) {
	if !s.store.ValidID(conversationID) {
		return Appended{}, apperr.Validation("Invalid conversation ID")
	}

	content = s.clean(content)
	if content == "" {
		return Appended{}, apperr.Validation("Message cannot be empty")
	}
	if at.IsZero() {
		at = s.now()
	}

	chat := storage.Chat{SentBy: senderID, Content: content, Timestamp: at.UTC()}
	participants, err := s.store.AppendChat(ctx, conversationID, &chat)
	if errors.Is(err, storage.ErrNotFound) {
		return Appended{}, apperr.NotFound("Conversation details not found")
	}
	if err != nil {
		return Appended{}, err
	}

	zapadapter.WithRequestID(ctx, s.logger).Debugf("Chat (%s) appended to conversation (%s)", chat.ID, conversationID)

	sender := storage.Profile{ID: senderID}
	u, err := s.store.UserByID(ctx, senderID)
	switch {
	case err == nil:
		sender = u.Profile()
	case !errors.Is(err, storage.ErrNotFound):
		return Appended{}, err
	}

	return Appended{
		Chat:      chat,
		Sender:    sender,
		Recipient: otherParticipant(participants, senderID),
	}, nil
}

// profiles resolves ids into public profiles, unknown ids map to a bare profile
func (s *Service) profiles(ctx context.Context, ids []string) (map[string]storage.Profile, error) {
	users, err := s.store.UsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	m := make(map[string]storage.Profile, len(ids))
	for _, id := range ids {
		m[id] = storage.Profile{ID: id}
	}
	for _, u := range users {
		m[u.ID] = u.Profile()
	}
	return m, nil
}

// Fetch returns a page of the conversation for requester, who must be a participant
func (s *Service) Fetch(ctx context.Context, conversationID, requester string, page storage.Page) (View, error) {
	if !s.store.ValidID(conversationID) {
		return View{}, apperr.Validation("Invalid conversation ID")
	}
	if page.Before < 0 || page.Limit < 0 {
		return View{}, apperr.Validation("Invalid page")
	}

	cp, err := s.store.ChatPage(ctx, conversationID, requester, page)
	if errors.Is(err, storage.ErrNotFound) {
		return View{}, apperr.NotFound("Conversation details not found")
	}
	if err != nil {
		return View{}, err
	}

	peerID := otherParticipant(cp.Participants, requester)
	profiles, err := s.profiles(ctx, cp.Participants)
	if err != nil {
		return View{}, err
	}

	v := View{
		ID:          cp.ID,
		Chats:       make([]Message, 0, len(cp.Chats)),
		PeerProfile: profiles[peerID],
	}
	for _, c := range cp.Chats {
		v.Chats = append(v.Chats, Message{
			ID:     c.ID,
			Text:   c.Content,
			Time:   c.Timestamp,
			Viewed: c.Viewed,
			Sender: profiles[c.SentBy],
		})
	}
	if cp.Start > 0 {
		next := cp.Start
		v.Next = &next
	}

	return v, nil
}

// MarkSeen marks every chat sent by peerID as viewed by requester
func (s *Service) MarkSeen(ctx context.Context, conversationID, peerID, requester string) error {
	if !s.store.ValidID(conversationID) || !s.store.ValidID(peerID) {
		return apperr.Validation("Invalid conversation or peer ID")
	}
	if peerID == requester {
		return apperr.Validation("Invalid peer ID")
	}

	err := s.store.MarkSeen(ctx, conversationID, peerID, requester)
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound("Conversation details not found")
	}
	return err
}

// ListInbox returns the latest state of every conversation of userID holding at least one chat, newest first
func (s *Service) ListInbox(ctx context.Context, userID string) ([]InboxEntry, error) {
	entries, err := s.store.Inbox(ctx, userID)
	if err != nil {
		return nil, err
	}

	inbox := make([]InboxEntry, 0, len(entries))
	for _, e := range entries {
		inbox = append(inbox, InboxEntry{
			ID:          e.ConversationID,
			PeerProfile: e.Peer,
			LastMessage: e.LastMessage,
			Timestamp:   e.Timestamp,
			UnreadCount: e.UnreadCount,
		})
	}
	return inbox, nil
}
