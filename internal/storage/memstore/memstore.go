// Package memstore is an in-process storage.Store used for local development and tests.
package memstore

import (
	"context"
	"github.com/rs/xid"
	"marketplace-api/internal/storage"
	"sort"
	"sync"
	"time"
)

type tokenKey struct {
	kind  storage.TokenKind
	owner string
}

// Store keeps every document in maps guarded by a single RWMutex
type Store struct {
	mu            sync.RWMutex
	now           func() time.Time
	users         map[string]*storage.User
	tokens        map[tokenKey]storage.Token
	conversations map[string]*storage.Conversation
	byKey         map[string]string
	products      map[string]*storage.Product
}

var _ storage.Store = (*Store)(nil)

// Option alters the default configuration of a Store
type Option interface {
	apply(*Store)
}

type optionFunc func(s *Store)

func (f optionFunc) apply(s *Store) { f(s) }

// Clock replaces time.Now, e.g. to expire tokens in tests
func Clock(now func() time.Time) Option {
	return optionFunc(func(s *Store) {
		s.now = now
	})
}

func New(opts ...Option) *Store {
	s := &Store{
		now:           time.Now,
		users:         map[string]*storage.User{},
		tokens:        map[tokenKey]storage.Token{},
		conversations: map[string]*storage.Conversation{},
		byKey:         map[string]string{},
		products:      map[string]*storage.Product{},
	}
	for _, opt := range opts {
		opt.apply(s)
	}
	return s
}

func newID() string {
	return xid.New().String()
}

func (s *Store) ValidID(id string) bool {
	_, err := xid.FromString(id)
	return err == nil
}

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) Close(_ context.Context) error { return nil }

func (s *Store) CreateUser(_ context.Context, u *storage.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == u.Email {
			return storage.ErrDuplicate
		}
	}

	now := s.now().UTC()
	u.ID, u.CreatedAt, u.UpdatedAt = newID(), now, now
	if u.Tokens == nil {
		u.Tokens = []string{}
	}
	cp := cloneUser(*u)
	s.users[u.ID] = &cp
	return nil
}

func cloneUser(u storage.User) storage.User {
	u.Tokens = append([]string{}, u.Tokens...)
	if u.Avatar != nil {
		avatar := *u.Avatar
		u.Avatar = &avatar
	}
	return u
}

func (s *Store) UserByID(_ context.Context, id string) (storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return storage.User{}, storage.ErrNotFound
	}
	return cloneUser(*u), nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Email == email {
			return cloneUser(*u), nil
		}
	}
	return storage.User{}, storage.ErrNotFound
}

func (s *Store) UsersByIDs(_ context.Context, ids []string) ([]storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var users []storage.User
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			users = append(users, cloneUser(*u))
		}
	}
	return users, nil
}

// updateUser applies fn to the stored user under the write lock
func (s *Store) updateUser(id string, fn func(u *storage.User) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	if err := fn(u); err != nil {
		return err
	}
	u.UpdatedAt = s.now().UTC()
	return nil
}

func (s *Store) SetVerified(_ context.Context, id string) error {
	return s.updateUser(id, func(u *storage.User) error {
		u.Verified = true
		return nil
	})
}

func (s *Store) UpdateName(_ context.Context, id, name string) error {
	return s.updateUser(id, func(u *storage.User) error {
		u.Name = name
		return nil
	})
}

func (s *Store) SetAvatar(_ context.Context, id string, avatar storage.Image) error {
	return s.updateUser(id, func(u *storage.User) error {
		u.Avatar = &avatar
		return nil
	})
}

func (s *Store) SetPassword(_ context.Context, id, hash string) error {
	return s.updateUser(id, func(u *storage.User) error {
		u.Password = hash
		u.Tokens = []string{}
		return nil
	})
}

func (s *Store) AddRefreshToken(_ context.Context, id, token string) error {
	return s.updateUser(id, func(u *storage.User) error {
		u.Tokens = append(u.Tokens, token)
		return nil
	})
}

func indexOf(list []string, v string) int {
	for i, item := range list {
		if item == v {
			return i
		}
	}
	return -1
}

func (s *Store) ReplaceRefreshToken(_ context.Context, id, old, new string) error {
	return s.updateUser(id, func(u *storage.User) error {
		i := indexOf(u.Tokens, old)
		if i < 0 {
			return storage.ErrNotFound
		}
		u.Tokens[i] = new
		return nil
	})
}

func (s *Store) RemoveRefreshToken(_ context.Context, id, token string) error {
	return s.updateUser(id, func(u *storage.User) error {
		i := indexOf(u.Tokens, token)
		if i < 0 {
			return storage.ErrNotFound
		}
		u.Tokens = append(u.Tokens[:i], u.Tokens[i+1:]...)
		return nil
	})
}

func (s *Store) ClearRefreshTokens(_ context.Context, id string) error {
	return s.updateUser(id, func(u *storage.User) error {
		u.Tokens = []string{}
		return nil
	})
}

func (s *Store) PutToken(_ context.Context, kind storage.TokenKind, owner, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[owner]; !ok {
		return storage.ErrNotFound
	}
	s.tokens[tokenKey{kind, owner}] = storage.Token{Owner: owner, Hash: hash, CreatedAt: s.now().UTC()}
	return nil
}

func (s *Store) TokenByOwner(_ context.Context, kind storage.TokenKind, owner string) (storage.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[tokenKey{kind, owner}]
	if !ok || !s.now().Before(t.CreatedAt.Add(storage.TokenTTL)) {
		return storage.Token{}, storage.ErrNotFound
	}
	return t, nil
}

func (s *Store) DeleteToken(_ context.Context, kind storage.TokenKind, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, tokenKey{kind, owner})
	return nil
}

func (s *Store) UpsertConversation(_ context.Context, a, b string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storage.ParticipantsKey(a, b)
	if id, ok := s.byKey[key]; ok {
		return id, nil
	}

	now := s.now().UTC()
	c := &storage.Conversation{
		ID:             newID(),
		Participants:   []string{a, b},
		ParticipantsID: key,
		Chats:          []storage.Chat{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.conversations[c.ID] = c
	s.byKey[key] = c.ID
	return c.ID, nil
}

func participates(c *storage.Conversation, ids ...string) bool {
	for _, id := range ids {
		if indexOf(c.Participants, id) < 0 {
			return false
		}
	}
	return true
}

func (s *Store) AppendChat(_ context.Context, conversationID string, chat *storage.Chat) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationID]
	if !ok || !participates(c, chat.SentBy) {
		return nil, storage.ErrNotFound
	}

	chat.ID = newID()
	if chat.Timestamp.IsZero() {
		chat.Timestamp = s.now().UTC()
	}
	c.Chats = append(c.Chats, *chat)
	c.UpdatedAt = s.now().UTC()

	return append([]string{}, c.Participants...), nil
}

func (s *Store) ChatPage(_ context.Context, conversationID, member string, page storage.Page) (storage.ChatPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[conversationID]
	if !ok || !participates(c, member) {
		return storage.ChatPage{}, storage.ErrNotFound
	}

	start, end := page.Bounds(len(c.Chats))
	cp := storage.ChatPage{
		Conversation: *c,
		Start:        start,
		Total:        len(c.Chats),
	}
	cp.Participants = append([]string{}, c.Participants...)
	cp.Chats = append([]storage.Chat{}, c.Chats[start:end]...)
	return cp, nil
}

func (s *Store) MarkSeen(_ context.Context, conversationID, peerID, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationID]
	if !ok || !participates(c, peerID, member) {
		return storage.ErrNotFound
	}
	for i := range c.Chats {
		if c.Chats[i].SentBy == peerID {
			c.Chats[i].Viewed = true
		}
	}
	return nil
}

func (s *Store) Inbox(_ context.Context, userID string) ([]storage.InboxEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := []storage.InboxEntry{}
	for _, c := range s.conversations {
		if len(c.Chats) == 0 || !participates(c, userID) {
			continue
		}
		peerID := c.Participants[0]
		if peerID == userID {
			peerID = c.Participants[1]
		}
		peer, ok := s.users[peerID]
		if !ok {
			continue
		}

		last := c.Chats[len(c.Chats)-1]
		e := storage.InboxEntry{
			ConversationID: c.ID,
			Peer:           peer.Profile(),
			LastMessage:    last.Content,
			Timestamp:      last.Timestamp,
		}
		for _, chat := range c.Chats {
			if !chat.Viewed && chat.SentBy != userID {
				e.UnreadCount++
			}
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.After(entries[j].Timestamp)
		}
		return entries[i].ConversationID < entries[j].ConversationID
	})
	return entries, nil
}
