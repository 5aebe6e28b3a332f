package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/jackc/pgtype"
	"marketplace-api/internal/storage"
	"time"
)

// chatDoc is the jsonb element shape of conversations.chats
type chatDoc struct {
	ID        string    `json:"id"`
	SentBy    string    `json:"sentBy"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Viewed    bool      `json:"viewed"`
}

// UpsertConversation inserts the conversation unless one with the same participants key exists and returns its id
func (s *Store) UpsertConversation(ctx context.Context, a, b string) (string, error) {
	key := storage.ParticipantsKey(a, b)
	s.logger.Debugf("Upserting conversation (%s)", key)

	var id string
	sql := `insert into conversations (id, participants, participants_id, chats, created_at, updated_at)
			values ($1, $2, $3, '[]', $4, $4)
			on conflict (participants_id) do nothing
			returning id`
	err := s.db.QueryRow(ctx, sql, newID(), []string{a, b}, key, time.Now().UTC()).Scan(&id)
	switch err = translate(err); {
	case err == nil:
		s.logger.Debugf("Created conversation (%s) with id %s", key, id)
		return id, nil
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrDuplicate):
		// a concurrent or earlier insert holds the key
	default:
		return "", err
	}

	err = s.db.QueryRow(ctx, "select id from conversations where participants_id = $1", key).Scan(&id)
	if err != nil {
		return "", translate(err)
	}

	return id, nil
}

func (s *Store) AppendChat(ctx context.Context, conversationID string, chat *storage.Chat) ([]string, error) {
	s.logger.Debugf("Appending chat from user (id: %s) to conversation (id: %s)", chat.SentBy, conversationID)

	chat.ID = newID()
	if chat.Timestamp.IsZero() {
		chat.Timestamp = time.Now().UTC()
	}
	doc, err := json.Marshal(chatDoc{
		ID:        chat.ID,
		SentBy:    chat.SentBy,
		Content:   chat.Content,
		Timestamp: chat.Timestamp,
		Viewed:    chat.Viewed,
	})
	if err != nil {
		return nil, err
	}

	var participants []string
	sql := `update conversations
			   set chats = chats || jsonb_build_array($3::jsonb), updated_at = $4
			 where id = $1 and $2 = any(participants)
			returning participants`
	err = s.db.QueryRow(ctx, sql, conversationID, chat.SentBy, string(doc), time.Now().UTC()).Scan(&participants)
	if err != nil {
		return nil, translate(err)
	}

	return participants, nil
}

// ChatPage loads the conversation header first and then only the requested slice of chats
func (s *Store) ChatPage(ctx context.Context, conversationID, member string, page storage.Page) (storage.ChatPage, error) {
	s.logger.Debugf("Retrieving chats of conversation (id: %s) for user (id: %s)", conversationID, member)

	var (
		cp    storage.ChatPage
		total int
	)
	sql := `select id, participants, participants_id, created_at, updated_at, jsonb_array_length(chats)
			  from conversations
			 where id = $1 and $2 = any(participants)`
	err := s.db.QueryRow(ctx, sql, conversationID, member).
		Scan(&cp.ID, &cp.Participants, &cp.ParticipantsID, &cp.CreatedAt, &cp.UpdatedAt, &total)
	if err != nil {
		return storage.ChatPage{}, translate(err)
	}

	start, end := page.Bounds(total)
	cp.Start, cp.Total = start, total
	if start == end {
		return cp, nil
	}

	// ordinality is 1-based
	var chats pgtype.JSONB
	sql = `select coalesce(jsonb_agg(t.elem order by t.idx), '[]'::jsonb)
			 from conversations c,
				  jsonb_array_elements(c.chats) with ordinality as t(elem, idx)
			where c.id = $1 and t.idx > $2 and t.idx <= $3`
	if err := s.db.QueryRow(ctx, sql, conversationID, start, end).Scan(&chats); err != nil {
		return storage.ChatPage{}, translate(err)
	}

	var docs []chatDoc
	if err := chats.AssignTo(&docs); err != nil {
		return storage.ChatPage{}, err
	}
	cp.Chats = make([]storage.Chat, len(docs))
	for i, d := range docs {
		cp.Chats[i] = storage.Chat(d)
	}

	s.logger.Debugf("Retrieved %d of %d chats", len(cp.Chats), total)

	return cp, nil
}

// MarkSeen rewrites the chats array in a single statement flipping viewed on every chat sent by peerID
func (s *Store) MarkSeen(ctx context.Context, conversationID, peerID, member string) error {
	s.logger.Debugf("Marking chats from user (id: %s) seen in conversation (id: %s)", peerID, conversationID)

	sql := `update conversations c
			   set chats = (
					select coalesce(jsonb_agg(
							   case when t.elem->>'sentBy' = $2
									then jsonb_set(t.elem, '{viewed}', 'true'::jsonb)
									else t.elem end
							   order by t.idx), '[]'::jsonb)
					  from jsonb_array_elements(c.chats) with ordinality as t(elem, idx)
			   )
			 where c.id = $1 and $2 = any(c.participants) and $3 = any(c.participants)`
	return expectRow(s.db.Exec(ctx, sql, conversationID, peerID, member))
}

// Inbox returns one entry per non-empty conversation of userID, latest activity first
func (s *Store) Inbox(ctx context.Context, userID string) ([]storage.InboxEntry, error) {
	s.logger.Debugf("Retrieving inbox for user (id: %s)", userID)

	sql := ` -- last chat and unread count per conversation
			select c.id,
				   peer.id,
				   peer.name,
				   coalesce(peer.avatar_url, ''),
				   c.chats -> -1 ->> 'content',
				   (c.chats -> -1 ->> 'timestamp')::timestamptz as last_at,
				   unread.n
			  from conversations c
			  join users peer
				on peer.id = case when c.participants[1] = $1 then c.participants[2] else c.participants[1] end
			 cross join lateral (
					select count(*) as n
					  from jsonb_array_elements(c.chats) e
					 where (e->>'viewed')::boolean = false and e->>'sentBy' <> $1
			 ) unread
			 where $1 = any(c.participants) and jsonb_array_length(c.chats) > 0
			 order by last_at desc, c.id collate "C"`

	rows, err := s.db.Query(ctx, sql, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []storage.InboxEntry{}
	for rows.Next() {
		var (
			e      storage.InboxEntry
			unread int64
		)
		err = rows.Scan(&e.ConversationID, &e.Peer.ID, &e.Peer.Name, &e.Peer.Avatar, &e.LastMessage, &e.Timestamp, &unread)
		if err != nil {
			return nil, err
		}
		e.UnreadCount = int(unread)
		entries = append(entries, e)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	s.logger.Debugf("Retrieved %d inbox entries", len(entries))

	return entries, nil
}
