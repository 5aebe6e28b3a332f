package mongo

import (
	"context"
	"errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"marketplace-api/internal/storage"
)

// UpsertConversation finds the conversation by participants key, inserting it when absent
// A duplicate key error means a concurrent upsert won the race, so the winner is re-read
func (s *Store) UpsertConversation(ctx context.Context, a, b string) (string, error) {
	key := storage.ParticipantsKey(a, b)
	s.logger.Debugf("Upserting conversation (%s)", key)

	oa, err := objectID(a)
	if err != nil {
		return "", err
	}
	ob, err := objectID(b)
	if err != nil {
		return "", err
	}

	t := now()
	filter := bson.M{"participantsId": key}
	update := bson.M{"$setOnInsert": bson.M{
		"participants": []primitive.ObjectID{oa, ob},
		"chats":        bson.A{},
		"createdAt":    t,
		"updatedAt":    t,
	}}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After).
		SetProjection(bson.M{"_id": 1})

	var doc conversationDoc
	err = s.collection(conversationsCollection).FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		s.logger.Debugf("Conversation (%s) created concurrently, re-reading", key)
		err = s.collection(conversationsCollection).
			FindOne(ctx, filter, options.FindOne().SetProjection(bson.M{"_id": 1})).
			Decode(&doc)
	}
	if err != nil {
		return "", translate(err)
	}

	return doc.ID.Hex(), nil
}

func (s *Store) AppendChat(ctx context.Context, conversationID string, chat *storage.Chat) ([]string, error) {
	s.logger.Debugf("Appending chat from user (id: %s) to conversation (id: %s)", chat.SentBy, conversationID)

	cid, err := objectID(conversationID)
	if err != nil {
		return nil, err
	}
	sender, err := objectID(chat.SentBy)
	if err != nil {
		return nil, err
	}

	doc := chatDoc{
		ID:        primitive.NewObjectID(),
		SentBy:    sender,
		Content:   chat.Content,
		Timestamp: chat.Timestamp.UTC().Truncate(timePrecision),
		Viewed:    chat.Viewed,
	}
	if chat.Timestamp.IsZero() {
		doc.Timestamp = now()
	}

	var conv conversationDoc
	err = s.collection(conversationsCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": cid, "participants": sender},
		bson.M{"$push": bson.M{"chats": doc}, "$set": bson.M{"updatedAt": now()}},
		options.FindOneAndUpdate().SetProjection(bson.M{"participants": 1}),
	).Decode(&conv)
	if err != nil {
		return nil, translate(err)
	}

	chat.ID, chat.Timestamp = doc.ID.Hex(), doc.Timestamp

	return hexes(conv.Participants), nil
}

// ChatPage reads the chat count through an aggregation and then projects only the requested slice
func (s *Store) ChatPage(ctx context.Context, conversationID, member string, page storage.Page) (storage.ChatPage, error) {
	s.logger.Debugf("Retrieving chats of conversation (id: %s) for user (id: %s)", conversationID, member)

	cid, err := objectID(conversationID)
	if err != nil {
		return storage.ChatPage{}, err
	}
	mid, err := objectID(member)
	if err != nil {
		return storage.ChatPage{}, err
	}

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"_id": cid, "participants": mid}}},
		bson.D{{Key: "$project", Value: bson.M{
			"participants":   1,
			"participantsId": 1,
			"createdAt":      1,
			"updatedAt":      1,
			"total":          bson.M{"$size": "$chats"},
		}}},
	}
	cur, err := s.collection(conversationsCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return storage.ChatPage{}, err
	}
	var headers []conversationDoc
	if err := cur.All(ctx, &headers); err != nil {
		return storage.ChatPage{}, err
	}
	if len(headers) == 0 {
		return storage.ChatPage{}, storage.ErrNotFound
	}
	h := headers[0]

	start, end := page.Bounds(h.Total)
	cp := storage.ChatPage{
		Conversation: storage.Conversation{
			ID:             h.ID.Hex(),
			Participants:   hexes(h.Participants),
			ParticipantsID: h.ParticipantsID,
			Chats:          []storage.Chat{},
			CreatedAt:      h.CreatedAt,
			UpdatedAt:      h.UpdatedAt,
		},
		Start: start,
		Total: h.Total,
	}
	if start == end {
		return cp, nil
	}

	var doc conversationDoc
	opts := options.FindOne().SetProjection(bson.M{"chats": bson.M{"$slice": bson.A{start, end - start}}})
	if err := s.collection(conversationsCollection).FindOne(ctx, bson.M{"_id": cid}, opts).Decode(&doc); err != nil {
		return storage.ChatPage{}, translate(err)
	}

	cp.Chats = make([]storage.Chat, len(doc.Chats))
	for i, c := range doc.Chats {
		cp.Chats[i] = c.chat()
	}

	s.logger.Debugf("Retrieved %d of %d chats", len(cp.Chats), h.Total)

	return cp, nil
}

// MarkSeen flips viewed on chats sent by peerID through an array filter
func (s *Store) MarkSeen(ctx context.Context, conversationID, peerID, member string) error {
	s.logger.Debugf("Marking chats from user (id: %s) seen in conversation (id: %s)", peerID, conversationID)

	cid, err := objectID(conversationID)
	if err != nil {
		return err
	}
	pid, err := objectID(peerID)
	if err != nil {
		return err
	}
	mid, err := objectID(member)
	if err != nil {
		return err
	}

	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{bson.M{"elem.sentBy": pid}},
	})
	return matched(s.collection(conversationsCollection).UpdateOne(ctx,
		bson.M{"_id": cid, "participants": bson.M{"$all": bson.A{mid, pid}}},
		bson.M{"$set": bson.M{"chats.$[elem].viewed": true}},
		opts,
	))
}

// Inbox aggregates one entry per non-empty conversation of userID, latest activity first
func (s *Store) Inbox(ctx context.Context, userID string) ([]storage.InboxEntry, error) {
	s.logger.Debugf("Retrieving inbox for user (id: %s)", userID)

	uid, err := objectID(userID)
	if err != nil {
		return nil, err
	}

	unread := bson.M{"$filter": bson.M{
		"input": "$chats",
		"as":    "chat",
		"cond": bson.M{"$and": bson.A{
			bson.M{"$eq": bson.A{"$$chat.viewed", false}},
			bson.M{"$ne": bson.A{"$$chat.sentBy", uid}},
		}},
	}}
	peer := bson.M{"$filter": bson.M{
		"input": "$participants",
		"as":    "p",
		"cond":  bson.M{"$ne": bson.A{"$$p", uid}},
	}}

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"participants": uid, "chats.0": bson.M{"$exists": true}}}},
		bson.D{{Key: "$project", Value: bson.M{
			"lastChat":    bson.M{"$arrayElemAt": bson.A{"$chats", -1}},
			"unreadCount": bson.M{"$size": unread},
			"peerId":      bson.M{"$arrayElemAt": bson.A{peer, 0}},
		}}},
		bson.D{{Key: "$lookup", Value: bson.M{
			"from":         usersCollection,
			"localField":   "peerId",
			"foreignField": "_id",
			"as":           "peer",
		}}},
		bson.D{{Key: "$unwind", Value: "$peer"}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "lastChat.timestamp", Value: -1}, {Key: "_id", Value: 1}}}},
		bson.D{{Key: "$project", Value: bson.M{
			"lastMessage": "$lastChat.content",
			"timestamp":   "$lastChat.timestamp",
			"unreadCount": 1,
			"peer": bson.M{
				"_id":    "$peer._id",
				"name":   "$peer.name",
				"avatar": "$peer.avatar.url",
			},
		}}},
	}

	cur, err := s.collection(conversationsCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	var docs []inboxDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	entries := make([]storage.InboxEntry, len(docs))
	for i, d := range docs {
		entries[i] = storage.InboxEntry{
			ConversationID: d.ID.Hex(),
			Peer:           storage.Profile{ID: d.Peer.ID.Hex(), Name: d.Peer.Name, Avatar: d.Peer.Avatar},
			LastMessage:    d.LastMessage,
			Timestamp:      d.Timestamp,
			UnreadCount:    d.UnreadCount,
		}
	}

	s.logger.Debugf("Retrieved %d inbox entries", len(entries))

	return entries, nil
}

// isNotFound reports whether err means no document matched
func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
