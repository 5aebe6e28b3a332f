// Package storetest is a conformance suite run against every storage backend.
package storetest

import (
	"context"
	"errors"
	"github.com/stretchr/testify/require"
	"marketplace-api/internal/storage"
	tt "marketplace-api/internal/testing"
	"sort"
	"sync"
	"testing"
	"time"
)

// Run executes the suite against s, which must be connected to an isolated database
func Run(t *testing.T, s storage.Store) {
	t.Run("Users", func(t *testing.T) { testUsers(t, s) })
	t.Run("RefreshTokens", func(t *testing.T) { testRefreshTokens(t, s) })
	t.Run("Tokens", func(t *testing.T) { testTokens(t, s) })
	t.Run("UpsertConversation", func(t *testing.T) { testUpsertConversation(t, s) })
	t.Run("ConcurrentFirstContact", func(t *testing.T) { testConcurrentFirstContact(t, s) })
	t.Run("AppendAndFetch", func(t *testing.T) { testAppendAndFetch(t, s) })
	t.Run("MarkSeen", func(t *testing.T) { testMarkSeen(t, s) })
	t.Run("Inbox", func(t *testing.T) { testInbox(t, s) })
	t.Run("InboxManyPeers", func(t *testing.T) { testInboxManyPeers(t, s) })
	t.Run("InboxTies", func(t *testing.T) { testInboxTies(t, s) })
	t.Run("ChatPage", func(t *testing.T) { testChatPage(t, s) })
	t.Run("ProductImages", func(t *testing.T) { testProductImages(t, s) })
	t.Run("ProductListing", func(t *testing.T) { testProductListing(t, s) })
}

func createUser(t *testing.T, s storage.Store) storage.User {
	t.Helper()

	id := tt.NewIdentity()
	u := storage.User{Name: id.Name, Email: id.Email, Password: "hash"}
	require.NoError(t, s.CreateUser(context.Background(), &u))
	require.True(t, s.ValidID(u.ID))
	return u
}

func testUsers(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := createUser(t, s)

	got, err := s.UserByEmail(ctx, u.Email)
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.False(t, got.Verified)
	require.Nil(t, got.Avatar)

	dup := storage.User{Name: "Dup", Email: u.Email, Password: "hash"}
	require.True(t, errors.Is(s.CreateUser(ctx, &dup), storage.ErrDuplicate))

	require.NoError(t, s.SetVerified(ctx, u.ID))
	require.NoError(t, s.UpdateName(ctx, u.ID, "Renamed"))
	require.NoError(t, s.SetAvatar(ctx, u.ID, storage.Image{ID: "avatar-1", URL: "https://cdn/avatar-1.jpg"}))

	got, err = s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, got.Verified)
	require.Equal(t, "Renamed", got.Name)
	require.Equal(t, &storage.Image{ID: "avatar-1", URL: "https://cdn/avatar-1.jpg"}, got.Avatar)

	other := createUser(t, s)
	users, err := s.UsersByIDs(ctx, []string{u.ID, other.ID})
	require.NoError(t, err)
	require.Len(t, users, 2)

	_, err = s.UserByEmail(ctx, "nobody-"+tt.RandString()+"@example.com")
	require.True(t, errors.Is(err, storage.ErrNotFound))
}

func testRefreshTokens(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := createUser(t, s)

	require.NoError(t, s.AddRefreshToken(ctx, u.ID, "r1"))
	require.NoError(t, s.AddRefreshToken(ctx, u.ID, "r2"))
	require.NoError(t, s.ReplaceRefreshToken(ctx, u.ID, "r1", "r3"))
	require.True(t, errors.Is(s.ReplaceRefreshToken(ctx, u.ID, "r1", "r4"), storage.ErrNotFound))

	got, err := s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"r2", "r3"}, got.Tokens)

	require.NoError(t, s.RemoveRefreshToken(ctx, u.ID, "r2"))
	require.True(t, errors.Is(s.RemoveRefreshToken(ctx, u.ID, "r2"), storage.ErrNotFound))

	require.NoError(t, s.SetPassword(ctx, u.ID, "new-hash"))
	got, err = s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "new-hash", got.Password)
	require.Empty(t, got.Tokens)

	require.NoError(t, s.AddRefreshToken(ctx, u.ID, "r5"))
	require.NoError(t, s.ClearRefreshTokens(ctx, u.ID))
	got, err = s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Empty(t, got.Tokens)
}

func testTokens(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := createUser(t, s)

	_, err := s.TokenByOwner(ctx, storage.TokenVerification, u.ID)
	require.True(t, errors.Is(err, storage.ErrNotFound))

	require.NoError(t, s.PutToken(ctx, storage.TokenVerification, u.ID, "h1"))
	require.NoError(t, s.PutToken(ctx, storage.TokenVerification, u.ID, "h2"))
	require.NoError(t, s.PutToken(ctx, storage.TokenPasswordReset, u.ID, "p1"))

	tok, err := s.TokenByOwner(ctx, storage.TokenVerification, u.ID)
	require.NoError(t, err)
	require.Equal(t, "h2", tok.Hash)
	require.Equal(t, u.ID, tok.Owner)

	require.NoError(t, s.DeleteToken(ctx, storage.TokenVerification, u.ID))
	_, err = s.TokenByOwner(ctx, storage.TokenVerification, u.ID)
	require.True(t, errors.Is(err, storage.ErrNotFound))

	tok, err = s.TokenByOwner(ctx, storage.TokenPasswordReset, u.ID)
	require.NoError(t, err)
	require.Equal(t, "p1", tok.Hash)
}

func testUpsertConversation(t *testing.T, s storage.Store) {
	ctx := context.Background()
	a, b := createUser(t, s), createUser(t, s)

	ids := []string{a.ID, b.ID}
	first, err := s.UpsertConversation(ctx, ids[0], ids[1])
	require.NoError(t, err)

	reversed := tt.ReverseIDs(ids)
	second, err := s.UpsertConversation(ctx, reversed[0], reversed[1])
	require.NoError(t, err)
	require.Equal(t, first, second)

	page, err := s.ChatPage(ctx, first, a.ID, storage.Page{})
	require.NoError(t, err)
	require.Equal(t, storage.ParticipantsKey(a.ID, b.ID), page.ParticipantsID)
	require.Equal(t, ids, page.Participants)
	require.Empty(t, page.Chats)
}

func testConcurrentFirstContact(t *testing.T, s storage.Store) {
	ctx := context.Background()
	a, b := createUser(t, s), createUser(t, s)

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[string]struct{}{}
		errs []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			x, y := a.ID, b.ID
			if i%2 == 1 {
				x, y = y, x
			}
			id, err := s.UpsertConversation(ctx, x, y)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			seen[id] = struct{}{}
		}(i)
	}
	wg.Wait()

	require.Empty(t, errs)
	require.Len(t, seen, 1)
}

func testAppendAndFetch(t *testing.T, s storage.Store) {
	ctx := context.Background()
	a, b, stranger := createUser(t, s), createUser(t, s), createUser(t, s)

	id, err := s.UpsertConversation(ctx, a.ID, b.ID)
	require.NoError(t, err)

	chat := storage.Chat{SentBy: a.ID, Content: "Is it still available?", Timestamp: time.Now()}
	participants, err := s.AppendChat(ctx, id, &chat)
	require.NoError(t, err)
	require.NotEmpty(t, chat.ID)
	require.ElementsMatch(t, []string{a.ID, b.ID}, participants)

	page, err := s.ChatPage(ctx, id, b.ID, storage.Page{})
	require.NoError(t, err)
	require.Len(t, page.Chats, 1)
	require.Equal(t, chat.ID, page.Chats[0].ID)
	require.Equal(t, a.ID, page.Chats[0].SentBy)
	require.Equal(t, "Is it still available?", page.Chats[0].Content)
	require.False(t, page.Chats[0].Viewed)
	require.WithinDuration(t, chat.Timestamp, page.Chats[0].Timestamp, time.Second)

	intruder := storage.Chat{SentBy: stranger.ID, Content: "hi", Timestamp: time.Now()}
	_, err = s.AppendChat(ctx, id, &intruder)
	require.True(t, errors.Is(err, storage.ErrNotFound))

	_, err = s.ChatPage(ctx, id, stranger.ID, storage.Page{})
	require.True(t, errors.Is(err, storage.ErrNotFound))

	absent := createUser(t, s).ID
	_, err = s.ChatPage(ctx, absent, a.ID, storage.Page{})
	require.True(t, errors.Is(err, storage.ErrNotFound))
}

func appendChats(t *testing.T, s storage.Store, id string, from string, contents ...string) {
	t.Helper()
	for _, c := range contents {
		chat := storage.Chat{SentBy: from, Content: c, Timestamp: time.Now()}
		_, err := s.AppendChat(context.Background(), id, &chat)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}
}

func testMarkSeen(t *testing.T, s storage.Store) {
	ctx := context.Background()
	a, b, stranger := createUser(t, s), createUser(t, s), createUser(t, s)

	id, err := s.UpsertConversation(ctx, a.ID, b.ID)
	require.NoError(t, err)
	appendChats(t, s, id, a.ID, "one", "two")
	appendChats(t, s, id, b.ID, "three")

	require.True(t, errors.Is(s.MarkSeen(ctx, id, a.ID, stranger.ID), storage.ErrNotFound))

	require.NoError(t, s.MarkSeen(ctx, id, a.ID, b.ID))
	require.NoError(t, s.MarkSeen(ctx, id, a.ID, b.ID))

	page, err := s.ChatPage(ctx, id, b.ID, storage.Page{})
	require.NoError(t, err)
	require.Len(t, page.Chats, 3)
	for _, c := range page.Chats {
		require.Equal(t, c.SentBy == a.ID, c.Viewed, c.Content)
	}
}

func testInbox(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u1, u2, u3 := createUser(t, s), createUser(t, s), createUser(t, s)

	c12, err := s.UpsertConversation(ctx, u1.ID, u2.ID)
	require.NoError(t, err)
	c13, err := s.UpsertConversation(ctx, u3.ID, u1.ID)
	require.NoError(t, err)
	_, err = s.UpsertConversation(ctx, u2.ID, u3.ID)
	require.NoError(t, err)

	appendChats(t, s, c12, u1.ID, "hi")
	appendChats(t, s, c12, u2.ID, "hello", "still there?")
	appendChats(t, s, c13, u3.ID, "latest")

	inbox, err := s.Inbox(ctx, u1.ID)
	require.NoError(t, err)
	require.Len(t, inbox, 2)
	require.True(t, sort.SliceIsSorted(inbox, func(i, j int) bool {
		return inbox[i].Timestamp.After(inbox[j].Timestamp)
	}))

	require.Equal(t, c13, inbox[0].ConversationID)
	require.Equal(t, u3.ID, inbox[0].Peer.ID)
	require.Equal(t, u3.Name, inbox[0].Peer.Name)
	require.Equal(t, "latest", inbox[0].LastMessage)
	require.Equal(t, 1, inbox[0].UnreadCount)

	require.Equal(t, c12, inbox[1].ConversationID)
	require.Equal(t, u2.ID, inbox[1].Peer.ID)
	require.Equal(t, "still there?", inbox[1].LastMessage)
	require.Equal(t, 2, inbox[1].UnreadCount)

	require.NoError(t, s.MarkSeen(ctx, c12, u2.ID, u1.ID))
	inbox, err = s.Inbox(ctx, u1.ID)
	require.NoError(t, err)
	for _, e := range inbox {
		if e.ConversationID == c12 {
			require.Zero(t, e.UnreadCount)
		}
	}

	inbox, err = s.Inbox(ctx, u2.ID)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	require.Equal(t, 1, inbox[0].UnreadCount)

	empty := createUser(t, s)
	inbox, err = s.Inbox(ctx, empty.ID)
	require.NoError(t, err)
	require.Empty(t, inbox)
}

func testInboxManyPeers(t *testing.T, s storage.Store) {
	ctx := context.Background()
	ids := make([]string, 6)
	for i := range ids {
		ids[i] = createUser(t, s).ID
	}

	for _, pair := range tt.BatchUserIDs(ids) {
		id, err := s.UpsertConversation(ctx, pair[1], pair[0])
		require.NoError(t, err)
		appendChats(t, s, id, pair[1], "from "+pair[1])
	}

	inbox, err := s.Inbox(ctx, ids[0])
	require.NoError(t, err)
	require.Len(t, inbox, len(ids)-1)
	// the last peer wrote last
	require.Equal(t, ids[len(ids)-1], inbox[0].Peer.ID)
	for _, e := range inbox {
		require.Equal(t, "from "+e.Peer.ID, e.LastMessage)
		require.Equal(t, 1, e.UnreadCount)
	}

	inbox, err = s.Inbox(ctx, ids[1])
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	require.Zero(t, inbox[0].UnreadCount)
}

func testInboxTies(t *testing.T, s storage.Store) {
	ctx := context.Background()
	owner := createUser(t, s)
	at := time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC)

	ids := make([]string, 8)
	for i := range ids {
		peer := createUser(t, s)
		id, err := s.UpsertConversation(ctx, owner.ID, peer.ID)
		require.NoError(t, err)
		chat := storage.Chat{SentBy: peer.ID, Content: "same time", Timestamp: at}
		_, err = s.AppendChat(ctx, id, &chat)
		require.NoError(t, err)
		ids[i] = id
	}
	sort.Strings(ids)

	for i := 0; i < 50; i++ {
		inbox, err := s.Inbox(ctx, owner.ID)
		require.NoError(t, err)
		require.Len(t, inbox, len(ids))
		got := make([]string, len(inbox))
		for j, e := range inbox {
			require.True(t, at.Equal(e.Timestamp))
			got[j] = e.ConversationID
		}
		require.Equal(t, ids, got)
	}
}

func testChatPage(t *testing.T, s storage.Store) {
	ctx := context.Background()
	a, b := createUser(t, s), createUser(t, s)

	id, err := s.UpsertConversation(ctx, a.ID, b.ID)
	require.NoError(t, err)
	appendChats(t, s, id, a.ID, "0", "1", "2", "3", "4", "5", "6")

	page, err := s.ChatPage(ctx, id, a.ID, storage.Page{Limit: 3})
	require.NoError(t, err)
	require.Equal(t, 7, page.Total)
	require.Equal(t, 4, page.Start)
	require.Equal(t, []string{"4", "5", "6"}, contents(page.Chats))

	page, err = s.ChatPage(ctx, id, a.ID, storage.Page{Limit: 3, Before: page.Start})
	require.NoError(t, err)
	require.Equal(t, 1, page.Start)
	require.Equal(t, []string{"1", "2", "3"}, contents(page.Chats))

	page, err = s.ChatPage(ctx, id, a.ID, storage.Page{Limit: 3, Before: page.Start})
	require.NoError(t, err)
	require.Equal(t, 0, page.Start)
	require.Equal(t, []string{"0"}, contents(page.Chats))
}

func contents(chats []storage.Chat) []string {
	out := make([]string, len(chats))
	for i, c := range chats {
		out[i] = c.Content
	}
	return out
}

func images(prefix string, n int) []storage.Image {
	out := make([]storage.Image, n)
	for i := range out {
		id := prefix + tt.RandStringN(6)
		out[i] = storage.Image{ID: id, URL: "https://cdn/" + id + ".jpg"}
	}
	return out
}

func newProduct(t *testing.T, s storage.Store, owner string, category string, imgs []storage.Image) storage.Product {
	t.Helper()
	p := storage.Product{
		Owner:          owner,
		Name:           tt.ProductName(),
		Price:          99.5,
		PurchasingDate: time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC),
		Category:       category,
		Images:         imgs,
		Description:    tt.Sentence(),
	}
	require.NoError(t, s.CreateProduct(context.Background(), &p))
	return p
}

func testProductImages(t *testing.T, s storage.Store) {
	ctx := context.Background()
	owner, other := createUser(t, s), createUser(t, s)

	p := newProduct(t, s, owner.ID, "Electronics", images("a", 3))
	require.Equal(t, p.Images[0].URL, p.Thumbnail)

	_, err := s.PushImages(ctx, p.ID, owner.ID, images("b", 3))
	require.True(t, errors.Is(err, storage.ErrImageLimit))

	_, err = s.PushImages(ctx, p.ID, other.ID, images("b", 1))
	require.True(t, errors.Is(err, storage.ErrNotFound))

	got, err := s.PushImages(ctx, p.ID, owner.ID, images("b", 2))
	require.NoError(t, err)
	require.Len(t, got.Images, storage.MaxProductImages)

	_, err = s.PushImages(ctx, p.ID, owner.ID, images("c", 1))
	require.True(t, errors.Is(err, storage.ErrImageLimit))

	_, err = s.PullImage(ctx, p.ID, owner.ID, "missing")
	require.True(t, errors.Is(err, storage.ErrNotFound))

	for _, img := range got.Images[:4] {
		_, err = s.PullImage(ctx, p.ID, owner.ID, img.ID)
		require.NoError(t, err)
	}
	_, err = s.PullImage(ctx, p.ID, owner.ID, got.Images[4].ID)
	require.True(t, errors.Is(err, storage.ErrImageLimit))

	left, err := s.OwnedProduct(ctx, p.ID, owner.ID)
	require.NoError(t, err)
	require.Equal(t, []storage.Image{got.Images[4]}, left.Images)

	require.NoError(t, s.SetThumbnail(ctx, p.ID, owner.ID, left.Images[0].URL))
	_, err = s.OwnedProduct(ctx, p.ID, other.ID)
	require.True(t, errors.Is(err, storage.ErrNotFound))
}

func testProductListing(t *testing.T, s storage.Store) {
	ctx := context.Background()
	owner := createUser(t, s)
	category := "Cat" + tt.RandString()

	var created []storage.Product
	for i := 0; i < 3; i++ {
		created = append(created, newProduct(t, s, owner.ID, category, images("l", 1)))
		time.Sleep(2 * time.Millisecond)
	}

	list, err := s.ProductsByCategory(ctx, category, storage.ListOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, created[2].ID, list[0].ID)
	require.Equal(t, created[1].ID, list[1].ID)

	list, err = s.ProductsByCategory(ctx, category, storage.ListOptions{Skip: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, created[0].ID, list[0].ID)
	require.Len(t, list[0].Images, 1)

	mine, err := s.ProductsByOwner(ctx, owner.ID, storage.ListOptions{})
	require.NoError(t, err)
	require.Len(t, mine, 3)

	latest, err := s.LatestProducts(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, latest)
	require.LessOrEqual(t, len(latest), 10)

	updated, err := s.UpdateProduct(ctx, created[0].ID, owner.ID, storage.ProductFields{
		Name:           "Renamed",
		Price:          10,
		PurchasingDate: created[0].PurchasingDate,
		Category:       category,
		Description:    "desc",
	}, nil)
	require.NoError(t, err)
	require.Equal(t, "Renamed", updated.Name)
	require.Equal(t, created[0].Thumbnail, updated.Thumbnail)

	require.NoError(t, s.DeleteProduct(ctx, created[0].ID, owner.ID))
	require.True(t, errors.Is(s.DeleteProduct(ctx, created[0].ID, owner.ID), storage.ErrNotFound))
	_, err = s.ProductByID(ctx, created[0].ID)
	require.True(t, errors.Is(err, storage.ErrNotFound))
}
