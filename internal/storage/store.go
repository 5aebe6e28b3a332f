package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
)

var (
	ErrNotFound  = errors.New("document not found")
	ErrDuplicate = errors.New("duplicate key")
	// ErrImageLimit is returned when an image update would break the per product image bounds
	ErrImageLimit = errors.New("image limit reached")
)

// MaxProductImages bounds the images attached to a single product
const MaxProductImages = 5

// ParticipantsKey derives the unique key of the conversation between a and b
// regardless of argument order
func ParticipantsKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, "_")
}

type UserStore interface {
	// CreateUser assigns u.ID, ErrDuplicate on email collision
	CreateUser(ctx context.Context, u *User) error
	UserByID(ctx context.Context, id string) (User, error)
	UserByEmail(ctx context.Context, email string) (User, error)
	UsersByIDs(ctx context.Context, ids []string) ([]User, error)
	SetVerified(ctx context.Context, id string) error
	UpdateName(ctx context.Context, id, name string) error
	SetAvatar(ctx context.Context, id string, avatar Image) error
	// SetPassword stores a new password hash and revokes every refresh token
	SetPassword(ctx context.Context, id, hash string) error
	AddRefreshToken(ctx context.Context, id, token string) error
	// ReplaceRefreshToken swaps old for new, ErrNotFound if old is not held by the user
	ReplaceRefreshToken(ctx context.Context, id, old, new string) error
	// RemoveRefreshToken returns ErrNotFound if token is not held by the user
	RemoveRefreshToken(ctx context.Context, id, token string) error
	ClearRefreshTokens(ctx context.Context, id string) error
}

type TokenStore interface {
	// PutToken replaces any token of the same kind held by owner
	PutToken(ctx context.Context, kind TokenKind, owner, hash string) error
	// TokenByOwner returns ErrNotFound for absent or expired tokens
	TokenByOwner(ctx context.Context, kind TokenKind, owner string) (Token, error)
	DeleteToken(ctx context.Context, kind TokenKind, owner string) error
}

type ConversationStore interface {
	// UpsertConversation returns the id of the conversation keyed by ParticipantsKey,
	// creating it when absent
	UpsertConversation(ctx context.Context, a, b string) (string, error)
	// AppendChat assigns chat.ID and returns the conversation participants
	// ErrNotFound if the conversation is absent or chat.SentBy is not a participant
	AppendChat(ctx context.Context, conversationID string, chat *Chat) ([]string, error)
	// ChatPage returns ErrNotFound unless member participates in the conversation
	ChatPage(ctx context.Context, conversationID, member string, page Page) (ChatPage, error)
	MarkSeen(ctx context.Context, conversationID, peerID, member string) error
	Inbox(ctx context.Context, userID string) ([]InboxEntry, error)
}

type ProductStore interface {
	CreateProduct(ctx context.Context, p *Product) error
	ProductByID(ctx context.Context, id string) (Product, error)
	// OwnedProduct returns ErrNotFound unless owner owns the product
	OwnedProduct(ctx context.Context, id, owner string) (Product, error)
	UpdateProduct(ctx context.Context, id, owner string, f ProductFields, thumbnail *string) (Product, error)
	// PushImages appends images, ErrImageLimit if the result would exceed MaxProductImages
	PushImages(ctx context.Context, id, owner string, images []Image) (Product, error)
	// PullImage removes an image, ErrImageLimit if it is the last one
	PullImage(ctx context.Context, id, owner, imageID string) (Product, error)
	SetThumbnail(ctx context.Context, id, owner, thumbnail string) error
	DeleteProduct(ctx context.Context, id, owner string) error
	ProductsByCategory(ctx context.Context, category string, opts ListOptions) ([]Product, error)
	LatestProducts(ctx context.Context, limit int64) ([]Product, error)
	ProductsByOwner(ctx context.Context, owner string, opts ListOptions) ([]Product, error)
}

// Store is implemented by every storage backend
type Store interface {
	UserStore
	TokenStore
	ConversationStore
	ProductStore
	// ValidID reports whether id is well formed for this backend
	ValidID(id string) bool
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
