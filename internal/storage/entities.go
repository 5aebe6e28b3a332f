package storage

import "time"

// Image is an object stored at the storage provider
type Image struct {
	ID  string
	URL string
}

type User struct {
	ID        string
	Name      string
	Email     string
	Password  string
	Verified  bool
	Avatar    *Image
	Tokens    []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Profile is the public projection of a User
type Profile struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

func (u User) Profile() Profile {
	p := Profile{ID: u.ID, Name: u.Name}
	if u.Avatar != nil {
		p.Avatar = u.Avatar.URL
	}
	return p
}

type TokenKind string

const (
	TokenVerification  TokenKind = "verification"
	TokenPasswordReset TokenKind = "password_reset"
)

// TokenTTL is the lifetime of verification and password reset tokens
const TokenTTL = 24 * time.Hour

// Token is a one-time token stored hashed, one per owner and kind
type Token struct {
	Owner     string
	Hash      string
	CreatedAt time.Time
}

type Chat struct {
	ID        string
	SentBy    string
	Content   string
	Timestamp time.Time
	Viewed    bool
}

type Conversation struct {
	ID             string
	Participants   []string
	ParticipantsID string
	Chats          []Chat
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Page selects the Limit chats preceding index Before
// zero Before means the end of the list, zero Limit means no limit
type Page struct {
	Before int
	Limit  int
}

// Bounds resolves the page against a list of total chats into a half-open [start, end) range
func (p Page) Bounds(total int) (start, end int) {
	end = total
	if p.Before > 0 && p.Before < total {
		end = p.Before
	}
	start = 0
	if p.Limit > 0 && end-p.Limit > 0 {
		start = end - p.Limit
	}
	return start, end
}

// ChatPage is a conversation holding a slice of its chats
// Start is the index of the first chat in the page within the full list
type ChatPage struct {
	Conversation
	Start int
	Total int
}

// InboxEntry is the latest chat of a conversation as seen by one participant
type InboxEntry struct {
	ConversationID string
	Peer           Profile
	LastMessage    string
	Timestamp      time.Time
	UnreadCount    int
}

type Product struct {
	ID             string
	Owner          string
	Name           string
	Price          float64
	PurchasingDate time.Time
	Category       string
	Images         []Image
	Thumbnail      string
	Description    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ProductFields are the user editable fields of a product
type ProductFields struct {
	Name           string
	Price          float64
	PurchasingDate time.Time
	Category       string
	Description    string
}

type ListOptions struct {
	Skip  int64
	Limit int64
}
