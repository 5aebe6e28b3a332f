package mongo

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
	"marketplace-api/internal/storage"
	"time"
)

type imageDoc struct {
	ID  string `bson:"id"`
	URL string `bson:"url"`
}

type userDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Name      string             `bson:"name"`
	Email     string             `bson:"email"`
	Password  string             `bson:"password"`
	Verified  bool               `bson:"verified"`
	Avatar    *imageDoc          `bson:"avatar,omitempty"`
	Tokens    []string           `bson:"tokens"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

func (d userDoc) user() storage.User {
	u := storage.User{
		ID:        d.ID.Hex(),
		Name:      d.Name,
		Email:     d.Email,
		Password:  d.Password,
		Verified:  d.Verified,
		Tokens:    d.Tokens,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if u.Tokens == nil {
		u.Tokens = []string{}
	}
	if d.Avatar != nil {
		u.Avatar = &storage.Image{ID: d.Avatar.ID, URL: d.Avatar.URL}
	}
	return u
}

type tokenDoc struct {
	Owner     primitive.ObjectID `bson:"owner"`
	Token     string             `bson:"token"`
	CreatedAt time.Time          `bson:"createdAt"`
}

type chatDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	SentBy    primitive.ObjectID `bson:"sentBy"`
	Content   string             `bson:"content"`
	Timestamp time.Time          `bson:"timestamp"`
	Viewed    bool               `bson:"viewed"`
}

func (d chatDoc) chat() storage.Chat {
	return storage.Chat{
		ID:        d.ID.Hex(),
		SentBy:    d.SentBy.Hex(),
		Content:   d.Content,
		Timestamp: d.Timestamp,
		Viewed:    d.Viewed,
	}
}

type conversationDoc struct {
	ID             primitive.ObjectID   `bson:"_id,omitempty"`
	Participants   []primitive.ObjectID `bson:"participants"`
	ParticipantsID string               `bson:"participantsId"`
	Chats          []chatDoc            `bson:"chats,omitempty"`
	Total          int                  `bson:"total,omitempty"`
	CreatedAt      time.Time            `bson:"createdAt"`
	UpdatedAt      time.Time            `bson:"updatedAt"`
}

type inboxDoc struct {
	ID          primitive.ObjectID `bson:"_id"`
	LastMessage string             `bson:"lastMessage"`
	Timestamp   time.Time          `bson:"timestamp"`
	UnreadCount int                `bson:"unreadCount"`
	Peer        struct {
		ID     primitive.ObjectID `bson:"_id"`
		Name   string             `bson:"name"`
		Avatar string             `bson:"avatar,omitempty"`
	} `bson:"peer"`
}

type productDoc struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	Owner          primitive.ObjectID `bson:"owner"`
	Name           string             `bson:"name"`
	Price          float64            `bson:"price"`
	PurchasingDate time.Time          `bson:"purchasingDate"`
	Category       string             `bson:"category"`
	Images         []imageDoc         `bson:"images"`
	Thumbnail      string             `bson:"thumbnail"`
	Description    string             `bson:"description"`
	CreatedAt      time.Time          `bson:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt"`
}

func imageDocs(images []storage.Image) []imageDoc {
	docs := make([]imageDoc, len(images))
	for i, img := range images {
		docs[i] = imageDoc(img)
	}
	return docs
}

func (d productDoc) product() storage.Product {
	p := storage.Product{
		ID:             d.ID.Hex(),
		Owner:          d.Owner.Hex(),
		Name:           d.Name,
		Price:          d.Price,
		PurchasingDate: d.PurchasingDate,
		Category:       d.Category,
		Images:         make([]storage.Image, len(d.Images)),
		Thumbnail:      d.Thumbnail,
		Description:    d.Description,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	for i, img := range d.Images {
		p.Images[i] = storage.Image(img)
	}
	return p
}
