package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/go-go-golems/jiminy/pkg/conversation"
)

const conversationsCollection = "conversations"

type conversationDocument struct {
	ID        string            `bson:"_id"`
	Title     string            `bson:"title"`
	CreatedAt time.Time         `bson:"createdAt"`
	Messages  []messageDocument `bson:"messages"`
}

type messageDocument struct {
	Role    string    `bson:"role"`
	Content string    `bson:"content"`
	Time    time.Time `bson:"time"`
}

// MongoStore persists conversations in a MongoDB collection, one document
// per conversation, keyed by the conversation id.
type MongoStore struct {
	collection *mongo.Collection
	ids        *idGenerator
	now        func() time.Time
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore wraps an already-connected client. The caller owns the
// client's lifecycle and is responsible for disconnecting it on shutdown.
func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	return &MongoStore{
		collection: client.Database(database).Collection(conversationsCollection),
		ids:        newIDGenerator(),
		now:        time.Now,
	}
}

func (s *MongoStore) Create(ctx context.Context, messages []conversation.Message) (string, error) {
	id := s.ids.Next()

	doc := conversationDocument{
		ID:        id,
		Title:     conversation.DefaultTitle,
		CreatedAt: s.now(),
		Messages:  toMessageDocuments(messages),
	}

	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return "", &PersistenceError{Err: errors.Wrap(err, "insert conversation")}
	}

	log.Debug().Str("conversation_id", id).Int("message_count", len(messages)).Msg("created conversation")
	return id, nil
}

func (s *MongoStore) CreateOrAppend(ctx context.Context, id string, messages []conversation.Message) (string, error) {
	if id == "" {
		return s.Create(ctx, messages)
	}

	update := bson.M{
		"$set": bson.M{"messages": toMessageDocuments(messages)},
		"$setOnInsert": bson.M{
			"title":     conversation.DefaultTitle,
			"createdAt": s.now(),
		},
	}

	_, err := s.collection.UpdateByID(ctx, id, update, options.Update().SetUpsert(true))
	if err != nil {
		return "", &PersistenceError{Err: errors.Wrap(err, "upsert conversation")}
	}

	log.Debug().Str("conversation_id", id).Int("message_count", len(messages)).Msg("updated conversation")
	return id, nil
}

func (s *MongoStore) ListAll(ctx context.Context) ([]conversation.Conversation, error) {
	cursor, err := s.collection.Find(ctx, bson.D{})
	if err != nil {
		return nil, &PersistenceError{Err: errors.Wrap(err, "find conversations")}
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to close cursor")
		}
	}()

	var docs []conversationDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, &PersistenceError{Err: errors.Wrap(err, "decode conversations")}
	}

	ret := make([]conversation.Conversation, 0, len(docs))
	for _, doc := range docs {
		ret = append(ret, doc.toConversation())
	}

	return ret, nil
}

func (s *MongoStore) Rename(ctx context.Context, id string, newTitle string) error {
	if err := ValidateTitle(newTitle); err != nil {
		return err
	}

	res, err := s.collection.UpdateByID(ctx, id, bson.M{"$set": bson.M{"title": newTitle}})
	if err != nil {
		return &PersistenceError{Err: errors.Wrap(err, "update title")}
	}
	if res.MatchedCount == 0 {
		return &PersistenceError{Err: errors.Errorf("conversation %s not found", id)}
	}

	return nil
}

func toMessageDocuments(messages []conversation.Message) []messageDocument {
	ret := make([]messageDocument, 0, len(messages))
	for _, message := range messages {
		ret = append(ret, messageDocument{
			Role:    string(message.Role),
			Content: message.Content,
			Time:    message.Time,
		})
	}

	return ret
}

func (d conversationDocument) toConversation() conversation.Conversation {
	messages := make([]conversation.Message, 0, len(d.Messages))
	for _, m := range d.Messages {
		messages = append(messages, conversation.Message{
			Role:    conversation.Role(m.Role),
			Content: m.Content,
			Time:    m.Time,
		})
	}

	return conversation.Conversation{
		ID:        d.ID,
		Title:     d.Title,
		CreatedAt: d.CreatedAt,
		Messages:  messages,
	}
}
