package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/relayhq/chat-api/domain"
)

// messageDoc is the persisted shape. The _id stays an ObjectID inside
// this package; domain.Message carries it as a hex string.
type messageDoc struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	OrgID          string             `bson:"org_id"`
	ConversationID string             `bson:"conversation_id"`
	SenderID       string             `bson:"sender_id"`
	Content        string             `bson:"content"`
	CreatedAt      time.Time          `bson:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at"`
	IsDeleted      bool               `bson:"is_deleted"`
}

func (d *messageDoc) toDomain() domain.Message {
	return domain.Message{
		ID:             d.ID.Hex(),
		OrgID:          d.OrgID,
		ConversationID: d.ConversationID,
		SenderID:       d.SenderID,
		Content:        d.Content,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
		IsDeleted:      d.IsDeleted,
	}
}

func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", domain.ErrBadID, id)
	}
	return oid, nil
}

// InsertMessage persists a new message and fills in its generated ID.
func (s *Store) InsertMessage(ctx context.Context, msg *domain.Message) error {
	doc := messageDoc{
		OrgID:          msg.OrgID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt,
		UpdatedAt:      msg.UpdatedAt,
		IsDeleted:      msg.IsDeleted,
	}
	res, err := s.messages.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	msg.ID = res.InsertedID.(primitive.ObjectID).Hex()
	return nil
}

// GetMessage fetches a message by ID regardless of tenant or deletion
// state. Tenancy and soft-delete decisions belong to the service layer,
// which needs the raw document to tell 404 from 403.
func (s *Store) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var doc messageDoc
	err = s.messages.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find message: %w", err)
	}
	msg := doc.toDomain()
	return &msg, nil
}

// SaveMessage writes back content, updated_at and is_deleted for an
// existing message.
func (s *Store) SaveMessage(ctx context.Context, msg *domain.Message) error {
	oid, err := parseID(msg.ID)
	if err != nil {
		return err
	}

	update := bson.M{"$set": bson.M{
		"content":    msg.Content,
		"updated_at": msg.UpdatedAt,
		"is_deleted": msg.IsDeleted,
	}}
	res, err := s.messages.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// PaginateMessages returns one page of non-deleted messages for a
// conversation, newest first, plus the total count. A single $facet
// aggregation fetches the page and the count in one round trip.
func (s *Store) PaginateMessages(ctx context.Context, orgID, conversationID string, page, pageSize int) ([]domain.Message, int64, error) {
	skip := int64(page-1) * int64(pageSize)

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"org_id":          orgID,
			"conversation_id": conversationID,
			"is_deleted":      false,
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}}}},
		{{Key: "$facet", Value: bson.M{
			"metadata": bson.A{bson.M{"$count": "total"}},
			"data": bson.A{
				bson.M{"$skip": skip},
				bson.M{"$limit": int64(pageSize)},
			},
		}}},
	}

	cursor, err := s.messages.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, 0, fmt.Errorf("paginate messages: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		Metadata []struct {
			Total int64 `bson:"total"`
		} `bson:"metadata"`
		Data []messageDoc `bson:"data"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, 0, fmt.Errorf("decode message page: %w", err)
	}
	if len(results) == 0 {
		return []domain.Message{}, 0, nil
	}

	var total int64
	if len(results[0].Metadata) > 0 {
		total = results[0].Metadata[0].Total
	}
	messages := make([]domain.Message, 0, len(results[0].Data))
	for i := range results[0].Data {
		messages = append(messages, results[0].Data[i].toDomain())
	}
	return messages, total, nil
}

// DistinctConversations lists the conversation IDs with at least one
// non-deleted message in the org. Operator tooling only.
func (s *Store) DistinctConversations(ctx context.Context, orgID string) ([]string, error) {
	values, err := s.messages.Distinct(ctx, "conversation_id", bson.M{
		"org_id":     orgID,
		"is_deleted": false,
	})
	if err != nil {
		return nil, fmt.Errorf("distinct conversations: %w", err)
	}

	ids := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			ids = append(ids, s)
		}
	}
	return ids, nil
}
