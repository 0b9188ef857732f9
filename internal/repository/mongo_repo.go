package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/realtime-chat/config"
	"github.com/fathima-sithara/realtime-chat/internal/models"
)

var ErrNotFound = errors.New("not found")

type MongoRepository struct {
	Client                 *mongo.Client
	DB                     *mongo.Database
	UserCollection         *mongo.Collection
	ConversationCollection *mongo.Collection
	MessageCollection      *mongo.Collection
}

// NewMongoRepository initializes MongoDB connection and collections
func NewMongoRepository(cfg *config.Config) (*MongoRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, err
	}

	db := client.Database(cfg.MongoDB)

	r := &MongoRepository{
		Client:                 client,
		DB:                     db,
		UserCollection:         db.Collection("users"),
		ConversationCollection: db.Collection("conversations"),
		MessageCollection:      db.Collection("messages"),
	}

	// listing and auto-rejoin both filter on participants
	idx := mongo.IndexModel{
		Keys:    bson.D{{Key: "participants", Value: 1}},
		Options: options.Index().SetName("participants_idx"),
	}
	_, _ = r.ConversationCollection.Indexes().CreateOne(ctx, idx)
	msgIdx := mongo.IndexModel{
		Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}},
		Options: options.Index().SetName("conversation_created_idx"),
	}
	_, _ = r.MessageCollection.Indexes().CreateOne(ctx, msgIdx)

	return r, nil
}

// Disconnect closes the MongoDB connection
func (r *MongoRepository) Disconnect(ctx context.Context) error {
	return r.Client.Disconnect(ctx)
}

// -----------------------------
// Conversations
// -----------------------------

// CreateConversation inserts a conversation. A direct conversation starts
// visible only to its initiator; a group is visible to everyone at once.
func (r *MongoRepository) CreateConversation(ctx context.Context, conv *models.Conversation) (string, error) {
	now := time.Now().UTC()
	if conv.ID == "" {
		conv.ID = primitive.NewObjectID().Hex()
	}
	conv.CreatedAt = now
	conv.UpdatedAt = now
	conv.LastActivity = now
	if len(conv.VisibleTo) == 0 {
		if conv.IsGroup {
			conv.VisibleTo = append([]string(nil), conv.Participants...)
		} else {
			conv.VisibleTo = []string{conv.Initiator}
		}
	}
	_, err := r.ConversationCollection.InsertOne(ctx, conv)
	return conv.ID, err
}

func (r *MongoRepository) Conversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.ConversationCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&conv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &conv, nil
}

// FindDirectConversation locates the non-group conversation between exactly
// the two given users, if one exists.
func (r *MongoRepository) FindDirectConversation(ctx context.Context, a, b string) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.ConversationCollection.FindOne(ctx, bson.M{
		"is_group":     false,
		"participants": bson.M{"$all": []string{a, b}, "$size": 2},
	}).Decode(&conv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &conv, nil
}

// ConversationsForUser returns conversations the user participates in and
// currently has revealed: visible_to missing or empty (legacy documents) or
// containing the user. This is the auto-rejoin query run on every connect.
func (r *MongoRepository) ConversationsForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	filter := bson.M{
		"participants": userID,
		"$or": []bson.M{
			{"visible_to": bson.M{"$exists": false}},
			{"visible_to": bson.M{"$size": 0}},
			{"visible_to": userID},
		},
	}
	cursor, err := r.ConversationCollection.Find(ctx, filter, options.Find().SetSort(bson.M{"last_activity": -1}))
	if err != nil {
		return nil, err
	}
	var convs []models.Conversation
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// RevealToParticipants adds the given users to visible_to (set semantics).
func (r *MongoRepository) RevealToParticipants(ctx context.Context, conversationID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := r.ConversationCollection.UpdateOne(ctx,
		bson.M{"_id": conversationID},
		bson.M{
			"$addToSet": bson.M{"visible_to": bson.M{"$each": userIDs}},
			"$set":      bson.M{"updated_at": time.Now().UTC()},
		},
	)
	return err
}

// TouchLastMessage records the newest message on the conversation document.
func (r *MongoRepository) TouchLastMessage(ctx context.Context, conversationID, messageID string, at time.Time) error {
	_, err := r.ConversationCollection.UpdateOne(ctx,
		bson.M{"_id": conversationID},
		bson.M{"$set": bson.M{
			"last_message_id": messageID,
			"last_activity":   at,
			"updated_at":      at,
		}},
	)
	return err
}

// DeleteConversation removes the conversation and cascades to its messages.
func (r *MongoRepository) DeleteConversation(ctx context.Context, conversationID string) error {
	if _, err := r.MessageCollection.DeleteMany(ctx, bson.M{"conversation_id": conversationID}); err != nil {
		return err
	}
	_, err := r.ConversationCollection.DeleteOne(ctx, bson.M{"_id": conversationID})
	return err
}

// -----------------------------
// Messages
// -----------------------------

func (r *MongoRepository) InsertMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = primitive.NewObjectID().Hex()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	_, err := r.MessageCollection.InsertOne(ctx, msg)
	return err
}

func (r *MongoRepository) Message(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	err := r.MessageCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&msg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &msg, nil
}

func (r *MongoRepository) Messages(ctx context.Context, conversationID string, page, limit int) ([]models.Message, error) {
	skip := int64((page - 1) * limit)
	opts := options.Find().SetSkip(skip).SetLimit(int64(limit)).SetSort(bson.M{"created_at": 1})
	cursor, err := r.MessageCollection.Find(ctx, bson.M{"conversation_id": conversationID, "deleted": false}, opts)
	if err != nil {
		return nil, err
	}
	var messages []models.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// UndeliveredMessages returns the subset of ids in the conversation that are
// still undelivered, excluding the recipient's own messages.
func (r *MongoRepository) UndeliveredMessages(ctx context.Context, conversationID string, ids []string, recipientID string) ([]models.Message, error) {
	filter := bson.M{
		"_id":             bson.M{"$in": ids},
		"conversation_id": conversationID,
		"sender_id":       bson.M{"$ne": recipientID},
		"delivered":       false,
	}
	cursor, err := r.MessageCollection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	var out []models.Message
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetDelivered flips delivered on the given messages. Already-delivered
// messages are untouched, so repeated acknowledgements cannot regress state.
func (r *MongoRepository) SetDelivered(ctx context.Context, conversationID string, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.MessageCollection.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}, "conversation_id": conversationID, "delivered": false},
		bson.M{"$set": bson.M{"delivered": true, "delivered_at": at}},
	)
	return err
}

// UnseenMessages returns the subset of ids the viewer has not yet seen.
// Direct chats use the shared seen flag; group chats check the per-user
// seen_by list.
func (r *MongoRepository) UnseenMessages(ctx context.Context, conversationID string, ids []string, viewerID string, group bool) ([]models.Message, error) {
	filter := bson.M{
		"_id":             bson.M{"$in": ids},
		"conversation_id": conversationID,
		"sender_id":       bson.M{"$ne": viewerID},
	}
	if group {
		filter["seen_by.user_id"] = bson.M{"$ne": viewerID}
	} else {
		filter["seen"] = false
	}
	cursor, err := r.MessageCollection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	var out []models.Message
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UnseenInConversation is the bulk variant: every message in the
// conversation not sent by the viewer and not yet seen by them.
func (r *MongoRepository) UnseenInConversation(ctx context.Context, conversationID, viewerID string, group bool) ([]models.Message, error) {
	filter := bson.M{
		"conversation_id": conversationID,
		"sender_id":       bson.M{"$ne": viewerID},
	}
	if group {
		filter["seen_by.user_id"] = bson.M{"$ne": viewerID}
	} else {
		filter["seen"] = false
	}
	cursor, err := r.MessageCollection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	var out []models.Message
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetSeen marks messages seen, forcing delivered along the way (seen implies
// delivered). Timestamps already set are preserved.
func (r *MongoRepository) SetSeen(ctx context.Context, conversationID string, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.MessageCollection.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}, "conversation_id": conversationID, "seen": false},
		bson.M{"$set": bson.M{"seen": true, "seen_at": at, "delivered": true}, "$min": bson.M{"delivered_at": at}},
	)
	if err != nil {
		return err
	}
	// delivered_at may still be unset for messages that skipped the
	// delivered acknowledgement entirely
	_, err = r.MessageCollection.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}, "conversation_id": conversationID, "delivered_at": nil},
		bson.M{"$set": bson.M{"delivered_at": at}},
	)
	return err
}

// AppendSeenBy appends {user, at} to seen_by unless the user is already
// present. The filter makes repeated calls no-ops, keeping one entry per
// user.
func (r *MongoRepository) AppendSeenBy(ctx context.Context, messageID, userID string, at time.Time) error {
	_, err := r.MessageCollection.UpdateOne(ctx,
		bson.M{"_id": messageID, "seen_by.user_id": bson.M{"$ne": userID}},
		bson.M{
			"$push": bson.M{"seen_by": models.SeenEntry{UserID: userID, At: at}},
			"$set":  bson.M{"seen": true, "delivered": true},
		},
	)
	return err
}

func (r *MongoRepository) EditMessage(ctx context.Context, messageID, content string) error {
	_, err := r.MessageCollection.UpdateOne(ctx,
		bson.M{"_id": messageID},
		bson.M{"$set": bson.M{"content": content, "edited": true}},
	)
	return err
}

func (r *MongoRepository) SoftDeleteMessage(ctx context.Context, messageID string) error {
	_, err := r.MessageCollection.UpdateOne(ctx,
		bson.M{"_id": messageID},
		bson.M{"$set": bson.M{"deleted": true}},
	)
	return err
}

func (r *MongoRepository) SetPinned(ctx context.Context, messageID string, pinned bool) error {
	_, err := r.MessageCollection.UpdateOne(ctx,
		bson.M{"_id": messageID},
		bson.M{"$set": bson.M{"pinned": pinned}},
	)
	return err
}

func (r *MongoRepository) AddReaction(ctx context.Context, messageID, emoji, userID string) error {
	_, err := r.MessageCollection.UpdateOne(ctx,
		bson.M{"_id": messageID},
		bson.M{"$addToSet": bson.M{"reactions." + emoji: userID}},
	)
	return err
}

// ClearEphemeralImage irreversibly clears the image of a viewed ephemeral
// message. Callers delete the remote object first; this commit is the last
// step of the transition.
func (r *MongoRepository) ClearEphemeralImage(ctx context.Context, messageID string) error {
	_, err := r.MessageCollection.UpdateOne(ctx,
		bson.M{"_id": messageID, "ephemeral": true},
		bson.M{"$set": bson.M{"ephemeral_viewed": true}, "$unset": bson.M{"image": ""}},
	)
	return err
}

// -----------------------------
// Users
// -----------------------------

func (r *MongoRepository) SetUserOnline(ctx context.Context, userID string) error {
	_, err := r.UserCollection.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"is_online": true}},
	)
	return err
}

func (r *MongoRepository) SetUserOffline(ctx context.Context, userID string, lastSeen time.Time) error {
	_, err := r.UserCollection.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"is_online": false, "last_seen": lastSeen}},
	)
	return err
}

func (r *MongoRepository) User(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := r.UserCollection.FindOne(ctx, bson.M{"_id": userID}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *MongoRepository) AllUserIDs(ctx context.Context) ([]string, error) {
	cursor, err := r.UserCollection.Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

// LastSeen reads the persisted last_seen for a user record.
func (r *MongoRepository) LastSeen(ctx context.Context, userID string) (time.Time, error) {
	u, err := r.User(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	return u.LastSeen, nil
}
