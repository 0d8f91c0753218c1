package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/clipwise/clipwise/internal/models"
	"github.com/clipwise/clipwise/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ClipQueueRepository owns clip queue item persistence. Claim operations are
// single conditional updates so at most one processor instance ever works a
// given item, regardless of how many processors poll the collection.
type ClipQueueRepository interface {
	Insert(ctx context.Context, item *models.ClipQueueItem) error
	GetByItemID(ctx context.Context, itemID string) (*models.ClipQueueItem, error)
	ListBySession(ctx context.Context, sessionID string, limit int64) ([]models.ClipQueueItem, error)

	// ClaimOldestPending atomically transitions the oldest pending item to
	// processing. Returns utils.ErrNotFound when nothing is pending.
	ClaimOldestPending(ctx context.Context) (*models.ClipQueueItem, error)

	// ClaimByItemID atomically transitions itemID to processing if its
	// current status is in from. Returns utils.ErrNotFound when the item is
	// missing or not in an allowed status.
	ClaimByItemID(ctx context.Context, itemID string, from []string) (*models.ClipQueueItem, error)

	MarkCompleted(ctx context.Context, itemID, clipID string) error
	MarkFailed(ctx context.Context, itemID, errorMessage string) error
}

type clipQueueRepo struct {
	col *mongo.Collection
}

func NewClipQueueRepo(db *mongo.Database) ClipQueueRepository {
	return &clipQueueRepo{col: db.Collection("clip_queue")}
}

func (r *clipQueueRepo) Insert(ctx context.Context, item *models.ClipQueueItem) error {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if item.Status == "" {
		item.Status = models.QueueStatusPending
	}
	_, err := r.col.InsertOne(ctx, item)
	return err
}

func (r *clipQueueRepo) GetByItemID(ctx context.Context, itemID string) (*models.ClipQueueItem, error) {
	var item models.ClipQueueItem
	err := r.col.FindOne(ctx, bson.M{"item_id": itemID}).Decode(&item)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	return &item, err
}

func (r *clipQueueRepo) ListBySession(ctx context.Context, sessionID string, limit int64) ([]models.ClipQueueItem, error) {
	if limit <= 0 {
		limit = 100
	}

	cur, err := r.col.Find(ctx,
		bson.M{"session_id": sessionID},
		options.Find().
			SetSort(bson.D{{Key: "created_at", Value: -1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.ClipQueueItem
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *clipQueueRepo) ClaimOldestPending(ctx context.Context) (*models.ClipQueueItem, error) {
	now := time.Now().UTC()

	var item models.ClipQueueItem
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"status": models.QueueStatusPending},
		bson.M{"$set": bson.M{
			"status":     models.QueueStatusProcessing,
			"claimed_at": now,
		}},
		options.FindOneAndUpdate().
			SetSort(bson.D{{Key: "created_at", Value: 1}}).
			SetReturnDocument(options.After),
	).Decode(&item)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	return &item, err
}

func (r *clipQueueRepo) ClaimByItemID(ctx context.Context, itemID string, from []string) (*models.ClipQueueItem, error) {
	now := time.Now().UTC()

	var item models.ClipQueueItem
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"item_id": itemID, "status": bson.M{"$in": from}},
		bson.M{"$set": bson.M{
			"status":        models.QueueStatusProcessing,
			"claimed_at":    now,
			"error_message": nil,
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&item)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	return &item, err
}

func (r *clipQueueRepo) MarkCompleted(ctx context.Context, itemID, clipID string) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"item_id": itemID, "status": models.QueueStatusProcessing},
		bson.M{"$set": bson.M{
			"status":  models.QueueStatusCompleted,
			"clip_id": clipID,
			"done_at": time.Now().UTC(),
		}},
	)
	return err
}

func (r *clipQueueRepo) MarkFailed(ctx context.Context, itemID, errorMessage string) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"item_id": itemID, "status": models.QueueStatusProcessing},
		bson.M{"$set": bson.M{
			"status":        models.QueueStatusFailed,
			"error_message": errorMessage,
			"done_at":       time.Now().UTC(),
		}},
	)
	return err
}
