package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bete/backend/internal/models"
)

type MongoFavoriteService struct {
	favoritesCol *mongo.Collection
	properties   PropertyLookup
}

type mongoFavoriteDoc struct {
	ID         string    `bson:"_id"`
	UserID     string    `bson:"user_id"`
	PropertyID string    `bson:"property_id"`
	CreatedAt  time.Time `bson:"created_at"`
}

func NewMongoFavoriteService(ctx context.Context, db *mongo.Database, properties PropertyLookup) *MongoFavoriteService {
	favs := db.Collection("favorites")

	// Best-effort indexes.
	_, _ = favs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "property_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})

	return &MongoFavoriteService{favoritesCol: favs, properties: properties}
}

func favoriteDocToModel(d mongoFavoriteDoc) *models.Favorite {
	return &models.Favorite{
		ID:         d.ID,
		UserID:     d.UserID,
		PropertyID: d.PropertyID,
		CreatedAt:  d.CreatedAt,
	}
}

func (s *MongoFavoriteService) Toggle(ctx context.Context, userID, propertyID string) (bool, error) {
	err := s.Remove(ctx, userID, propertyID)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, ErrFavoriteNotFound):
		return false, err
	}
	if _, err := s.Add(ctx, userID, propertyID); err != nil && !errors.Is(err, ErrAlreadyFavorited) {
		return false, err
	}
	return true, nil
}

func (s *MongoFavoriteService) Add(ctx context.Context, userID, propertyID string) (*models.Favorite, error) {
	if userID == "" || propertyID == "" {
		return nil, ErrFavoriteBadInput
	}

	// Ensure the property exists so favorites never point at garbage ids.
	if _, err := s.properties.GetByID(ctx, propertyID); err != nil {
		if errors.Is(err, ErrPropertyNotFound) {
			return nil, ErrFavoritePropertyGone
		}
		return nil, err
	}

	doc := mongoFavoriteDoc{
		ID:         uuid.New().String(),
		UserID:     userID,
		PropertyID: propertyID,
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := s.favoritesCol.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrAlreadyFavorited
		}
		return nil, err
	}
	return favoriteDocToModel(doc), nil
}

func (s *MongoFavoriteService) Remove(ctx context.Context, userID, propertyID string) error {
	if userID == "" || propertyID == "" {
		return ErrFavoriteBadInput
	}

	res, err := s.favoritesCol.DeleteOne(ctx, bson.M{
		"user_id":     userID,
		"property_id": propertyID,
	})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrFavoriteNotFound
	}
	return nil
}

func (s *MongoFavoriteService) DeleteForAccount(ctx context.Context, userID string, propertyIDs []string) error {
	filter := bson.M{"user_id": userID}
	if len(propertyIDs) > 0 {
		filter = bson.M{"$or": bson.A{
			bson.M{"user_id": userID},
			bson.M{"property_id": bson.M{"$in": propertyIDs}},
		}}
	}
	_, err := s.favoritesCol.DeleteMany(ctx, filter)
	return err
}

func (s *MongoFavoriteService) list(ctx context.Context, userID string, order int) ([]mongoFavoriteDoc, error) {
	if userID == "" {
		return nil, ErrFavoriteBadInput
	}
	cur, err := s.favoritesCol.Find(
		ctx,
		bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: order}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	docs := make([]mongoFavoriteDoc, 0)
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *MongoFavoriteService) ListIDs(ctx context.Context, userID string) (models.FavoriteSet, error) {
	docs, err := s.list(ctx, userID, 1)
	if err != nil {
		return nil, err
	}
	set := make(models.FavoriteSet, 0, len(docs))
	for _, d := range docs {
		set = append(set, d.PropertyID)
	}
	return set, nil
}

// ListProperties resolves each favorite through the property store, most
// recent first; deleted properties are skipped.
func (s *MongoFavoriteService) ListProperties(ctx context.Context, userID string) ([]models.Property, error) {
	docs, err := s.list(ctx, userID, -1)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.PropertyID)
	}
	return resolveProperties(ctx, s.properties, ids)
}
