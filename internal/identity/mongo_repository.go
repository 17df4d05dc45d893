package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const usersCollection = "users"

type mongoUser struct {
	ID              string    `bson:"_id"`
	Phone           string    `bson:"phone"`
	Name            string    `bson:"name"`
	Email           string    `bson:"email"`
	Location        string    `bson:"location"`
	IsAdmin         bool      `bson:"isAdmin"`
	ProfileComplete bool      `bson:"profileComplete"`
	CreatedAt       time.Time `bson:"createdAt"`
	UpdatedAt       time.Time `bson:"updatedAt"`
}

func toMongoUser(u User) mongoUser {
	return mongoUser{
		ID:              u.ID,
		Phone:           u.Phone,
		Name:            u.Name,
		Email:           u.Email,
		Location:        u.Location,
		IsAdmin:         u.IsAdmin,
		ProfileComplete: u.ProfileComplete,
		CreatedAt:       u.CreatedAt.UTC(),
		UpdatedAt:       u.UpdatedAt.UTC(),
	}
}

func (d mongoUser) user() User {
	return User{
		ID:              d.ID,
		Phone:           d.Phone,
		Name:            d.Name,
		Email:           d.Email,
		Location:        d.Location,
		IsAdmin:         d.IsAdmin,
		ProfileComplete: d.ProfileComplete,
		CreatedAt:       d.CreatedAt.UTC(),
		UpdatedAt:       d.UpdatedAt.UTC(),
	}
}

// MongoRepository implements Repository on a MongoDB users collection.
type MongoRepository struct {
	col *mongo.Collection
}

// NewMongoRepository builds a MongoDB-backed identity repository.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{col: db.Collection(usersCollection)}
}

// EnsureIndexes creates the unique phone index.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "phone", Value: 1}},
			Options: options.Index().SetName("uniq_phone").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("created_at_desc"),
		},
	}
	if _, err := r.col.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}

func (r *MongoRepository) Create(ctx context.Context, user User) error {
	_, err := r.col.InsertOne(ctx, toMongoUser(user))
	if mongo.IsDuplicateKeyError(err) {
		return ErrExists
	}
	return err
}

func (r *MongoRepository) FindByID(ctx context.Context, id string) (User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoRepository) FindByPhone(ctx context.Context, phone string) (User, error) {
	return r.findOne(ctx, bson.M{"phone": phone})
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M) (User, error) {
	var doc mongoUser
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return doc.user(), nil
}

// SetAdmin only touches users that are not admin yet, so the flag never flips back.
func (r *MongoRepository) SetAdmin(ctx context.Context, id string, at time.Time) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "isAdmin": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{"isAdmin": true, "updatedAt": at.UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}
	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return nil
}

func (r *MongoRepository) UpdateProfile(ctx context.Context, user User) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": user.ID}, bson.M{"$set": bson.M{
		"name":            user.Name,
		"email":           user.Email,
		"location":        user.Location,
		"profileComplete": user.ProfileComplete,
		"updatedAt":       user.UpdatedAt.UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoRepository) List(ctx context.Context, filter ListFilter) ([]User, int, error) {
	query := bson.M{}
	if filter.AdminsOnly {
		query["isAdmin"] = true
	}
	if filter.Query != "" {
		rx := bson.M{"$regex": regexp.QuoteMeta(filter.Query), "$options": "i"}
		query["$or"] = bson.A{bson.M{"name": rx}, bson.M{"phone": rx}, bson.M{"email": rx}}
	}

	total, err := r.col.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(filter.offset())).
		SetLimit(int64(filter.Limit))
	cur, err := r.col.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)

	var docs []mongoUser
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, err
	}
	users := make([]User, 0, len(docs))
	for _, d := range docs {
		users = append(users, d.user())
	}
	return users, int(total), nil
}
