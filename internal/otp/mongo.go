package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoCollection = "otp_tokens"

type mongoRecord struct {
	Phone     string    `bson:"phone"`
	Code      string    `bson:"code"`
	Nonce     string    `bson:"nonce"`
	Attempts  int       `bson:"attempts"`
	CreatedAt time.Time `bson:"createdAt"`
	ExpiresAt time.Time `bson:"expiresAt"`
}

// MongoStore keeps one document per phone in otp_tokens. A TTL index on
// expiresAt lets MongoDB reap stale codes on its own.
type MongoStore struct {
	col *mongo.Collection
	now func() time.Time
}

// NewMongoStore builds a MongoDB-backed code store. A nil clock uses time.Now.
func NewMongoStore(db *mongo.Database, now func() time.Time) *MongoStore {
	return &MongoStore{col: db.Collection(mongoCollection), now: clockOrDefault(now)}
}

// EnsureIndexes creates the unique phone index and the expiry TTL index.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "phone", Value: 1}},
			Options: options.Index().SetName("uniq_phone").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetName("ttl_expires_at").SetExpireAfterSeconds(0),
		},
	}
	if _, err := s.col.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("create otp indexes: %w", err)
	}
	return nil
}

// Put upserts the phone's document, replacing any previous code.
func (s *MongoStore) Put(ctx context.Context, phone, code string, ttl time.Duration) (Record, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := s.now().UTC().Truncate(time.Millisecond)
	doc := mongoRecord{
		Phone:     phone,
		Code:      code,
		Nonce:     uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	opts := options.Replace().SetUpsert(true)
	_, err := s.col.ReplaceOne(ctx, bson.M{"phone": phone}, doc, opts)
	if mongo.IsDuplicateKeyError(err) {
		// two first-time upserts raced on the unique index; the retry replaces
		_, err = s.col.ReplaceOne(ctx, bson.M{"phone": phone}, doc, opts)
	}
	if err != nil {
		return Record{}, fmt.Errorf("store otp record: %w", err)
	}
	return Record{Phone: phone, Code: code, CreatedAt: doc.CreatedAt, ExpiresAt: doc.ExpiresAt}, nil
}

// ConsumeLatest deletes by nonce so a code issued after the read survives.
func (s *MongoStore) ConsumeLatest(ctx context.Context, phone string, match func(Record) bool) (Record, error) {
	filter := bson.M{"phone": phone, "expiresAt": bson.M{"$gt": s.now().UTC()}}
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	var doc mongoRecord
	if err := s.col.FindOne(ctx, filter, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("load otp record: %w", err)
	}

	rec := Record{Phone: doc.Phone, Code: doc.Code, Attempts: doc.Attempts, CreatedAt: doc.CreatedAt.UTC(), ExpiresAt: doc.ExpiresAt.UTC()}
	if match != nil && !match(rec) {
		return Record{}, s.reject(ctx, doc)
	}

	res, err := s.col.DeleteMany(ctx, bson.M{"phone": phone, "nonce": doc.Nonce})
	if err != nil {
		return Record{}, fmt.Errorf("delete otp records: %w", err)
	}
	if res.DeletedCount == 0 {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// reject charges one attempt to the matched document. Once the count reaches
// MaxAttempts the document is removed; filtering on nonce leaves a newer code alone.
func (s *MongoStore) reject(ctx context.Context, doc mongoRecord) error {
	filter := bson.M{"phone": doc.Phone, "nonce": doc.Nonce}
	if doc.Attempts+1 >= MaxAttempts {
		if _, err := s.col.DeleteOne(ctx, filter); err != nil {
			return fmt.Errorf("delete otp record: %w", err)
		}
		return ErrNotFound
	}
	if _, err := s.col.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{"attempts": 1}}); err != nil {
		return fmt.Errorf("count otp attempt: %w", err)
	}
	return ErrNotFound
}
