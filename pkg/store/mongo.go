package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/matzehuels/imfgraph/pkg/errors"
)

// MongoOptions configures a MongoStore.
type MongoOptions struct {
	URI        string
	Database   string
	Collection string
}

// MongoStore keeps one BSON document per record. Payloads are stored as JSON
// strings so key order survives.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	now    func() time.Time
}

type mongoRecord struct {
	Name      string    `bson:"_id"`
	Hierarchy string    `bson:"hierarchy,omitempty"`
	Relations string    `bson:"relations"`
	Document  string    `bson:"document,omitempty"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewMongoStore connects and verifies the connection with a ping.
func NewMongoStore(ctx context.Context, opts MongoOptions) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return &MongoStore{
		client: client,
		coll:   client.Database(opts.Database).Collection(opts.Collection),
		now:    time.Now,
	}, nil
}

// Save implements Store.
func (s *MongoStore) Save(ctx context.Context, rec Record) error {
	if err := errors.ValidateDocumentName(rec.Name); err != nil {
		return err
	}
	doc := mongoRecord{
		Name:      rec.Name,
		Hierarchy: string(rec.Hierarchy),
		Relations: string(rec.Relations),
		Document:  string(rec.Document),
		UpdatedAt: s.now().UTC(),
	}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": rec.Name}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "save %s", rec.Name)
	}
	return nil
}

// Load implements Store.
func (s *MongoStore) Load(ctx context.Context, name string) (*Record, error) {
	var doc mongoRecord
	err := s.coll.FindOne(ctx, bson.M{"_id": name}).Decode(&doc)
	if stderrors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.New(errors.ErrCodeNotFound, "document %q not found", name)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "load %s", name)
	}
	return &Record{
		Name:      doc.Name,
		Hierarchy: bytesOrNil(doc.Hierarchy),
		Relations: bytesOrNil(doc.Relations),
		Document:  bytesOrNil(doc.Document),
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

// List implements Store.
func (s *MongoStore) List(ctx context.Context) ([]string, error) {
	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "list documents")
	}
	var docs []struct {
		Name string `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "list documents")
	}
	names := make([]string, 0, len(docs))
	for _, d := range docs {
		names = append(names, d.Name)
	}
	return names, nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func bytesOrNil(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}

var _ Store = (*MongoStore)(nil)
