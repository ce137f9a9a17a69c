package mongo

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/troydota/client.vote.komodohype.dev/session"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const Collection = "session"

var ErrNoDocuments = mongo.ErrNoDocuments

type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func New(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	log.WithField("component", "session").Debugf("mongo session store in %s.%s", database, Collection)

	return &Store{
		client:     client,
		collection: client.Database(database).Collection(Collection),
	}, nil
}

func (s *Store) Get(ctx context.Context, key session.Key) (string, bool, error) {
	if err := session.CheckKey(key); err != nil {
		return "", false, err
	}

	entry := Entry{}
	err := s.collection.FindOne(ctx, bson.M{"_id": string(key)}).Decode(&entry)
	if err == ErrNoDocuments {
		return "", false, nil
	}
	if err != nil {
		log.Errorf("mongo, err=%v", err)
		return "", false, err
	}
	return entry.Value, true, nil
}

func (s *Store) Set(ctx context.Context, key session.Key, value string) error {
	if err := session.CheckKey(key); err != nil {
		return err
	}

	_, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": string(key)},
		bson.M{"$set": bson.M{"value": value}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		log.Errorf("mongo, err=%v", err)
	}
	return err
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
