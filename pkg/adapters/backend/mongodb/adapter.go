// Package mongodb implements the document backend on MongoDB.
package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datahub/pkg/adapters/backend"
	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
)

// DefaultDatabase is used when neither the config nor the URI names a database.
const DefaultDatabase = "datahub"

// namespaceExistsCode is returned by createCollection for an existing collection.
const namespaceExistsCode = 48

// Adapter provides document storage on MongoDB.
type Adapter struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

var (
	_ backend.Adapter      = (*Adapter)(nil)
	_ backend.Bootstrapper = (*Adapter)(nil)
	_ backend.Pinger       = (*Adapter)(nil)
)

// NewAdapter connects to MongoDB and verifies the connection with a ping.
func NewAdapter(ctx context.Context, cfg backend.ConnectionConfig, logger *zap.Logger) (*Adapter, error) {
	dbName, err := databaseName(cfg)
	if err != nil {
		return nil, err
	}

	opts := options.Client().ApplyURI(cfg.ConnectionString)
	if cfg.PoolMaxConns > 0 {
		opts.SetMaxPoolSize(uint64(cfg.PoolMaxConns))
	}
	if cfg.PoolMinConns > 0 {
		opts.SetMinPoolSize(uint64(cfg.PoolMinConns))
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	return NewAdapterFromClient(client, dbName, logger), nil
}

// NewAdapterFromClient wraps an existing client.
func NewAdapterFromClient(client *mongo.Client, database string, logger *zap.Logger) *Adapter {
	return &Adapter{
		client: client,
		db:     client.Database(database),
		logger: logger.Named("mongodb"),
	}
}

func databaseName(cfg backend.ConnectionConfig) (string, error) {
	if cfg.Database != "" {
		return cfg.Database, nil
	}
	cs, err := connstring.ParseAndValidate(cfg.ConnectionString)
	if err != nil {
		return "", fmt.Errorf("parse connection string: %w", err)
	}
	if cs.Database != "" {
		return cs.Database, nil
	}
	return DefaultDatabase, nil
}

func (a *Adapter) Kind() models.BackendKind {
	return models.BackendDocument
}

// Database returns the database name.
func (a *Adapter) Database() string {
	return a.db.Name()
}

func (a *Adapter) Ping(ctx context.Context) error {
	return a.client.Ping(ctx, readpref.Primary())
}

func (a *Adapter) Find(ctx context.Context, object string, filter backend.Filter) ([]backend.Record, error) {
	q, ok := toBSONFilter(filter)
	if !ok {
		return []backend.Record{}, nil
	}

	cursor, err := a.db.Collection(object).Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", object, err)
	}
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("read %s: %w", object, err)
	}

	out := make([]backend.Record, len(docs))
	for i, d := range docs {
		out[i] = fromDocument(d)
	}
	return out, nil
}

func (a *Adapter) FindOne(ctx context.Context, object string, filter backend.Filter) (backend.Record, error) {
	q, ok := toBSONFilter(filter)
	if !ok {
		return nil, nil
	}

	var doc bson.M
	err := a.db.Collection(object).FindOne(ctx, q).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find one in %s: %w", object, err)
	}
	return fromDocument(doc), nil
}

func (a *Adapter) Create(ctx context.Context, object string, rec backend.Record) (backend.Record, error) {
	doc := toDocument(rec)
	if _, err := a.db.Collection(object).InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert into %s: %w", object, err)
	}
	return fromDocument(doc), nil
}

// Update applies the patch to the first matching document and returns the
// document as it is after the update.
func (a *Adapter) Update(ctx context.Context, object string, filter backend.Filter, patch backend.Patch) (backend.Record, error) {
	update, extra, err := toUpdateDocument(patch)
	if err != nil {
		return nil, err
	}

	q, ok := toBSONFilter(filter)
	if !ok {
		return nil, nil
	}
	q = append(q, extra...)

	if update == nil {
		return a.findOneNative(ctx, object, q)
	}

	var doc bson.M
	err = a.db.Collection(object).FindOneAndUpdate(ctx, q, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", object, err)
	}
	return fromDocument(doc), nil
}

func (a *Adapter) findOneNative(ctx context.Context, object string, q bson.D) (backend.Record, error) {
	var doc bson.M
	err := a.db.Collection(object).FindOne(ctx, q).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find one in %s: %w", object, err)
	}
	return fromDocument(doc), nil
}

func (a *Adapter) Delete(ctx context.Context, object string, filter backend.Filter) (int64, error) {
	q, ok := toBSONFilter(filter)
	if !ok {
		return 0, nil
	}
	res, err := a.db.Collection(object).DeleteMany(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", object, err)
	}
	return res.DeletedCount, nil
}

// CreateObject creates the collection if it does not exist. Field
// definitions are descriptive only; the provisioner records them in a
// metadata document.
func (a *Adapter) CreateObject(ctx context.Context, spec backend.ObjectSpec) error {
	if err := a.ensureCollection(ctx, spec.Name); err != nil {
		return err
	}
	a.logger.Info("created export collection", zap.String("collection", spec.Name), zap.Bool("raw", spec.Raw))
	return nil
}

func (a *Adapter) DropObject(ctx context.Context, name string) error {
	if err := a.db.Collection(name).Drop(ctx); err != nil {
		return fmt.Errorf("drop collection %s: %w", name, err)
	}
	return nil
}

func (a *Adapter) Close(ctx context.Context) error {
	return a.client.Disconnect(ctx)
}

func (a *Adapter) ensureCollection(ctx context.Context, name string) error {
	err := a.db.CreateCollection(ctx, name)
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == namespaceExistsCode {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}
