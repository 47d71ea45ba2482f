package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

type collectionSetup struct {
	name    string
	indexes []mongo.IndexModel
}

func coreCollections() []collectionSetup {
	return []collectionSetup{
		{
			name: "projects",
			indexes: []mongo.IndexModel{
				{Keys: bson.D{{Key: "members.userId", Value: 1}}},
				{Keys: bson.D{{Key: "name", Value: 1}}},
			},
		},
		{
			name: "project_metadata",
			indexes: []mongo.IndexModel{
				{Keys: bson.D{{Key: "projectId", Value: 1}}, Options: options.Index().SetUnique(true)},
			},
		},
		{
			name: "users",
			indexes: []mongo.IndexModel{
				{Keys: bson.D{{Key: "userId", Value: 1}}, Options: options.Index().SetUnique(true)},
			},
		},
	}
}

// Bootstrap creates the core collections and their indexes. Both steps are
// idempotent.
func (a *Adapter) Bootstrap(ctx context.Context) error {
	for _, c := range coreCollections() {
		if err := a.ensureCollection(ctx, c.name); err != nil {
			return err
		}
		if len(c.indexes) == 0 {
			continue
		}
		if _, err := a.db.Collection(c.name).Indexes().CreateMany(ctx, c.indexes); err != nil {
			return fmt.Errorf("create indexes on %s: %w", c.name, err)
		}
	}
	a.logger.Info("document collections ready", zap.String("database", a.db.Name()))
	return nil
}
