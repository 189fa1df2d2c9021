package app

import (
	"context"
	"fmt"

	"analysis-engine/internal/common/logging"
	"analysis-engine/internal/datastore"
	"analysis-engine/internal/storage"
)

// initializeDatabases opens the lookup database components refer to by
// name. A SQL datastore is registered too, so jobs can write results next
// to their input.
func (app *App) initializeDatabases(ctx context.Context) error {
	if !app.Config.HasLookupDatabase() {
		app.Logger.Info("Lookup database: Not configured")
		return nil
	}

	db, err := storage.Open(ctx, app.Config.LookupDatabaseName, app.Config.LookupDatabaseType, app.Config.LookupDatabaseDSN)
	if err != nil {
		return fmt.Errorf("failed to open lookup database: %w", err)
	}
	app.Environment.Databases[db.Name] = db
	app.databases = append(app.databases, db)
	app.Logger.Info("Lookup database: Connected",
		logging.String("name", db.Name),
		logging.String("type", app.Config.LookupDatabaseType))
	return nil
}

func (app *App) initializeRejectStore(ctx context.Context) error {
	store, err := storage.NewRejectStore(ctx, app.Config.RejectStoreType, app.Config.RejectStoreDSN)
	if err != nil {
		return fmt.Errorf("failed to initialize reject store: %w", err)
	}
	app.Rejects = store
	app.Environment.Rejects = store
	app.Logger.Info("Reject store: Ready", logging.String("location", store.Location()))
	return nil
}

func (app *App) initializeSource(ctx context.Context) error {
	src, err := datastore.Open(ctx, "source", app.Config.DatastoreType, app.Config.DatastoreDSN)
	if err != nil {
		return fmt.Errorf("failed to open datastore: %w", err)
	}
	app.Source = src

	if sql, ok := src.(*datastore.SQL); ok {
		if _, taken := app.Environment.Databases[sql.Database().Name]; !taken {
			app.Environment.Databases[sql.Database().Name] = sql.Database()
		}
	}

	app.Logger.Info("Datastore: Opened", logging.String("type", app.Config.DatastoreType))
	return nil
}
