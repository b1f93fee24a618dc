package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/taskhub/internal/config"
	"github.com/hitoshi/taskhub/internal/database"
	"github.com/hitoshi/taskhub/internal/handler"
	"github.com/hitoshi/taskhub/internal/repository"
)

// connectTimeout はストアへの初回疎通確認の上限。
const connectTimeout = 10 * time.Second

// stores はSTORE_BACKENDで選ばれたリポジトリ一式。
type stores struct {
	users  repository.UserRepository
	tasks  repository.TaskRepository
	pinger handler.Pinger
	close  func()
}

// openStores は設定されたバックエンドに接続し、リポジトリを初期化する。
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.StoreBackend == config.BackendMongo {
		return openMongoStores(ctx, cfg)
	}
	return openPostgresStores(ctx, cfg)
}

func openPostgresStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	db, err := database.Connect(ctx, cfg.DatabaseURL, connectTimeout)
	if err != nil {
		return nil, err
	}

	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	return &stores{
		users:  repository.NewPostgresUserRepo(db),
		tasks:  repository.NewPostgresTaskRepo(db),
		pinger: db,
		close:  func() { db.Close() },
	}, nil
}

func openMongoStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	client, err := database.OpenMongo(ctx, cfg.MongoURI)
	if err != nil {
		return nil, err
	}

	health := database.MongoHealthChecker{Client: client}
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := health.PingContext(pingCtx); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	slog.Info("mongodb connection established",
		slog.String("mongo_uri", maskDatabaseURL(cfg.MongoURI)),
		slog.String("database", cfg.MongoDatabase),
	)

	// migrateを省略してもemailの一意性が保証されるよう、起動時にも冪等に作成する
	db := client.Database(cfg.MongoDatabase)
	if err := database.EnsureMongoIndexes(ctx, db); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}

	return &stores{
		users:  repository.NewMongoUserRepo(db),
		tasks:  repository.NewMongoTaskRepo(db),
		pinger: health,
		close: func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Disconnect(ctx); err != nil {
				slog.Warn("failed to disconnect mongodb", slog.String("error", err.Error()))
			}
		},
	}, nil
}

func migratePostgres(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

func migrateMongo(ctx context.Context, cfg *config.Config) error {
	client, err := database.OpenMongo(ctx, cfg.MongoURI)
	if err != nil {
		return err
	}
	defer client.Disconnect(context.Background())

	slog.Info("creating mongodb indexes", slog.String("database", cfg.MongoDatabase))
	if err := database.EnsureMongoIndexes(ctx, client.Database(cfg.MongoDatabase)); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("mongodb indexes are in place")
	return nil
}
