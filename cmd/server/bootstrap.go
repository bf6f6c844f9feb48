package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/playcohq/playco/internal/api"
	"github.com/playcohq/playco/internal/app"
	iauth "github.com/playcohq/playco/internal/auth"
	"github.com/playcohq/playco/internal/database"
	"github.com/playcohq/playco/internal/gateway"
	"github.com/playcohq/playco/internal/playlist"
	"github.com/playcohq/playco/internal/station"
	"github.com/playcohq/playco/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB      *gorm.DB
	Redis   *redis.Client
	Hub     *gateway.Hub
	Gateway *gateway.Gateway
	Router  *gin.Engine
}

// bootstrapRuntime initialises the database, the shared store, services and
// the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(log)
		}
	}()

	// enable gin debug mode only on request
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	stack.Redis = redis.NewClient(&redis.Options{
		Addr:         cfg.Cache.Redis.Address,
		Username:     cfg.Cache.Redis.Username,
		Password:     cfg.Cache.Redis.Password,
		DB:           cfg.Cache.Redis.DB,
		DialTimeout:  cfg.Cache.Redis.Timeout,
		ReadTimeout:  cfg.Cache.Redis.Timeout,
		WriteTimeout: cfg.Cache.Redis.Timeout,
	})
	if err := stack.Redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:          cfg.Auth.JWT.Secret,
		Issuer:          cfg.Auth.JWT.Issuer,
		AccessTokenTTL:  cfg.Auth.JWT.AccessTokenTTL,
		ChannelTokenTTL: cfg.Auth.JWT.ChannelTokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	playlistSvc, err := playlist.NewService(stack.DB, cfg.Playco.MaxPlaylistsPerUser)
	if err != nil {
		return nil, fmt.Errorf("initialise playlist service: %w", err)
	}
	store, err := playlist.NewStore(stack.DB, playlist.NewYouTubeResolver())
	if err != nil {
		return nil, fmt.Errorf("initialise playlist store: %w", err)
	}

	sessions, err := station.NewSessionRegistry(stack.Redis, stack.DB, jwtSvc, cfg.Playco.MaxConnectionsPerUser)
	if err != nil {
		return nil, fmt.Errorf("initialise session registry: %w", err)
	}
	rooms, err := station.NewRoomRegistry(stack.Redis, playlistSvc, store)
	if err != nil {
		return nil, fmt.Errorf("initialise room registry: %w", err)
	}

	stack.Hub = gateway.NewHub()
	stack.Gateway, err = gateway.New(stack.Hub, sessions, rooms, jwtSvc)
	if err != nil {
		return nil, fmt.Errorf("initialise gateway: %w", err)
	}

	stack.Router, err = api.NewRouter(api.Deps{
		DB:        stack.DB,
		Redis:     stack.Redis,
		JWT:       jwtSvc,
		Playlists: playlistSvc,
		Store:     store,
		Rooms:     rooms,
		Hub:       stack.Hub,
		Gateway:   stack.Gateway,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown releases the stack's resources in reverse construction order.
func (s *runtimeStack) Shutdown(log *zap.Logger) {
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis close failed", zap.Error(err))
		}
	}
	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	db, err := database.Open(database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected",
		zap.String("driver", strings.ToLower(strings.TrimSpace(cfg.Database.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("database handle unavailable on shutdown", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("database close failed", zap.Error(err))
	}
}
