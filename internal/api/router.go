package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	iauth "github.com/playcohq/playco/internal/auth"
	"github.com/playcohq/playco/internal/gateway"
	"github.com/playcohq/playco/internal/handlers"
	"github.com/playcohq/playco/internal/middleware"
	"github.com/playcohq/playco/internal/playlist"
	"github.com/playcohq/playco/internal/station"
)

// Deps carries everything the router mounts.
type Deps struct {
	DB        *gorm.DB
	Redis     *redis.Client
	JWT       *iauth.JWTService
	Playlists *playlist.Service
	Store     *playlist.Store
	Rooms     *station.RoomRegistry
	Hub       *gateway.Hub
	Gateway   *gateway.Gateway
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.Redis == nil {
		return nil, fmt.Errorf("redis client must be provided")
	}
	if deps.JWT == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if deps.Playlists == nil || deps.Store == nil {
		return nil, fmt.Errorf("playlist service and store must be provided")
	}
	if deps.Rooms == nil {
		return nil, fmt.Errorf("room registry must be provided")
	}
	if deps.Hub == nil || deps.Gateway == nil {
		return nil, fmt.Errorf("gateway must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())

	// Health endpoint (public)
	r.GET("/health", handlers.Health(deps.DB, deps.Redis))

	// Event channel; authentication happens in-band via channel tokens.
	r.GET("/ws", handlers.Realtime(deps.Hub))

	authHandler := handlers.NewAuthHandler(deps.DB, deps.JWT)

	// Public auth routes
	auth := r.Group("/api/auth")
	{
		auth.POST("/login", authHandler.Login)
	}

	// Protected routes
	api := r.Group("/api")
	api.Use(middleware.Auth(deps.JWT))

	api.GET("/auth/me", authHandler.Me)

	tokenHandler := handlers.NewChannelTokenHandler(deps.DB, deps.JWT)
	api.POST("/station/token", tokenHandler.Mint)

	playlistHandler := handlers.NewPlaylistHandler(deps.Playlists, deps.Store, deps.Rooms, deps.Gateway)
	itemHandler := handlers.NewItemHandler(deps.Playlists, deps.Store, deps.Rooms, deps.Gateway)

	playlists := api.Group("/playlists")
	{
		playlists.GET("", playlistHandler.List)
		playlists.POST("", playlistHandler.Create)
		playlists.GET("/:id", playlistHandler.Get)
		playlists.HEAD("/:id", playlistHandler.Head)
		playlists.PATCH("/:id", playlistHandler.Update)
		playlists.DELETE("/:id", playlistHandler.Delete)

		playlists.GET("/:id/items", itemHandler.List)
		playlists.POST("/:id/items", itemHandler.Insert)
		playlists.GET("/:id/items/:pos", itemHandler.GetAt)
		playlists.PATCH("/:id/items/:pos", itemHandler.Move)
		playlists.DELETE("/:id/items/:pos", itemHandler.Delete)
	}

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
