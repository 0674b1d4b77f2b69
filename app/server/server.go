package server

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"papers/app/agent"
	"papers/app/api"
	"papers/model"
	"papers/search"
	"papers/store"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/websocket/v2"
)

// Config is assembled once in main and passed down; nothing below
// this point reads the environment.
type Config struct {
	ListenAddr     string
	DatabaseURL    string
	EmbeddingURL   string
	EmbeddingModel string
	ChatURL        string
	ChatModel      string
	OpenAIAPIKey   string
	CORSOrigins    string
	RateLimitMax   int
}

type Server struct {
	cfg    Config
	logger *slog.Logger
	app    *fiber.App
	store  *store.PostgresStore
}

func NewServer(cfg Config) *Server {
	if cfg.RateLimitMax <= 0 {
		cfg.RateLimitMax = 100
	}
	if cfg.CORSOrigins == "" {
		cfg.CORSOrigins = "*"
	}
	return &Server{
		cfg:    cfg,
		logger: slog.Default(),
	}
}

func (s *Server) Run() error {
	ctx := context.Background()

	pool, err := store.NewPostgresStore(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	s.store = pool

	if err := pool.Init(ctx); err != nil {
		return err
	}

	embedder := model.NewOpenAIEmbedder(s.cfg.EmbeddingURL, s.cfg.OpenAIAPIKey, s.cfg.EmbeddingModel)
	engine := search.NewEngine(pool, embedder, s.logger)
	chatAgent := agent.New(agent.Config{
		URL:    s.cfg.ChatURL,
		APIKey: s.cfg.OpenAIAPIKey,
		Model:  s.cfg.ChatModel,
	})

	var (
		app = fiber.New(fiber.Config{
			ErrorHandler: api.ErrorHandler,
		})
		checkHandler  = api.NewCheckHandler()
		searchHandler = api.NewSearchHandler(engine, pool)
		paperHandler  = api.NewPaperHandler(pool)
		chatHandler   = api.NewChatHandler(engine, chatAgent, s.logger)
		check         = app.Group("/check")
		apiv1         = app.Group("/api/v1")
	)
	s.app = app

	app.Use(cors.New(cors.Config{
		AllowOrigins: s.cfg.CORSOrigins,
		AllowMethods: strings.Join([]string{fiber.MethodGet, fiber.MethodPost, fiber.MethodOptions}, ","),
	}))
	app.Use(limiter.New(limiter.Config{
		Max:        s.cfg.RateLimitMax,
		Expiration: time.Minute,
	}))

	check.Get("/healthy", checkHandler.HandleHealthy)

	apiv1.Get("/papers", paperHandler.HandleListPapers)
	apiv1.Post("/papers", paperHandler.HandleCreatePaper)
	apiv1.Get("/papers/recent", paperHandler.HandleRecentPapers)
	apiv1.Get("/papers/stats", paperHandler.HandlePaperStats)
	apiv1.Get("/papers/author/:author", paperHandler.HandlePapersByAuthor)
	apiv1.Get("/papers/:id", paperHandler.HandleGetPaper)
	apiv1.Get("/papers/:id/pdf", paperHandler.HandleGetPDF)

	apiv1.Post("/search", searchHandler.HandleSemanticSearch)
	apiv1.Post("/search/text", searchHandler.HandleTextSearch)
	apiv1.Post("/search/hybrid", searchHandler.HandleHybridSearch)
	apiv1.Get("/search/suggestions", searchHandler.HandleSuggestions)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat", websocket.New(chatHandler.HandleChat))

	s.logger.Info("server listening", "addr", s.cfg.ListenAddr)
	return app.Listen(s.cfg.ListenAddr)
}

func (s *Server) Stop() {
	if s.app != nil {
		_ = s.app.Shutdown()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
	s.logger.Info("server stopped")
}
