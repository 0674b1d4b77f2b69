package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"papers/loader/service"
	"papers/model"
	"papers/store"
	"papers/types"

	"github.com/joho/godotenv"
)

func init() {
	mustLoadEnvVariables()
}

func main() {
	ctx := context.Background()

	pool, err := store.NewPostgresStore(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		log.Fatal("error connecting to Postgres: ", err)
	}
	if err := pool.Init(ctx); err != nil {
		log.Fatal("error creating tables: ", err)
	}

	embedder := model.NewOpenAIEmbedder(
		os.Getenv("OPENAI_EMBEDDING_URL"),
		os.Getenv("OPENAI_API_KEY"),
		os.Getenv("OPENAI_EMBEDDING_MODEL"),
	)

	cfg := types.LoaderConfig{
		MonitoringTime: envDuration("LOADER_MONITORING_TIME", 5*time.Second),
		SourceDir:      os.Getenv("LOADER_SOURCE_DIR"),
		ArchiveDir:     os.Getenv("LOADER_ARCHIVE_DIR"),
		BadDir:         os.Getenv("LOADER_BAD_DIR"),
		ChunkSize:      envInt("CHUNK_SIZE", 200),
		ChunkOverlap:   envInt("CHUNK_OVERLAP", 40),
	}

	service.New(pool, embedder, cfg).Run()

	if err := pool.Close(); err != nil {
		log.Printf("error closing pool: %v\n", err)
	}
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func envDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func mustLoadEnvVariables() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on environment")
	}
}
