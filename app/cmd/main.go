package main

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"papers/app/server"

	"github.com/joho/godotenv"
)

func init() {
	mustLoadEnvVariables()
}

func main() {
	rateMax, _ := strconv.Atoi(os.Getenv("RATE_LIMIT_PER_MINUTE"))
	s := server.NewServer(server.Config{
		ListenAddr:     os.Getenv("SERVER_ADDR"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		EmbeddingURL:   os.Getenv("OPENAI_EMBEDDING_URL"),
		EmbeddingModel: os.Getenv("OPENAI_EMBEDDING_MODEL"),
		ChatURL:        os.Getenv("OPENAI_CHAT_URL"),
		ChatModel:      os.Getenv("OPENAI_CHAT_MODEL"),
		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		CORSOrigins:    os.Getenv("CORS_ORIGINS"),
		RateLimitMax:   rateMax,
	})

	go func() {
		if err := s.Run(); err != nil {
			log.Fatal("server error: ", err)
		}
	}()

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	<-sigch
	log.Println("Received shutdown signal, shutting down server...")
	s.Stop()
}

func mustLoadEnvVariables() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on environment")
	}
}
