package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"papers/crawler"

	"github.com/joho/godotenv"
)

func init() {
	mustLoadEnvVariables()
}

func main() {
	var (
		keyword = flag.String("keyword", "", "search keyword (required)")
		pages   = flag.Int("pages", 1, "number of result pages to crawl")
	)
	flag.Parse()
	if *keyword == "" {
		flag.Usage()
		os.Exit(2)
	}

	rps, _ := strconv.ParseFloat(os.Getenv("CRAWLER_REQUESTS_PER_SECOND"), 64)
	c := crawler.New(crawler.Config{
		SearchURL:         os.Getenv("CRAWLER_SEARCH_URL"),
		SourceDir:         os.Getenv("LOADER_SOURCE_DIR"),
		RequestsPerSecond: rps,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := c.Run(ctx, *keyword, *pages); err != nil {
		log.Fatal("crawl failed: ", err)
	}
}

func mustLoadEnvVariables() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on environment")
	}
}
