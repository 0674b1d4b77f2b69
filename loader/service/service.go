package service

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"papers/loader/internal"
	"papers/model"
	"papers/store"
	"papers/types"
)

// Service runs the ingestion pipeline: watch the source directory,
// turn settled PDFs into embedded chunks, persist them, archive the
// files.
type Service struct {
	logger *slog.Logger
	store  store.DBStorer
	loader *internal.PDFLoader
}

func New(storer store.DBStorer, embedder model.Embedder, cfg types.LoaderConfig) *Service {
	return &Service{
		logger: slog.Default(),
		store:  storer,
		loader: internal.NewPDFLoader(cfg, embedder),
	}
}

func (s *Service) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fileChan := make(chan string, 10)
	docChan := make(chan *internal.Document)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(fileChan)
		s.loader.WatchFiles(ctx, fileChan)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.loader.ProcessFiles(ctx, fileChan, docChan)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.saveDocuments(ctx, docChan)
	}()

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	<-sigch
	s.logger.Info("received shutdown signal, shutting down gracefully")

	cancel()
	signal.Stop(sigch)

	// Bounded wait so a stuck embedding call cannot hang shutdown.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("all pipeline goroutines stopped")
	case <-time.After(5 * time.Second):
		s.logger.Warn("timeout waiting for pipeline goroutines, forcing shutdown")
	}
	s.logger.Info("loader service stopped")
}

// saveDocuments persists each ingested document. Re-ingesting a known
// paper replaces its chunks, keeping position uniqueness intact.
func (s *Service) saveDocuments(ctx context.Context, docChan <-chan *internal.Document) {
	for doc := range docChan {
		if err := s.saveOne(ctx, doc); err != nil {
			if ctx.Err() != nil {
				// Shutdown, not a bad file; leave it for the next run.
				return
			}
			s.logger.Error("[LOADER] failed to save document", "title", doc.Paper.Title, "error", err)
			s.loader.MoveToBad(doc.SourcePath)
			continue
		}
		s.logger.Info("[LOADER] document saved", "title", doc.Paper.Title, "chunks", len(doc.Chunks))
		s.loader.MoveToArchive(doc.SourcePath)
	}
}

func (s *Service) saveOne(ctx context.Context, doc *internal.Document) error {
	if err := s.store.SavePaper(ctx, doc.Paper); err != nil {
		return err
	}
	if err := s.store.DeleteChunksByPaperID(ctx, doc.Paper.ID); err != nil {
		return err
	}
	return s.store.SaveChunks(ctx, doc.Chunks)
}
