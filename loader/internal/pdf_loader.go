package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"papers/model"
	"papers/types"

	"github.com/google/uuid"
)

// Document is one ingested PDF: the paper row plus its embedded
// chunks, ready for the store.
type Document struct {
	Paper      types.Paper
	Chunks     []types.Chunk
	SourcePath string
}

// sidecar is the optional <name>.json the crawler drops next to each
// PDF with the metadata it scraped.
type sidecar struct {
	Title     string `json:"title"`
	Author    string `json:"author"`
	Publisher string `json:"publisher"`
	Year      int    `json:"year"`
	URL       string `json:"url"`
	Abstract  string `json:"abstract"`
}

type PDFLoader struct {
	cfg      types.LoaderConfig
	embedder model.Embedder
	logger   *slog.Logger

	fileMutex       sync.Mutex
	fileFirstSeen   map[string]time.Time
	filesProcessing map[string]bool
}

func NewPDFLoader(cfg types.LoaderConfig, embedder model.Embedder) *PDFLoader {
	createDirectories(cfg.SourceDir, cfg.ArchiveDir, cfg.BadDir)
	return &PDFLoader{
		cfg:             cfg,
		embedder:        embedder,
		logger:          slog.Default(),
		fileFirstSeen:   make(map[string]time.Time),
		filesProcessing: make(map[string]bool),
	}
}

// WatchFiles polls the source directory and emits paths of PDFs that
// have not changed for the configured settle time.
func (l *PDFLoader) WatchFiles(ctx context.Context, fileChan chan<- string) {
	l.logger.Info("[LOADER] monitoring folder", "dir", l.cfg.SourceDir)

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("[LOADER] file watcher stopped")
			return
		case <-ticker.C:
			l.scan(ctx, fileChan)
		}
	}
}

func (l *PDFLoader) scan(ctx context.Context, fileChan chan<- string) {
	files, err := os.ReadDir(l.cfg.SourceDir)
	if err != nil {
		l.logger.Error("[LOADER] error reading source directory", "error", err)
		return
	}

	currentFiles := make(map[string]bool)
	for _, file := range files {
		if file.IsDir() || !strings.EqualFold(filepath.Ext(file.Name()), ".pdf") {
			continue
		}

		filePath := filepath.Join(l.cfg.SourceDir, file.Name())
		currentFiles[filePath] = true

		l.fileMutex.Lock()
		if l.filesProcessing[filePath] {
			l.fileMutex.Unlock()
			continue
		}
		firstSeen, seen := l.fileFirstSeen[filePath]
		if !seen {
			l.fileFirstSeen[filePath] = time.Now()
			l.logger.Info("[LOADER] new file detected", "path", filePath)
			l.fileMutex.Unlock()
			continue
		}
		l.fileMutex.Unlock()

		if time.Since(firstSeen) < l.cfg.MonitoringTime {
			continue
		}

		l.fileMutex.Lock()
		l.filesProcessing[filePath] = true
		l.fileMutex.Unlock()

		select {
		case fileChan <- filePath:
		case <-ctx.Done():
			return
		}
	}

	// Drop tracking for files that disappeared from the directory.
	l.fileMutex.Lock()
	for filePath := range l.fileFirstSeen {
		if !currentFiles[filePath] {
			delete(l.fileFirstSeen, filePath)
			delete(l.filesProcessing, filePath)
		}
	}
	l.fileMutex.Unlock()
}

// ProcessFiles turns queued PDFs into Documents: validate, extract
// page text, chunk, embed, attach sidecar metadata.
func (l *PDFLoader) ProcessFiles(ctx context.Context, fileChan <-chan string, docChan chan<- *Document) {
	defer close(docChan)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("[LOADER] file processor stopped")
			return
		case filePath, ok := <-fileChan:
			if !ok {
				return
			}
			doc, err := l.process(ctx, filePath)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				l.logger.Error("[LOADER] failed to process file", "path", filePath, "error", err)
				l.MoveToBad(filePath)
				continue
			}
			select {
			case docChan <- doc:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (l *PDFLoader) process(ctx context.Context, filePath string) (*Document, error) {
	pageCount, err := ValidatePDF(filePath)
	if err != nil {
		return nil, err
	}
	pages, err := ExtractPages(filePath)
	if err != nil {
		return nil, err
	}

	paper := l.paperFor(filePath)
	doc := &Document{
		Paper:      paper,
		SourcePath: filePath,
	}

	index := 0
	for pageNo, text := range pages {
		for _, content := range SplitWords(text, l.cfg.ChunkSize, l.cfg.ChunkOverlap) {
			embedding, err := l.embedder.Embed(ctx, content)
			if err != nil {
				return nil, fmt.Errorf("embedding chunk %d: %w", index, err)
			}
			doc.Chunks = append(doc.Chunks, types.Chunk{
				ID:        uuid.New(),
				PaperID:   paper.ID,
				Index:     index,
				Page:      pageNo + 1,
				Content:   content,
				Embedding: embedding,
			})
			index++
		}
	}

	l.logger.Info("[LOADER] processed file", "path", filePath, "pages", pageCount, "chunks", len(doc.Chunks))
	return doc, nil
}

// paperFor builds the paper row from the crawler's sidecar when it
// exists, otherwise from the filename. The id is derived from the
// source name so re-ingesting the same file stays idempotent.
func (l *PDFLoader) paperFor(filePath string) types.Paper {
	name := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	paper := types.Paper{
		ID:        uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+name)),
		Title:     name,
		URL:       "file://" + name,
		PDFPath:   filepath.Join(l.cfg.ArchiveDir, filepath.Base(filePath)),
		CreatedAt: time.Now().UTC(),
	}

	sidecarPath := strings.TrimSuffix(filePath, filepath.Ext(filePath)) + ".json"
	data, err := os.ReadFile(sidecarPath)
	if err != nil {
		return paper
	}
	var sc sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		l.logger.Warn("[LOADER] bad metadata sidecar", "path", sidecarPath, "error", err)
		return paper
	}

	if sc.Title != "" {
		paper.Title = sc.Title
	}
	paper.Author = sc.Author
	paper.Publisher = sc.Publisher
	paper.Year = sc.Year
	paper.Abstract = sc.Abstract
	if sc.URL != "" {
		paper.URL = sc.URL
		paper.ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(sc.URL))
	}
	return paper
}

func (l *PDFLoader) MoveToArchive(filePath string) {
	l.moveFile(filePath, l.cfg.ArchiveDir)
	sidecarPath := strings.TrimSuffix(filePath, filepath.Ext(filePath)) + ".json"
	if _, err := os.Stat(sidecarPath); err == nil {
		l.moveFile(sidecarPath, l.cfg.ArchiveDir)
	}
}

func (l *PDFLoader) MoveToBad(filePath string) {
	l.moveFile(filePath, l.cfg.BadDir)
}

func (l *PDFLoader) moveFile(filePath, destDir string) {
	dest := filepath.Join(destDir, filepath.Base(filePath))
	if err := os.Rename(filePath, dest); err != nil {
		l.logger.Error("[LOADER] failed to move file", "from", filePath, "to", dest, "error", err)
	}
}

func createDirectories(dirs ...string) {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		_ = os.MkdirAll(dir, 0o755)
	}
}
