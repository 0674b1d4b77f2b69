package types

import (
	"time"

	"github.com/google/uuid"
)

// EmbeddingDim is the fixed dimensionality of chunk embeddings.
// Must match the embedding model output size.
const EmbeddingDim = 1536

// Paper holds the metadata of one crawled academic paper.
type Paper struct {
	ID        uuid.UUID         `json:"id"`
	Title     string            `json:"title"`
	Author    string            `json:"author,omitempty"`
	Publisher string            `json:"publisher,omitempty"`
	Year      int               `json:"year,omitempty"`
	URL       string            `json:"url,omitempty"`
	PDFPath   string            `json:"pdf_path,omitempty"`
	Abstract  string            `json:"abstract,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Chunk is one contiguous span of text extracted from a paper.
// Chunks are written once by the loader and never updated.
type Chunk struct {
	ID        uuid.UUID
	PaperID   uuid.UUID
	Index     int // zero-based position within the paper
	Page      int
	Content   string
	Embedding []float32
}

// ChunkMatch is a chunk id with its native retrieval score: cosine
// distance for vector candidates, ts_rank relevance for lexical ones.
type ChunkMatch struct {
	ChunkID uuid.UUID
	PaperID uuid.UUID
	Index   int
	Content string
	Score   float64
}

// SearchResult is one ranked paper in a search response. Exactly one
// result per paper; Score is non-increasing down the result list.
type SearchResult struct {
	PaperID      uuid.UUID `json:"paper_id"`
	Title        string    `json:"title"`
	Author       string    `json:"author,omitempty"`
	Publisher    string    `json:"publisher,omitempty"`
	Year         int       `json:"year,omitempty"`
	ChunkText    string    `json:"chunk_text"`
	Score        float64   `json:"score"`
	VectorScore  float64   `json:"vector_score"`
	LexicalScore float64   `json:"lexical_score"`
	Rank         int       `json:"rank"`
}

// PaperStats summarizes the state of the corpus.
type PaperStats struct {
	TotalPapers   int     `json:"total_papers"`
	PapersWithPDF int     `json:"papers_with_pdf"`
	TotalChunks   int     `json:"total_chunks"`
	PDFCoverage   float64 `json:"pdf_coverage_percentage"`
}

// LoaderConfig drives the ingestion pipeline.
type LoaderConfig struct {
	MonitoringTime time.Duration
	SourceDir      string
	ArchiveDir     string
	BadDir         string
	ChunkSize      int // words per chunk
	ChunkOverlap   int // words shared between adjacent chunks
}
