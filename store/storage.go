package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"papers/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

var ErrNotFound = errors.New("not found")

// DBStorer is the persistence surface of the service: paper metadata,
// chunk rows with embeddings, and the two retrieval queries the
// ranking engine fans out to.
type DBStorer interface {
	SavePaper(ctx context.Context, paper types.Paper) error
	GetPaperByID(ctx context.Context, id uuid.UUID) (*types.Paper, error)
	GetPaperByURL(ctx context.Context, url string) (*types.Paper, error)
	GetPapersByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]types.Paper, error)
	ListPapers(ctx context.Context, q string, offset, limit int) ([]types.Paper, error)
	ListPapersByAuthor(ctx context.Context, author string, offset, limit int) ([]types.Paper, error)
	RecentPapers(ctx context.Context, limit int) ([]types.Paper, error)
	PaperStats(ctx context.Context) (*types.PaperStats, error)
	TitleSuggestions(ctx context.Context, prefix string, limit int) ([]string, error)

	SaveChunks(ctx context.Context, chunks []types.Chunk) error
	DeleteChunksByPaperID(ctx context.Context, paperID uuid.UUID) error
	SearchByVector(ctx context.Context, embedding []float32, limit int) ([]types.ChunkMatch, error)
	SearchByText(ctx context.Context, query string, limit int) ([]types.ChunkMatch, error)
}

type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{
		pool:   pool,
		logger: slog.Default(),
	}, nil
}

func (p *PostgresStore) SavePaper(ctx context.Context, paper types.Paper) error {
	query := `INSERT INTO papers (id, title, author, publisher, year, url, pdf_path, abstract, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			author = EXCLUDED.author,
			publisher = EXCLUDED.publisher,
			year = EXCLUDED.year,
			pdf_path = EXCLUDED.pdf_path,
			abstract = EXCLUDED.abstract,
			meta = EXCLUDED.meta
		`
	_, err := p.pool.Exec(
		ctx,
		query,
		paper.ID,
		paper.Title,
		paper.Author,
		paper.Publisher,
		paper.Year,
		paper.URL,
		paper.PDFPath,
		paper.Abstract,
		paper.Meta,
		paper.CreatedAt,
	)
	return err
}

func (p *PostgresStore) GetPaperByID(ctx context.Context, id uuid.UUID) (*types.Paper, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, title, author, publisher, year, url, pdf_path, abstract, meta, created_at
		FROM papers WHERE id = $1`, id)
	return scanPaperRow(row)
}

func (p *PostgresStore) GetPaperByURL(ctx context.Context, url string) (*types.Paper, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, title, author, publisher, year, url, pdf_path, abstract, meta, created_at
		FROM papers WHERE url = $1`, url)
	return scanPaperRow(row)
}

// GetPapersByIDs resolves metadata for a result page in one round
// trip. Callers must never loop this per row.
func (p *PostgresStore) GetPapersByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]types.Paper, error) {
	papers := make(map[uuid.UUID]types.Paper, len(ids))
	if len(ids) == 0 {
		return papers, nil
	}

	rows, err := p.pool.Query(ctx, `SELECT id, title, author, publisher, year, url, pdf_path, abstract, meta, created_at
		FROM papers WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		paper, err := scanPaper(rows)
		if err != nil {
			return nil, err
		}
		papers[paper.ID] = *paper
	}
	return papers, rows.Err()
}

func (p *PostgresStore) ListPapers(ctx context.Context, q string, offset, limit int) ([]types.Paper, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if q != "" {
		pattern := "%" + q + "%"
		rows, err = p.pool.Query(ctx, `SELECT id, title, author, publisher, year, url, pdf_path, abstract, meta, created_at
			FROM papers
			WHERE title ILIKE $1 OR author ILIKE $1 OR publisher ILIKE $1
			ORDER BY created_at DESC, id
			OFFSET $2 LIMIT $3`, pattern, offset, limit)
	} else {
		rows, err = p.pool.Query(ctx, `SELECT id, title, author, publisher, year, url, pdf_path, abstract, meta, created_at
			FROM papers
			ORDER BY created_at DESC, id
			OFFSET $1 LIMIT $2`, offset, limit)
	}
	if err != nil {
		return nil, err
	}
	return collectPapers(rows)
}

func (p *PostgresStore) ListPapersByAuthor(ctx context.Context, author string, offset, limit int) ([]types.Paper, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, title, author, publisher, year, url, pdf_path, abstract, meta, created_at
		FROM papers
		WHERE author ILIKE $1
		ORDER BY created_at DESC, id
		OFFSET $2 LIMIT $3`, "%"+author+"%", offset, limit)
	if err != nil {
		return nil, err
	}
	return collectPapers(rows)
}

func (p *PostgresStore) RecentPapers(ctx context.Context, limit int) ([]types.Paper, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, title, author, publisher, year, url, pdf_path, abstract, meta, created_at
		FROM papers
		ORDER BY created_at DESC, id
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return collectPapers(rows)
}

func (p *PostgresStore) PaperStats(ctx context.Context) (*types.PaperStats, error) {
	stats := &types.PaperStats{}
	row := p.pool.QueryRow(ctx, `SELECT
		(SELECT count(*) FROM papers),
		(SELECT count(*) FROM papers WHERE pdf_path <> ''),
		(SELECT count(*) FROM chunks)`)
	if err := row.Scan(&stats.TotalPapers, &stats.PapersWithPDF, &stats.TotalChunks); err != nil {
		return nil, err
	}
	if stats.TotalPapers > 0 {
		stats.PDFCoverage = float64(stats.PapersWithPDF) / float64(stats.TotalPapers) * 100
	}
	return stats, nil
}

func (p *PostgresStore) TitleSuggestions(ctx context.Context, prefix string, limit int) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT DISTINCT word FROM (
			SELECT lower(unnest(string_to_array(title, ' '))) AS word FROM papers
		) words
		WHERE word LIKE $1 || '%' AND length(word) >= 3
		ORDER BY word
		LIMIT $2`, strings.ToLower(prefix), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var suggestions []string
	for rows.Next() {
		var word string
		if err := rows.Scan(&word); err != nil {
			return nil, err
		}
		suggestions = append(suggestions, word)
	}
	return suggestions, rows.Err()
}

// SaveChunks bulk-inserts a paper's chunks in one batch.
func (p *PostgresStore) SaveChunks(ctx context.Context, chunks []types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `INSERT INTO chunks (id, paper_id, position, page, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)`
	for _, c := range chunks {
		batch.Queue(query, c.ID, c.PaperID, c.Index, c.Page, c.Content, pgvector.NewVector(c.Embedding))
	}

	br := p.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range chunks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("error saving chunk batch: %w", err)
		}
	}
	return nil
}

func (p *PostgresStore) DeleteChunksByPaperID(ctx context.Context, paperID uuid.UUID) error {
	_, err := p.pool.Exec(ctx, "DELETE FROM chunks WHERE paper_id = $1", paperID)
	return err
}

// SearchByVector returns the top chunks by ascending cosine distance
// to the query embedding. Score carries the raw distance.
func (p *PostgresStore) SearchByVector(ctx context.Context, embedding []float32, limit int) ([]types.ChunkMatch, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("empty query embedding")
	}

	query := `
		SELECT c.id, c.paper_id, c.position, c.content,
		       c.embedding <=> $1 AS distance
		FROM chunks c
		WHERE c.embedding IS NOT NULL
		ORDER BY c.embedding <=> $1
		LIMIT $2
	`
	rows, err := p.pool.Query(ctx, query, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, err
	}
	return collectMatches(rows)
}

// SearchByText returns the top chunks by ts_rank relevance against a
// websearch-style query. Score carries the raw relevance.
func (p *PostgresStore) SearchByText(ctx context.Context, query string, limit int) ([]types.ChunkMatch, error) {
	q := `
		SELECT c.id, c.paper_id, c.position, c.content,
		       ts_rank(to_tsvector('simple', c.content), websearch_to_tsquery('simple', $1)) AS relevance
		FROM chunks c
		WHERE to_tsvector('simple', c.content) @@ websearch_to_tsquery('simple', $1)
		ORDER BY relevance DESC, c.position, c.id
		LIMIT $2
	`
	rows, err := p.pool.Query(ctx, q, query, limit)
	if err != nil {
		return nil, err
	}
	return collectMatches(rows)
}

func collectMatches(rows pgx.Rows) ([]types.ChunkMatch, error) {
	defer rows.Close()
	var matches []types.ChunkMatch
	for rows.Next() {
		var m types.ChunkMatch
		if err := rows.Scan(&m.ChunkID, &m.PaperID, &m.Index, &m.Content, &m.Score); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func collectPapers(rows pgx.Rows) ([]types.Paper, error) {
	defer rows.Close()
	var papers []types.Paper
	for rows.Next() {
		paper, err := scanPaper(rows)
		if err != nil {
			return nil, err
		}
		papers = append(papers, *paper)
	}
	return papers, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPaperRow(row pgx.Row) (*types.Paper, error) {
	paper, err := scanPaper(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return paper, err
}

func scanPaper(row rowScanner) (*types.Paper, error) {
	paper := &types.Paper{}
	err := row.Scan(
		&paper.ID,
		&paper.Title,
		&paper.Author,
		&paper.Publisher,
		&paper.Year,
		&paper.URL,
		&paper.PDFPath,
		&paper.Abstract,
		&paper.Meta,
		&paper.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return paper, nil
}

func (p *PostgresStore) createTables(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS papers (
		id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		author TEXT NOT NULL DEFAULT '',
		publisher TEXT NOT NULL DEFAULT '',
		year INT NOT NULL DEFAULT 0,
		url TEXT NOT NULL DEFAULT '',
		pdf_path TEXT NOT NULL DEFAULT '',
		abstract TEXT NOT NULL DEFAULT '',
		meta JSONB,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_papers_title ON papers(title);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_papers_url ON papers(url) WHERE url <> '';

	CREATE TABLE IF NOT EXISTS chunks (
		id UUID PRIMARY KEY,
		paper_id UUID NOT NULL REFERENCES papers(id) ON DELETE CASCADE,
		position INT NOT NULL,
		page INT NOT NULL DEFAULT 0,
		content TEXT NOT NULL,
		embedding vector(%d),
		UNIQUE (paper_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_paper_id ON chunks(paper_id);

	CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks
		USING hnsw (embedding vector_cosine_ops)
		WITH (m = 16, ef_construction = 64);

	CREATE INDEX IF NOT EXISTS idx_chunks_content_fts ON chunks
		USING gin (to_tsvector('simple', content));
	`, types.EmbeddingDim)
	_, err := p.pool.Exec(ctx, query)
	return err
}

func (p *PostgresStore) Init(ctx context.Context) error {
	return p.createTables(ctx)
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		p.logger.Info("postgres connection pool closed")
	}
	return nil
}
