package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/deep-saket/color-matching/internal/catalog"
)

// StoredEmbedding is a cached swatch embedding row.
type StoredEmbedding struct {
	Provider  string
	Digest    string
	Embedding []float32
	Dim       int
	CreatedAt time.Time
}

// EmbeddingRepository is a catalog.EmbeddingCache backed by PostgreSQL.
type EmbeddingRepository struct {
	pool *Pool
}

var _ catalog.EmbeddingCache = (*EmbeddingRepository)(nil)

// NewEmbeddingRepository creates a repository on pool.
func NewEmbeddingRepository(pool *Pool) *EmbeddingRepository {
	return &EmbeddingRepository{pool: pool}
}

// Get returns the embedding stored for key.
func (r *EmbeddingRepository) Get(ctx context.Context, key catalog.CacheKey) ([]float32, bool, error) {
	emb, err := r.Lookup(ctx, key)
	if err != nil || emb == nil {
		return nil, false, err
	}
	return emb.Embedding, true, nil
}

// Lookup returns the full row for key, or nil if none is stored.
func (r *EmbeddingRepository) Lookup(ctx context.Context, key catalog.CacheKey) (*StoredEmbedding, error) {
	query := `
		SELECT provider, digest, embedding, dim, created_at
		FROM swatch_embeddings
		WHERE provider = $1 AND digest = $2
	`

	var emb StoredEmbedding
	var vec pgvector.Vector

	err := r.pool.db.QueryRowContext(ctx, query, key.Provider, key.Digest).Scan(
		&emb.Provider,
		&emb.Digest,
		&vec,
		&emb.Dim,
		&emb.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query swatch embedding: %w", err)
	}

	emb.Embedding = vec.Slice()
	return &emb, nil
}

// Put stores embedding under key, replacing any previous value.
func (r *EmbeddingRepository) Put(ctx context.Context, key catalog.CacheKey, embedding []float32) error {
	if len(embedding) == 0 {
		return errors.New("refusing to cache empty embedding")
	}

	query := `
		INSERT INTO swatch_embeddings (provider, digest, embedding, dim, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (provider, digest) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			dim = EXCLUDED.dim,
			created_at = NOW()
	`

	_, err := r.pool.db.ExecContext(ctx, query, key.Provider, key.Digest, pgvector.NewVector(embedding), len(embedding))
	if err != nil {
		return fmt.Errorf("save swatch embedding: %w", err)
	}
	return nil
}

// Count returns the number of embeddings stored for provider, or for all
// providers when provider is empty.
func (r *EmbeddingRepository) Count(ctx context.Context, provider string) (int, error) {
	var count int
	err := r.pool.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM swatch_embeddings WHERE $1::text = '' OR provider = $1", provider,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count swatch embeddings: %w", err)
	}
	return count, nil
}

// DeleteProvider removes every embedding computed by provider.
func (r *EmbeddingRepository) DeleteProvider(ctx context.Context, provider string) (int64, error) {
	res, err := r.pool.db.ExecContext(ctx, "DELETE FROM swatch_embeddings WHERE provider = $1", provider)
	if err != nil {
		return 0, fmt.Errorf("delete swatch embeddings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete swatch embeddings: %w", err)
	}
	return n, nil
}
