// Package milvus implements the vector index on a Milvus deployment, one
// Milvus collection per corpus. Metadata is flattened into scalar columns
// so inclusion filters run server-side, before ranking.
package milvus

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/askdesk/backend/internal/domain"
	"github.com/askdesk/backend/internal/vectorindex"
)

// Columns the index materializes from entry metadata. Metadata keys
// outside this set are dropped at upsert; only these stay filterable.
var metadataColumns = []string{"document_id", "category", "start", "end"}

type Index struct {
	client client.Client
	dim    int
}

func New(ctx context.Context, endpoint, apiKey string, dim int) (*Index, error) {
	c, err := client.NewClient(ctx, client.Config{
		Address: endpoint,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}
	return &Index{client: c, dim: dim}, nil
}

func (x *Index) Close() error {
	return x.client.Close()
}

func (x *Index) ensureCollection(ctx context.Context, name string) error {
	has, err := x.client.HasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if has {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: name,
		Description:    "chunk embeddings",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", x.dim),
				},
			},
			{
				Name:       "text",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "8192"},
			},
			{
				Name:       "document_id",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "category",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "128"},
			},
			{
				Name:       "start",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "32"},
			},
			{
				Name:       "end",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "32"},
			},
		},
	}

	if err := x.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.COSINE, 1024)
	if err != nil {
		return fmt.Errorf("failed to build index config: %w", err)
	}
	if err := x.client.CreateIndex(ctx, name, "embedding", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := x.client.LoadCollection(ctx, name, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	zap.L().Info("Milvus collection created", zap.String("collection", name))
	return nil
}

func (x *Index) Upsert(ctx context.Context, name string, entries []vectorindex.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if len(e.Embedding) != x.dim {
			return &domain.DimensionMismatchError{Got: len(e.Embedding), Want: x.dim}
		}
	}
	if err := x.ensureCollection(ctx, name); err != nil {
		return err
	}

	chunkIDs := make([]string, len(entries))
	embeddings := make([][]float32, len(entries))
	texts := make([]string, len(entries))
	columns := make(map[string][]string, len(metadataColumns))
	for _, key := range metadataColumns {
		columns[key] = make([]string, len(entries))
	}

	for i, e := range entries {
		chunkIDs[i] = e.ChunkID
		embeddings[i] = e.Embedding
		texts[i] = e.Text
		for _, key := range metadataColumns {
			columns[key][i] = e.Metadata[key]
		}
	}

	_, err := x.client.Upsert(
		ctx,
		name,
		"",
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnFloatVector("embedding", x.dim, embeddings),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnVarChar("document_id", columns["document_id"]),
		entity.NewColumnVarChar("category", columns["category"]),
		entity.NewColumnVarChar("start", columns["start"]),
		entity.NewColumnVarChar("end", columns["end"]),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert chunks: %w", err)
	}

	if err := x.client.Flush(ctx, name, false); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return nil
}

func (x *Index) Query(ctx context.Context, name string, embedding []float32, topK int, filter vectorindex.Filter) ([]vectorindex.SearchResult, error) {
	has, err := x.client.HasCollection(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to check collection: %w", err)
	}
	if !has {
		return []vectorindex.SearchResult{}, nil
	}
	if len(embedding) != x.dim {
		return nil, &domain.DimensionMismatchError{Got: len(embedding), Want: x.dim}
	}
	if topK <= 0 {
		return []vectorindex.SearchResult{}, nil
	}

	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := x.client.Search(
		ctx,
		name,
		[]string{},
		buildExpr(filter),
		append([]string{"chunk_id", "text"}, metadataColumns...),
		[]entity.Vector{entity.FloatVector(embedding)},
		"embedding",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]vectorindex.SearchResult, 0)
	for _, sr := range searchResult {
		for i := 0; i < sr.ResultCount; i++ {
			res := vectorindex.SearchResult{
				Similarity: sr.Scores[i],
				Metadata:   make(map[string]string, len(metadataColumns)),
			}
			if v, err := sr.Fields.GetColumn("chunk_id").Get(i); err == nil {
				res.ChunkID, _ = v.(string)
			}
			if v, err := sr.Fields.GetColumn("text").Get(i); err == nil {
				res.Text, _ = v.(string)
			}
			for _, key := range metadataColumns {
				if v, err := sr.Fields.GetColumn(key).Get(i); err == nil {
					if s, ok := v.(string); ok && s != "" {
						res.Metadata[key] = s
					}
				}
			}
			results = append(results, res)
		}
	}
	return results, nil
}

func (x *Index) Delete(ctx context.Context, name string, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	has, err := x.client.HasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !has {
		return nil
	}

	err = x.client.DeleteByPks(ctx, name, "", entity.NewColumnVarChar("chunk_id", chunkIDs))
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

func (x *Index) Exists(ctx context.Context, name string) (bool, error) {
	return x.client.HasCollection(ctx, name)
}

func (x *Index) Drop(ctx context.Context, name string) error {
	has, err := x.client.HasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !has {
		return nil
	}
	return x.client.DropCollection(ctx, name)
}

func buildExpr(filter vectorindex.Filter) string {
	if len(filter) == 0 {
		return ""
	}
	clauses := make([]string, 0, len(filter))
	for _, key := range metadataColumns {
		allowed, ok := filter[key]
		if !ok || len(allowed) == 0 {
			continue
		}
		quoted := make([]string, len(allowed))
		for i, v := range allowed {
			quoted[i] = fmt.Sprintf("%q", v)
		}
		clauses = append(clauses, fmt.Sprintf("%s in [%s]", key, strings.Join(quoted, ", ")))
	}
	return strings.Join(clauses, " && ")
}
