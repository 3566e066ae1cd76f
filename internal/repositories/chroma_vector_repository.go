package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"easyform/internal/db"
	"easyform/internal/models"
)

// ChromaVectorRepository implements VectorRepository over one ChromaDB
// collection using the v2 HTTP client.
type ChromaVectorRepository struct {
	client     *db.ChromaDBClient
	collection string
}

// NewChromaVectorRepository creates a ChromaDB-backed vector repository bound
// to a single collection.
func NewChromaVectorRepository(client *db.ChromaDBClient, collection string) VectorRepository {
	return &ChromaVectorRepository{
		client:     client,
		collection: collection,
	}
}

// EnsureCollection creates the collection with cosine space if missing.
func (r *ChromaVectorRepository) EnsureCollection(ctx context.Context) error {
	_, err := r.client.GetOrCreateCollection(ctx, r.collection)
	if err != nil {
		return NewVectorRepositoryError("ensure_collection", r.collection, err, "")
	}
	return nil
}

// AddEmbeddings stores vectors keyed by chunk id.
func (r *ChromaVectorRepository) AddEmbeddings(ctx context.Context, ids []string, documents []string, embeddings [][]float32, metadatas []map[string]interface{}) error {
	if len(ids) == 0 {
		return nil
	}
	if len(documents) != len(ids) || len(embeddings) != len(ids) || len(metadatas) != len(ids) {
		return NewVectorRepositoryError("add_embeddings", r.collection, nil,
			fmt.Sprintf("mismatched lengths: %d ids, %d documents, %d embeddings, %d metadatas",
				len(ids), len(documents), len(embeddings), len(metadatas)))
	}

	coerced := make([]map[string]interface{}, len(metadatas))
	for i, metadata := range metadatas {
		coerced[i] = coerceMetadata(metadata)
	}

	if err := r.client.AddDocuments(ctx, r.collection, ids, documents, embeddings, coerced); err != nil {
		return NewVectorRepositoryError("add_embeddings", r.collection, err,
			fmt.Sprintf("failed to store %d embeddings", len(ids)))
	}
	return nil
}

// coerceMetadata serializes non-scalar metadata values to JSON strings.
// ChromaDB only accepts string, int, float and bool values.
func coerceMetadata(metadata map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		switch v.(type) {
		case nil:
			continue
		case string, bool, int, int32, int64, float32, float64:
			out[k] = v
		default:
			if encoded, err := json.Marshal(v); err == nil {
				out[k] = string(encoded)
			}
		}
	}
	return out
}

// Query returns the topK nearest hits for one user's chunks.
func (r *ChromaVectorRepository) Query(ctx context.Context, embedding []float32, topK int, userID string) ([]models.VectorHit, error) {
	where := map[string]interface{}{
		"user_id": userID,
	}

	resp, err := r.client.Query(ctx, r.collection, [][]float32{embedding}, topK, where)
	if err != nil {
		return nil, NewVectorRepositoryError("query", r.collection, err, "")
	}

	hits := make([]models.VectorHit, 0)
	if len(resp.IDs) > 0 {
		for i, id := range resp.IDs[0] {
			hit := models.VectorHit{ChunkID: id}
			if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
				hit.Distance = resp.Distances[0][i]
			}
			if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
				hit.Metadata = resp.Metadatas[0][i]
			}
			hits = append(hits, hit)
		}
	}
	return hits, nil
}

// DeleteByFile removes every vector belonging to a file and returns the count.
func (r *ChromaVectorRepository) DeleteByFile(ctx context.Context, userID, fileID string) (int, error) {
	where := map[string]interface{}{
		"$and": []map[string]interface{}{
			{"user_id": userID},
			{"file_id": fileID},
		},
	}

	result, err := r.client.GetDocuments(ctx, r.collection, where, 0, 0, false)
	if err != nil {
		return 0, NewVectorRepositoryError("delete_by_file", r.collection, err, "failed to list file vectors")
	}
	if len(result.IDs) == 0 {
		return 0, nil
	}

	if err := r.client.DeleteDocuments(ctx, r.collection, result.IDs); err != nil {
		return 0, NewVectorRepositoryError("delete_by_file", r.collection, err,
			fmt.Sprintf("failed to delete %d vectors", len(result.IDs)))
	}
	return len(result.IDs), nil
}

// DeleteByIDs removes specific vectors.
func (r *ChromaVectorRepository) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.client.DeleteDocuments(ctx, r.collection, ids); err != nil {
		return NewVectorRepositoryError("delete_by_ids", r.collection, err,
			fmt.Sprintf("failed to delete %d vectors", len(ids)))
	}
	return nil
}

// Ping checks if ChromaDB is alive.
func (r *ChromaVectorRepository) Ping(ctx context.Context) error {
	if err := r.client.Heartbeat(ctx); err != nil {
		return NewVectorRepositoryError("ping", r.collection, err, "ChromaDB heartbeat failed")
	}
	return nil
}
