package repositories

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/redis/go-redis/v9"

	"easyform/internal/models"
)

const (
	chunkKeyPrefix      = "chunk:"
	fileChunksKeyPrefix = "file:chunks:"
)

// RedisChunkRepository implements ChunkRepository using Redis
type RedisChunkRepository struct {
	client *redis.Client
}

// NewRedisChunkRepository creates a new Redis-based chunk repository
func NewRedisChunkRepository(client *redis.Client) ChunkRepository {
	return &RedisChunkRepository{client: client}
}

// CreateChunks inserts a batch of chunks in one pipeline.
func (r *RedisChunkRepository) CreateChunks(ctx context.Context, chunks []*models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	for _, chunk := range chunks {
		if err := chunk.Validate(); err != nil {
			return NewChunkRepositoryError("create_chunks", chunk.ID, err, "")
		}
	}

	pipe := r.client.TxPipeline()
	for _, chunk := range chunks {
		data, err := json.Marshal(chunk)
		if err != nil {
			return NewChunkRepositoryError("create_chunks", chunk.ID, err, "failed to marshal chunk")
		}
		pipe.Set(ctx, chunkKeyPrefix+chunk.ID, data, 0)
		pipe.SAdd(ctx, fileChunksKeyPrefix+chunk.FileID, chunk.ID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return NewChunkRepositoryError("create_chunks", "", err, "failed to execute pipeline")
	}
	return nil
}

// GetChunksByIDs returns the existing chunks among ids plus the missing ids.
func (r *RedisChunkRepository) GetChunksByIDs(ctx context.Context, ids []string) ([]*models.DocumentChunk, []string, error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = chunkKeyPrefix + id
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, nil, NewChunkRepositoryError("get_chunks_by_ids", "", err, "")
	}

	chunks := make([]*models.DocumentChunk, 0, len(ids))
	missing := make([]string, 0)
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			missing = append(missing, ids[i])
			continue
		}
		var chunk models.DocumentChunk
		if err := json.Unmarshal([]byte(raw), &chunk); err != nil {
			return nil, nil, NewChunkRepositoryError("get_chunks_by_ids", ids[i], err, "failed to unmarshal chunk")
		}
		chunks = append(chunks, &chunk)
	}
	return chunks, missing, nil
}

// GetChunksByFile returns a file's chunks ordered by chunk_index.
func (r *RedisChunkRepository) GetChunksByFile(ctx context.Context, fileID string) ([]*models.DocumentChunk, error) {
	ids, err := r.client.SMembers(ctx, fileChunksKeyPrefix+fileID).Result()
	if err != nil {
		return nil, NewChunkRepositoryError("get_chunks_by_file", "", err, "")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	chunks, _, err := r.GetChunksByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].ChunkIndex < chunks[j].ChunkIndex
	})
	return chunks, nil
}

// DeleteChunksByFile removes all chunks of a file and returns their ids.
func (r *RedisChunkRepository) DeleteChunksByFile(ctx context.Context, fileID string) ([]string, error) {
	fileKey := fileChunksKeyPrefix + fileID
	ids, err := r.client.SMembers(ctx, fileKey).Result()
	if err != nil {
		return nil, NewChunkRepositoryError("delete_chunks_by_file", "", err, "")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := r.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, chunkKeyPrefix+id)
	}
	pipe.Del(ctx, fileKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, NewChunkRepositoryError("delete_chunks_by_file", "", err, "failed to execute pipeline")
	}
	return ids, nil
}

// Ping checks if Redis is alive
func (r *RedisChunkRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
