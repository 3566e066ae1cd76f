package repositories

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"easyform/internal/models"
)

const (
	fileKeyPrefix      = "file:"
	userFilesKeyPrefix = "user:files:"
)

// RedisFileRepository implements FileRepository using Redis
type RedisFileRepository struct {
	client *redis.Client
}

// NewRedisFileRepository creates a new Redis-based file repository
func NewRedisFileRepository(client *redis.Client) FileRepository {
	return &RedisFileRepository{client: client}
}

// CreateFile creates a new file row
func (r *RedisFileRepository) CreateFile(ctx context.Context, file *models.File) error {
	if err := file.Validate(); err != nil {
		return NewFileRepositoryError("create_file", file.ID, err, "")
	}

	now := time.Now().UTC()
	if file.CreatedAt.IsZero() {
		file.CreatedAt = now
	}
	file.UpdatedAt = now

	data, err := json.Marshal(file)
	if err != nil {
		return NewFileRepositoryError("create_file", file.ID, err, "failed to marshal file")
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, fileKeyPrefix+file.ID, data, 0)
	pipe.SAdd(ctx, userFilesKeyPrefix+file.UserID, file.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return NewFileRepositoryError("create_file", file.ID, err, "failed to execute transaction")
	}
	return nil
}

// GetFile retrieves a file by ID
func (r *RedisFileRepository) GetFile(ctx context.Context, id string) (*models.File, error) {
	data, err := r.client.Get(ctx, fileKeyPrefix+id).Result()
	if err == redis.Nil {
		return nil, FileNotFoundError(id)
	}
	if err != nil {
		return nil, NewFileRepositoryError("get_file", id, err, "")
	}

	var file models.File
	if err := json.Unmarshal([]byte(data), &file); err != nil {
		return nil, NewFileRepositoryError("get_file", id, err, "failed to unmarshal file")
	}
	return &file, nil
}

// ListFilesByUser returns a user's files, newest first.
func (r *RedisFileRepository) ListFilesByUser(ctx context.Context, userID string) ([]*models.File, error) {
	ids, err := r.client.SMembers(ctx, userFilesKeyPrefix+userID).Result()
	if err != nil {
		return nil, NewFileRepositoryError("list_files", "", err, "")
	}

	files := make([]*models.File, 0, len(ids))
	for _, id := range ids {
		file, err := r.GetFile(ctx, id)
		if err != nil {
			if IsFileNotFound(err) {
				r.client.SRem(ctx, userFilesKeyPrefix+userID, id)
				continue
			}
			return nil, err
		}
		files = append(files, file)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].CreatedAt.After(files[j].CreatedAt)
	})
	return files, nil
}

// UpdateFile updates an existing file row
func (r *RedisFileRepository) UpdateFile(ctx context.Context, file *models.File) error {
	if err := file.Validate(); err != nil {
		return NewFileRepositoryError("update_file", file.ID, err, "")
	}

	if _, err := r.GetFile(ctx, file.ID); err != nil {
		return err
	}

	file.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(file)
	if err != nil {
		return NewFileRepositoryError("update_file", file.ID, err, "failed to marshal file")
	}

	if err := r.client.Set(ctx, fileKeyPrefix+file.ID, data, 0).Err(); err != nil {
		return NewFileRepositoryError("update_file", file.ID, err, "failed to save file")
	}
	return nil
}

// DeleteFile removes a file row. Chunk and vector cleanup is the service
// layer's job.
func (r *RedisFileRepository) DeleteFile(ctx context.Context, id string) error {
	file, err := r.GetFile(ctx, id)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, fileKeyPrefix+id)
	pipe.SRem(ctx, userFilesKeyPrefix+file.UserID, id)

	if _, err := pipe.Exec(ctx); err != nil {
		return NewFileRepositoryError("delete_file", id, err, "failed to execute transaction")
	}
	return nil
}

// Ping checks if Redis is alive
func (r *RedisFileRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
