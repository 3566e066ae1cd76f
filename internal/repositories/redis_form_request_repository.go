package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"easyform/internal/models"
)

const (
	requestKeyPrefix       = "form_request:"
	requestIndexKey        = "form_requests:index"
	requestActiveKeyPrefix = "form_request:active:"
	progressKeyPrefix      = "form_request:progress:"
	progressSeqKeyPrefix   = "form_request:progress_seq:"
	actionsKeyPrefix       = "form_request:actions:"
)

// RedisFormRequestRepository implements FormRequestRepository using Redis
type RedisFormRequestRepository struct {
	client *redis.Client
}

// NewRedisFormRequestRepository creates a new Redis-based form request repository
func NewRedisFormRequestRepository(client *redis.Client) FormRequestRepository {
	return &RedisFormRequestRepository{client: client}
}

// CreateRequest creates a new request row and marks it as the owner's active
// request.
func (r *RedisFormRequestRepository) CreateRequest(ctx context.Context, request *models.FormRequest) error {
	if err := request.Validate(); err != nil {
		return NewRequestRepositoryError("create_request", request.ID, err, "")
	}

	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(request)
	if err != nil {
		return NewRequestRepositoryError("create_request", request.ID, err, "failed to marshal request")
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, requestKeyPrefix+request.ID, data, 0)
	pipe.ZAdd(ctx, requestIndexKey, redis.Z{
		Score:  float64(request.CreatedAt.Unix()),
		Member: request.ID,
	})
	if request.Status.IsActive() {
		pipe.Set(ctx, requestActiveKeyPrefix+request.UserID, request.ID, 0)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return NewRequestRepositoryError("create_request", request.ID, err, "failed to execute transaction")
	}
	return nil
}

// GetRequest retrieves a request by ID
func (r *RedisFormRequestRepository) GetRequest(ctx context.Context, id string) (*models.FormRequest, error) {
	data, err := r.client.Get(ctx, requestKeyPrefix+id).Result()
	if err == redis.Nil {
		return nil, RequestNotFoundError(id)
	}
	if err != nil {
		return nil, NewRequestRepositoryError("get_request", id, err, "")
	}

	var request models.FormRequest
	if err := json.Unmarshal([]byte(data), &request); err != nil {
		return nil, NewRequestRepositoryError("get_request", id, err, "failed to unmarshal request")
	}
	return &request, nil
}

// GetActiveRequestByUser returns the user's active request, or nil when the
// user has none. A stale active pointer (terminal or deleted request) is
// cleared on the way.
func (r *RedisFormRequestRepository) GetActiveRequestByUser(ctx context.Context, userID string) (*models.FormRequest, error) {
	activeKey := requestActiveKeyPrefix + userID
	id, err := r.client.Get(ctx, activeKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, NewRequestRepositoryError("get_active_request", "", err, "")
	}

	request, err := r.GetRequest(ctx, id)
	if err != nil {
		if IsRequestNotFound(err) {
			r.client.Del(ctx, activeKey)
			return nil, nil
		}
		return nil, err
	}

	if !request.Status.IsActive() {
		r.client.Del(ctx, activeKey)
		return nil, nil
	}
	return request, nil
}

// UpdateStatus transitions a request, stamping started_at on the first move
// into a processing state and completed_at on reaching a terminal state.
func (r *RedisFormRequestRepository) UpdateStatus(ctx context.Context, id string, status models.FormRequestStatus, fieldsDetected *int, errorMessage string) error {
	if !status.IsValid() {
		return NewRequestRepositoryError("update_status", id, nil, "invalid status: "+string(status))
	}

	request, err := r.GetRequest(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	request.Status = status
	if status.IsProcessing() && request.StartedAt == nil {
		request.StartedAt = &now
	}
	if status.IsTerminal() && request.CompletedAt == nil {
		request.CompletedAt = &now
	}
	if fieldsDetected != nil {
		request.FieldsDetected = *fieldsDetected
	}
	if errorMessage != "" {
		request.ErrorMessage = errorMessage
	}

	data, err := json.Marshal(request)
	if err != nil {
		return NewRequestRepositoryError("update_status", id, err, "failed to marshal request")
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, requestKeyPrefix+id, data, 0)
	if status.IsTerminal() {
		pipe.Del(ctx, requestActiveKeyPrefix+request.UserID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return NewRequestRepositoryError("update_status", id, err, "failed to execute transaction")
	}
	return nil
}

// DeleteRequest removes a request with its progress log and actions.
func (r *RedisFormRequestRepository) DeleteRequest(ctx context.Context, id string) error {
	request, err := r.GetRequest(ctx, id)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, requestKeyPrefix+id)
	pipe.Del(ctx, progressKeyPrefix+id)
	pipe.Del(ctx, progressSeqKeyPrefix+id)
	pipe.Del(ctx, actionsKeyPrefix+id)
	pipe.ZRem(ctx, requestIndexKey, id)
	if request.Status.IsActive() {
		pipe.Del(ctx, requestActiveKeyPrefix+request.UserID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return NewRequestRepositoryError("delete_request", id, err, "failed to execute transaction")
	}
	return nil
}

// DeleteOlderThan removes requests created before cutoff, cascading progress
// and actions, and returns the number deleted.
func (r *RedisFormRequestRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := r.client.ZRangeByScore(ctx, requestIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", cutoff.Unix()),
	}).Result()
	if err != nil {
		return 0, NewRequestRepositoryError("delete_older_than", "", err, "")
	}

	deleted := 0
	for _, id := range ids {
		if err := r.DeleteRequest(ctx, id); err != nil {
			if IsRequestNotFound(err) {
				r.client.ZRem(ctx, requestIndexKey, id)
				continue
			}
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// LogProgress appends one progress event. Event ids come from a per-request
// counter so the log is totally ordered.
func (r *RedisFormRequestRepository) LogProgress(ctx context.Context, requestID, stage, message string, progress *int, payload map[string]interface{}) error {
	seq, err := r.client.Incr(ctx, progressSeqKeyPrefix+requestID).Result()
	if err != nil {
		return NewRequestRepositoryError("log_progress", requestID, err, "failed to allocate event id")
	}

	entry := &models.FormRequestProgress{
		ID:        seq,
		RequestID: requestID,
		Stage:     stage,
		Message:   message,
		Progress:  progress,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return NewRequestRepositoryError("log_progress", requestID, err, "failed to marshal progress event")
	}

	if err := r.client.RPush(ctx, progressKeyPrefix+requestID, data).Err(); err != nil {
		return NewRequestRepositoryError("log_progress", requestID, err, "failed to append progress event")
	}
	return nil
}

// GetProgress returns a request's progress events in append order.
func (r *RedisFormRequestRepository) GetProgress(ctx context.Context, requestID string) ([]*models.FormRequestProgress, error) {
	raw, err := r.client.LRange(ctx, progressKeyPrefix+requestID, 0, -1).Result()
	if err != nil {
		return nil, NewRequestRepositoryError("get_progress", requestID, err, "")
	}

	events := make([]*models.FormRequestProgress, 0, len(raw))
	for _, item := range raw {
		var entry models.FormRequestProgress
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, NewRequestRepositoryError("get_progress", requestID, err, "failed to unmarshal progress event")
		}
		events = append(events, &entry)
	}
	return events, nil
}

// SaveActions stores the full action list for a request.
func (r *RedisFormRequestRepository) SaveActions(ctx context.Context, requestID string, actions []*models.FormAction) error {
	for _, action := range actions {
		if err := action.Validate(); err != nil {
			return NewRequestRepositoryError("save_actions", requestID, err, "")
		}
	}

	data, err := json.Marshal(actions)
	if err != nil {
		return NewRequestRepositoryError("save_actions", requestID, err, "failed to marshal actions")
	}

	if err := r.client.Set(ctx, actionsKeyPrefix+requestID, data, 0).Err(); err != nil {
		return NewRequestRepositoryError("save_actions", requestID, err, "failed to save actions")
	}
	return nil
}

// GetActions returns a request's stored actions in order_index order.
func (r *RedisFormRequestRepository) GetActions(ctx context.Context, requestID string) ([]*models.FormAction, error) {
	data, err := r.client.Get(ctx, actionsKeyPrefix+requestID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, NewRequestRepositoryError("get_actions", requestID, err, "")
	}

	var actions []*models.FormAction
	if err := json.Unmarshal([]byte(data), &actions); err != nil {
		return nil, NewRequestRepositoryError("get_actions", requestID, err, "failed to unmarshal actions")
	}
	return actions, nil
}

// Ping checks if Redis is alive
func (r *RedisFormRequestRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
