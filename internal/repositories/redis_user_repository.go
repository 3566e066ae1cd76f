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
	userKeyPrefix       = "user:"
	tokenKeyPrefix      = "api_token:"
	userTokensKeyPrefix = "user:tokens:"
)

// RedisUserRepository implements UserRepository using Redis
type RedisUserRepository struct {
	client *redis.Client
}

// NewRedisUserRepository creates a new Redis-based user repository
func NewRedisUserRepository(client *redis.Client) UserRepository {
	return &RedisUserRepository{client: client}
}

// GetOrCreateUser returns the user, creating an empty row on first sight.
func (r *RedisUserRepository) GetOrCreateUser(ctx context.Context, id string) (*models.User, error) {
	user, err := r.GetUser(ctx, id)
	if err == nil {
		return user, nil
	}

	now := time.Now().UTC()
	user = &models.User{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.saveUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser retrieves a user by ID
func (r *RedisUserRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	data, err := r.client.Get(ctx, userKeyPrefix+id).Result()
	if err == redis.Nil {
		return nil, NewUserRepositoryError("get_user", id, nil, "user not found: "+id)
	}
	if err != nil {
		return nil, NewUserRepositoryError("get_user", id, err, "")
	}

	var user models.User
	if err := json.Unmarshal([]byte(data), &user); err != nil {
		return nil, NewUserRepositoryError("get_user", id, err, "failed to unmarshal user")
	}
	return &user, nil
}

// UpdateInstructions replaces the user's personal instructions.
func (r *RedisUserRepository) UpdateInstructions(ctx context.Context, id, instructions string) error {
	user, err := r.GetOrCreateUser(ctx, id)
	if err != nil {
		return err
	}
	user.PersonalInstructions = instructions
	user.UpdatedAt = time.Now().UTC()
	return r.saveUser(ctx, user)
}

func (r *RedisUserRepository) saveUser(ctx context.Context, user *models.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return NewUserRepositoryError("save_user", user.ID, err, "failed to marshal user")
	}
	if err := r.client.Set(ctx, userKeyPrefix+user.ID, data, 0).Err(); err != nil {
		return NewUserRepositoryError("save_user", user.ID, err, "failed to save user")
	}
	return nil
}

// CreateToken stores an API token for a user
func (r *RedisUserRepository) CreateToken(ctx context.Context, token *models.APIToken) error {
	if token.Token == "" || token.UserID == "" {
		return NewUserRepositoryError("create_token", token.UserID, nil, "token and user ID are required")
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(token)
	if err != nil {
		return NewUserRepositoryError("create_token", token.UserID, err, "failed to marshal token")
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, tokenKeyPrefix+token.Token, data, 0)
	pipe.SAdd(ctx, userTokensKeyPrefix+token.UserID, token.Token)

	if _, err := pipe.Exec(ctx); err != nil {
		return NewUserRepositoryError("create_token", token.UserID, err, "failed to execute transaction")
	}
	return nil
}

// ResolveToken maps a bearer token to its owning user id
func (r *RedisUserRepository) ResolveToken(ctx context.Context, token string) (string, error) {
	data, err := r.client.Get(ctx, tokenKeyPrefix+token).Result()
	if err == redis.Nil {
		return "", TokenNotFoundError()
	}
	if err != nil {
		return "", NewUserRepositoryError("resolve_token", "", err, "")
	}

	var apiToken models.APIToken
	if err := json.Unmarshal([]byte(data), &apiToken); err != nil {
		return "", NewUserRepositoryError("resolve_token", "", err, "failed to unmarshal token")
	}
	return apiToken.UserID, nil
}

// ListTokensByUser returns a user's tokens, oldest first.
func (r *RedisUserRepository) ListTokensByUser(ctx context.Context, userID string) ([]*models.APIToken, error) {
	values, err := r.client.SMembers(ctx, userTokensKeyPrefix+userID).Result()
	if err != nil {
		return nil, NewUserRepositoryError("list_tokens", userID, err, "")
	}

	tokens := make([]*models.APIToken, 0, len(values))
	for _, value := range values {
		data, err := r.client.Get(ctx, tokenKeyPrefix+value).Result()
		if err == redis.Nil {
			r.client.SRem(ctx, userTokensKeyPrefix+userID, value)
			continue
		}
		if err != nil {
			return nil, NewUserRepositoryError("list_tokens", userID, err, "")
		}
		var token models.APIToken
		if err := json.Unmarshal([]byte(data), &token); err != nil {
			return nil, NewUserRepositoryError("list_tokens", userID, err, "failed to unmarshal token")
		}
		tokens = append(tokens, &token)
	}

	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].CreatedAt.Before(tokens[j].CreatedAt)
	})
	return tokens, nil
}

// DeleteToken removes a token owned by the user
func (r *RedisUserRepository) DeleteToken(ctx context.Context, userID, token string) error {
	owner, err := r.ResolveToken(ctx, token)
	if err != nil {
		return err
	}
	if owner != userID {
		return TokenNotFoundError()
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, tokenKeyPrefix+token)
	pipe.SRem(ctx, userTokensKeyPrefix+userID, token)

	if _, err := pipe.Exec(ctx); err != nil {
		return NewUserRepositoryError("delete_token", userID, err, "failed to execute transaction")
	}
	return nil
}

// Ping checks if Redis is alive
func (r *RedisUserRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
