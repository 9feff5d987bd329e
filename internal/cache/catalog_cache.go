package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"chatsurvey/internal/model"
)

const activeSurveyKey = "survey:active"

// CatalogCache caches the active survey so the engine does not hit MongoDB
// on every inbound message
type CatalogCache interface {
	GetActive(ctx context.Context) (*model.Survey, error)
	SetActive(ctx context.Context, survey *model.Survey) error
	Invalidate(ctx context.Context) error
}

type catalogCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCatalogCache creates a new catalog cache
func NewCatalogCache(client *redis.Client) CatalogCache {
	return &catalogCache{
		client: client,
		ttl:    30 * time.Second,
	}
}

func (c *catalogCache) GetActive(ctx context.Context) (*model.Survey, error) {
	data, err := c.client.Get(ctx, activeSurveyKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var survey model.Survey
	if err := json.Unmarshal([]byte(data), &survey); err != nil {
		return nil, err
	}
	return &survey, nil
}

func (c *catalogCache) SetActive(ctx context.Context, survey *model.Survey) error {
	data, err := json.Marshal(survey)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, activeSurveyKey, data, c.ttl).Err()
}

func (c *catalogCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, activeSurveyKey).Err()
}
