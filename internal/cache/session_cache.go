package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"chatsurvey/internal/model"
)

// SessionCache handles Redis storage for live conversation sessions
type SessionCache interface {
	Get(ctx context.Context, phone, surveyID string) (*model.Session, error)
	Set(ctx context.Context, session *model.Session) error
	Delete(ctx context.Context, phone, surveyID string) error
}

type sessionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionCache creates a new session cache. The TTL is a safety net for
// abandoned conversations; active sessions refresh it on every write.
func NewSessionCache(client *redis.Client) SessionCache {
	return &sessionCache{
		client: client,
		ttl:    24 * time.Hour,
	}
}

func (c *sessionCache) sessionKey(phone, surveyID string) string {
	return fmt.Sprintf("session:%s:%s", surveyID, phone)
}

func (c *sessionCache) Get(ctx context.Context, phone, surveyID string) (*model.Session, error) {
	data, err := c.client.Get(ctx, c.sessionKey(phone, surveyID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var session model.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("corrupt session for %s: %w", phone, err)
	}
	return &session, nil
}

func (c *sessionCache) Set(ctx context.Context, session *model.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.sessionKey(session.Phone, session.SurveyID), data, c.ttl).Err()
}

func (c *sessionCache) Delete(ctx context.Context, phone, surveyID string) error {
	return c.client.Del(ctx, c.sessionKey(phone, surveyID)).Err()
}
