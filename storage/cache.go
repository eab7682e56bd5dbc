package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"taskboard-api/domain"
)

// Cache wraps a task store with Redis-backed caching of unfiltered per-user
// task lists. Filtered listings always hit the backing store. Every mutation
// evicts the lists of the users the task involves; Redis failures fall back
// to the backing store without surfacing.
type Cache struct {
	base  domain.TaskStore
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base domain.TaskStore, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) InsertTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	created, err := c.base.InsertTask(ctx, t)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, created.CreatorID, created.AssignedToID)
	return created, nil
}

func (c *Cache) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return c.base.GetTask(ctx, id)
}

func (c *Cache) ListTasks(ctx context.Context, userID string, f domain.TaskFilter) ([]domain.Task, error) {
	cacheable := f.Status == nil && f.Priority == nil
	if cacheable {
		if tasks, ok := c.loadFromCache(ctx, userID); ok {
			return tasks, nil
		}
	}
	tasks, err := c.base.ListTasks(ctx, userID, f)
	if err != nil {
		return nil, err
	}
	if cacheable {
		c.store(ctx, userID, tasks)
	}
	return tasks, nil
}

func (c *Cache) UpdateTask(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error) {
	// A reassignment leaves the previous assignee's cached list stale, so
	// look the old record up before the write.
	var oldAssignee string
	if p.AssignedToID != nil {
		if old, err := c.base.GetTask(ctx, id); err == nil {
			oldAssignee = old.AssignedToID
		}
	}
	updated, err := c.base.UpdateTask(ctx, id, p)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, updated.CreatorID, updated.AssignedToID, oldAssignee)
	return updated, nil
}

func (c *Cache) DeleteTask(ctx context.Context, id string) (domain.Task, error) {
	deleted, err := c.base.DeleteTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, deleted.CreatorID, deleted.AssignedToID)
	return deleted, nil
}

func (c *Cache) ReorderTasks(ctx context.Context, ids []string) ([]domain.Task, error) {
	reordered, err := c.base.ReorderTasks(ctx, ids)
	if err != nil {
		return nil, err
	}
	users := make([]string, 0, len(reordered)*2)
	for _, t := range reordered {
		users = append(users, t.CreatorID, t.AssignedToID)
	}
	c.evict(ctx, users...)
	return reordered, nil
}

func (c *Cache) loadFromCache(ctx context.Context, userID string) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, tasksCacheKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, tasksCacheKey(userID)).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, tasksCacheKey(userID)).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) store(ctx context.Context, userID string, tasks []domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, tasksCacheKey(userID), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, userIDs ...string) {
	if c.redis == nil {
		return
	}
	keys := make([]string, 0, len(userIDs))
	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		keys = append(keys, tasksCacheKey(id))
	}
	if len(keys) == 0 {
		return
	}
	_, _ = c.redis.Del(ctx, keys...).Result()
}

func tasksCacheKey(userID string) string {
	return "tasks:" + userID
}
