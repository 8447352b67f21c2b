package repository

import (
	"context"
	"encoding/json"

	"github.com/curvebond/curvegate/internal/model"
)

// RedisEventSink mirrors the journal into a capped Redis list so external
// consumers can tail recent market activity.
type RedisEventSink struct {
	client  *RedisClient
	listKey string
	listMax int
}

func NewRedisEventSink(client *RedisClient, listKey string, listMax int) *RedisEventSink {
	if listKey == "" {
		listKey = "market_events"
	}
	if listMax <= 0 {
		listMax = 10000
	}
	return &RedisEventSink{
		client:  client,
		listKey: listKey,
		listMax: listMax,
	}
}

func (r *RedisEventSink) Publish(ctx context.Context, event *model.Event) error {
	if event == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := r.client.Client.LPush(ctx, r.listKey, payload).Err(); err != nil {
		return err
	}
	return r.client.Client.LTrim(ctx, r.listKey, 0, int64(r.listMax-1)).Err()
}
