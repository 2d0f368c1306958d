package services

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// PushChannelPrefix namespaces the per-device channels of the Redis gateway.
const PushChannelPrefix = "push:device:"

// Publisher is satisfied by *redis.Client.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPushGateway publishes each notification on a per-device channel.
// Local clients subscribe to their own token's channel; it stands in for
// FCM when no Firebase project is configured.
type RedisPushGateway struct {
	client Publisher
}

func NewRedisPushGateway(client Publisher) *RedisPushGateway {
	return &RedisPushGateway{client: client}
}

func (g *RedisPushGateway) SendMulticast(ctx context.Context, tokens []string, msg PushMessage) (*SendResult, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}

	out := &SendResult{Responses: make([]TokenResult, 0, len(tokens))}
	for _, token := range tokens {
		tr := TokenResult{Token: token}
		if err := g.client.Publish(ctx, PushChannelPrefix+token, payload).Err(); err != nil {
			tr.Err = err
			out.FailureCount++
		} else {
			tr.Success = true
			out.SuccessCount++
		}
		out.Responses = append(out.Responses, tr)
	}
	return out, nil
}
