package services

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"
)

// FCMClient is the subset of *messaging.Client used for delivery.
type FCMClient interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type FCMGateway struct {
	client FCMClient
}

func NewFCMGateway(client FCMClient) *FCMGateway {
	return &FCMGateway{client: client}
}

func (g *FCMGateway) SendMulticast(ctx context.Context, tokens []string, msg PushMessage) (*SendResult, error) {
	if len(tokens) > MaxMulticastTokens {
		return nil, fmt.Errorf("multicast of %d tokens exceeds limit of %d", len(tokens), MaxMulticastTokens)
	}

	resp, err := g.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("fcm multicast: %w", err)
	}

	out := &SendResult{
		SuccessCount: resp.SuccessCount,
		FailureCount: resp.FailureCount,
		Responses:    make([]TokenResult, len(resp.Responses)),
	}
	for i, r := range resp.Responses {
		tr := TokenResult{Token: tokens[i], Success: r.Success, Err: r.Error}
		if !r.Success && r.Error != nil {
			tr.Invalid = messaging.IsUnregistered(r.Error) || messaging.IsInvalidArgument(r.Error)
		}
		out.Responses[i] = tr
	}
	return out, nil
}
