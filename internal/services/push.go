package services

import "context"

// MaxMulticastTokens is the gateway's fan-out limit per send.
const MaxMulticastTokens = 500

// PushMessage is a notification with a string-only data payload.
type PushMessage struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// TokenResult is the delivery outcome for one device token. Invalid marks
// tokens the gateway reported as unregistered or malformed.
type TokenResult struct {
	Token   string
	Success bool
	Invalid bool
	Err     error
}

type SendResult struct {
	SuccessCount int
	FailureCount int
	Responses    []TokenResult
}

// PushGateway delivers one message to up to MaxMulticastTokens devices.
type PushGateway interface {
	SendMulticast(ctx context.Context, tokens []string, msg PushMessage) (*SendResult, error)
}
