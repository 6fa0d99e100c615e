package usage

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformedPayload means the inbound body could not be parsed.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrMissingFields means a required identifying field was absent or empty.
	ErrMissingFields = errors.New("missing required fields")
	// ErrStoreUnavailable wraps any transport failure against the cache.
	ErrStoreUnavailable = errors.New("usage store unavailable")
)

// Event is a single token-usage report emitted by the gateway for one
// model request.
type Event struct {
	SubscriptionID   string
	DeploymentID     string
	Model            string
	ObjectType       string
	PromptTokens     uint64
	CompletionTokens uint64
	TotalTokens      uint64
	ImageTokens      uint64
}

// Key returns the composite accumulator key for this event. Keys are
// case-sensitive and unique per (subscription, deployment) pair.
func (e *Event) Key() string {
	return e.SubscriptionID + "-" + e.DeploymentID
}

// Record is the running per-key accumulator persisted in the cache.
// It carries raw counters only; cost is always derived at read time.
type Record struct {
	SubscriptionID   string `json:"subscriptionId"`
	DeploymentID     string `json:"deploymentId"`
	Model            string `json:"model"`
	ObjectType       string `json:"object"`
	PromptTokens     uint64 `json:"promptTokens"`
	CompletionTokens uint64 `json:"completionTokens"`
	TotalTokens      uint64 `json:"totalTokens"`
	ImageTokens      uint64 `json:"imageTokens"`
}

func (r *Record) Key() string {
	return r.SubscriptionID + "-" + r.DeploymentID
}

// MarshalBinary implements encoding.BinaryMarshaler for Redis.
func (r *Record) MarshalBinary() ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler for Redis.
func (r *Record) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, r)
}

// gatewayPayload is the wire shape the gateway posts after each model
// call: identifiers plus the upstream response body's usage block.
type gatewayPayload struct {
	SubscriptionID string `json:"subscriptionId"`
	DeploymentID   string `json:"deploymentId"`
	ResponseBody   struct {
		Model  string `json:"model"`
		Object string `json:"object"`
		Usage  struct {
			PromptTokens     uint64 `json:"prompt_tokens"`
			CompletionTokens uint64 `json:"completion_tokens"`
			TotalTokens      uint64 `json:"total_tokens"`
			ImageTokens      uint64 `json:"image_tokens"`
		} `json:"usage"`
	} `json:"responseBody"`
}

// ParseEvent validates a raw gateway payload and extracts the usage
// event. Token counters default to zero when absent; the identifying
// fields must all be present and non-empty.
func ParseEvent(raw []byte) (*Event, error) {
	var p gatewayPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if p.SubscriptionID == "" || p.DeploymentID == "" || p.ResponseBody.Model == "" || p.ResponseBody.Object == "" {
		return nil, ErrMissingFields
	}

	return &Event{
		SubscriptionID:   p.SubscriptionID,
		DeploymentID:     p.DeploymentID,
		Model:            p.ResponseBody.Model,
		ObjectType:       p.ResponseBody.Object,
		PromptTokens:     p.ResponseBody.Usage.PromptTokens,
		CompletionTokens: p.ResponseBody.Usage.CompletionTokens,
		TotalTokens:      p.ResponseBody.Usage.TotalTokens,
		ImageTokens:      p.ResponseBody.Usage.ImageTokens,
	}, nil
}
