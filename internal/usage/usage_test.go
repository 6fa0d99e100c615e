package usage

import (
	"errors"
	"testing"
)

func TestParseEvent_Valid(t *testing.T) {
	raw := []byte(`{
		"subscriptionId": "S1",
		"deploymentId": "gpt-4o",
		"responseBody": {
			"model": "gpt-4o",
			"object": "chat.completion",
			"usage": {"prompt_tokens": 1000, "completion_tokens": 500, "total_tokens": 1500}
		}
	}`)

	event, err := ParseEvent(raw)
	if err != nil {
		t.Fatalf("ParseEvent failed: %v", err)
	}

	if event.SubscriptionID != "S1" || event.DeploymentID != "gpt-4o" {
		t.Errorf("Unexpected identifiers: %+v", event)
	}
	if event.Model != "gpt-4o" || event.ObjectType != "chat.completion" {
		t.Errorf("Unexpected metadata: %+v", event)
	}
	if event.PromptTokens != 1000 || event.CompletionTokens != 500 || event.TotalTokens != 1500 {
		t.Errorf("Unexpected counters: %+v", event)
	}
	if event.ImageTokens != 0 {
		t.Errorf("Expected imageTokens to default to 0, got %d", event.ImageTokens)
	}
}

func TestParseEvent_MissingUsageDefaultsToZero(t *testing.T) {
	raw := []byte(`{
		"subscriptionId": "S1",
		"deploymentId": "dall-e-3",
		"responseBody": {"model": "dall-e-3", "object": "image.generation"}
	}`)

	event, err := ParseEvent(raw)
	if err != nil {
		t.Fatalf("ParseEvent failed: %v", err)
	}
	if event.PromptTokens != 0 || event.CompletionTokens != 0 || event.TotalTokens != 0 || event.ImageTokens != 0 {
		t.Errorf("Expected zero counters, got %+v", event)
	}
}

func TestParseEvent_Malformed(t *testing.T) {
	_, err := ParseEvent([]byte(`{not json`))
	if !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("Expected ErrMalformedPayload, got %v", err)
	}
}

func TestParseEvent_MissingFields(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no subscriptionId", `{"deploymentId":"gpt-4o","responseBody":{"model":"gpt-4o","object":"chat.completion"}}`},
		{"no deploymentId", `{"subscriptionId":"S1","responseBody":{"model":"gpt-4o","object":"chat.completion"}}`},
		{"no model", `{"subscriptionId":"S1","deploymentId":"gpt-4o","responseBody":{"object":"chat.completion"}}`},
		{"no object", `{"subscriptionId":"S1","deploymentId":"gpt-4o","responseBody":{"model":"gpt-4o"}}`},
		{"empty subscriptionId", `{"subscriptionId":"","deploymentId":"gpt-4o","responseBody":{"model":"gpt-4o","object":"chat.completion"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEvent([]byte(tt.raw))
			if !errors.Is(err, ErrMissingFields) {
				t.Errorf("Expected ErrMissingFields, got %v", err)
			}
		})
	}
}

func TestEventKey_Composite(t *testing.T) {
	e := &Event{SubscriptionID: "S1", DeploymentID: "gpt-4o"}
	if e.Key() != "S1-gpt-4o" {
		t.Errorf("Expected S1-gpt-4o, got %s", e.Key())
	}

	// Case-sensitive: different casing is a different accumulator.
	upper := &Event{SubscriptionID: "s1", DeploymentID: "gpt-4o"}
	if upper.Key() == e.Key() {
		t.Errorf("Expected distinct keys for distinct casing")
	}
}

func TestRecord_BinaryRoundTrip(t *testing.T) {
	r := &Record{
		SubscriptionID:   "S1",
		DeploymentID:     "gpt-4o",
		Model:            "gpt-4o",
		ObjectType:       "chat.completion",
		PromptTokens:     1000,
		CompletionTokens: 500,
		TotalTokens:      1500,
	}

	data, err := r.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}

	var out Record
	if err := out.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}
	if out != *r {
		t.Errorf("Round trip mismatch: got %+v, want %+v", out, *r)
	}
}
