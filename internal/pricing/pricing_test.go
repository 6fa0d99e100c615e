package pricing

import "testing"

func TestCost_KnownDeployments(t *testing.T) {
	tests := []struct {
		name             string
		deploymentID     string
		promptTokens     uint64
		completionTokens uint64
		imageTokens      uint64
		want             float64
	}{
		{"gpt-4o", "gpt-4o", 1000, 500, 0, 0.06},
		{"gpt-4", "gpt-4", 2000, 1000, 0, 0.09},
		{"gpt-35-turbo", "gpt-35-turbo", 100000, 50000, 0, 0.25},
		{"gpt-35-turbo-instruct", "gpt-35-turbo-instruct", 10000, 10000, 0, 0.04},
		{"text-embedding-3-large", "text-embedding-3-large", 50000, 0, 0, 0.05},
		{"dall-e-3 prices image tokens only", "dall-e-3", 1000, 1000, 10000, 0.09},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cost(tt.deploymentID, tt.promptTokens, tt.completionTokens, tt.imageTokens)
			if got != tt.want {
				t.Errorf("Cost(%s) = %v, want %v", tt.deploymentID, got, tt.want)
			}
		})
	}
}

func TestCost_UnknownDeploymentIsZero(t *testing.T) {
	if got := Cost("mystery-model", 100000, 100000, 100000); got != 0 {
		t.Errorf("Expected 0 for unknown deployment, got %v", got)
	}
}

func TestCost_RoundsToTwoDecimals(t *testing.T) {
	// 224 prompt tokens on gpt-4 is 0.00448 raw, rounds down to 0.00.
	if got := Cost("gpt-4", 224, 0, 0); got != 0 {
		t.Errorf("Expected 0.00, got %v", got)
	}
	// 300 prompt tokens on gpt-4o is 0.009 raw, rounds up to 0.01.
	if got := Cost("gpt-4o", 300, 0, 0); got != 0.01 {
		t.Errorf("Expected 0.01, got %v", got)
	}
}

func TestCost_WorkedExample(t *testing.T) {
	// Two merged chat completions on gpt-4o: 2000 prompt + 1000 completion.
	got := Cost("gpt-4o", 2000, 1000, 0)
	if got != 0.12 {
		t.Errorf("Expected 0.12, got %v", got)
	}
}

func TestRateFor(t *testing.T) {
	r := RateFor("gpt-4o")
	if r.PromptPer1K != 0.03 || r.CompletionPer1K != 0.06 {
		t.Errorf("Unexpected gpt-4o rate: %+v", r)
	}
	if zero := RateFor("nope"); zero != (Rate{}) {
		t.Errorf("Expected zero rate for unknown deployment, got %+v", zero)
	}
}

func TestFormatUSD(t *testing.T) {
	if got := FormatUSD(0); got != "0.00" {
		t.Errorf("Expected 0.00, got %s", got)
	}
	if got := FormatUSD(0.12); got != "0.12" {
		t.Errorf("Expected 0.12, got %s", got)
	}
	if got := FormatUSD(2.5); got != "2.50" {
		t.Errorf("Expected 2.50, got %s", got)
	}
}
