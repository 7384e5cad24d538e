package models

import (
	"testing"

	"github.com/quillhq/quill/internal/provider"
)

func validRequest() CorrectionRequest {
	return CorrectionRequest{
		SystemPrompt:   "Fix grammar and spelling. Return only the corrected text.",
		SelectedText:   "teh quick brown fox",
		Provider:       provider.Claude,
		TimeoutSeconds: 30,
	}
}

func TestCorrectionRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CorrectionRequest)
		wantErr bool
	}{
		{name: "valid", mutate: func(r *CorrectionRequest) {}},
		{name: "empty text", mutate: func(r *CorrectionRequest) { r.SelectedText = "" }, wantErr: true},
		{name: "empty prompt", mutate: func(r *CorrectionRequest) { r.SystemPrompt = "" }, wantErr: true},
		{name: "unknown provider", mutate: func(r *CorrectionRequest) { r.Provider = "gpt-9" }, wantErr: true},
		{name: "zero timeout", mutate: func(r *CorrectionRequest) { r.TimeoutSeconds = 0 }, wantErr: true},
		{name: "negative timeout", mutate: func(r *CorrectionRequest) { r.TimeoutSeconds = -5 }, wantErr: true},
		{name: "empty model ok", mutate: func(r *CorrectionRequest) { r.Model = "" }},
		{name: "streaming ok", mutate: func(r *CorrectionRequest) { r.Streaming = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			err := req.Validate()
			if tt.wantErr && err == nil {
				t.Error("Validate succeeded, want error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate: %v", err)
			}
		})
	}
}
