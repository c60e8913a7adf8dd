package fetcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify_Analysis(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantKind    Kind
		wantStep    int
		wantMessage string
	}{
		{
			name:        "api key missing",
			err:         ClassifyHTTPResponse(400, []byte(`{"detail":"API密钥未配置"}`)),
			wantKind:    KindConfiguration,
			wantStep:    0,
			wantMessage: "analysis failed: API密钥未配置",
		},
		{
			name:        "english credential wording",
			err:         ClassifyHTTPResponse(401, []byte(`{"detail":"Invalid API key provided"}`)),
			wantKind:    KindConfiguration,
			wantStep:    0,
			wantMessage: "analysis failed: Invalid API key provided",
		},
		{
			name:        "instrument problem",
			err:         ClassifyHTTPResponse(404, []byte(`{"detail":"股票代码 999999 不存在"}`)),
			wantKind:    KindData,
			wantStep:    1,
			wantMessage: "analysis failed: 股票代码 999999 不存在",
		},
		{
			name:        "other server detail",
			err:         ClassifyHTTPResponse(500, []byte(`{"detail":"model overloaded"}`)),
			wantKind:    KindServer,
			wantStep:    2,
			wantMessage: "analysis failed: model overloaded",
		},
		{
			name:        "logic body",
			err:         ClassifyHTTPResponse(500, []byte(`{"logic":"could not parse model output"}`)),
			wantKind:    KindServer,
			wantStep:    2,
			wantMessage: "analysis failed: could not parse model output",
		},
		{
			name:        "bare status",
			err:         ClassifyHTTPResponse(502, nil),
			wantKind:    KindServer,
			wantStep:    2,
			wantMessage: "analysis failed: 502 - unknown error",
		},
		{
			name:        "no response",
			err:         NewNetworkError(errors.New("connection reset")),
			wantKind:    KindNetworkTimeout,
			wantStep:    2,
			wantMessage: "analysis failed: " + noResponseMessage,
		},
		{
			name:        "client timeout",
			err:         NewTimeoutError(context.DeadlineExceeded),
			wantKind:    KindNetworkTimeout,
			wantStep:    2,
			wantMessage: "analysis failed: " + timeoutMessage,
		},
		{
			name:        "invalid result",
			err:         NewValidationError("invalid analysis result"),
			wantKind:    KindInvalidResult,
			wantStep:    3,
			wantMessage: "analysis failed: invalid analysis result",
		},
		{
			name:        "local failure",
			err:         errors.New("json: unsupported value: NaN"),
			wantKind:    KindLocalConfiguration,
			wantStep:    0,
			wantMessage: "analysis failed: analyze: json: unsupported value: NaN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce := Classify(OpAnalysis, fmt.Errorf("analyze: %w", tt.err))
			if ce.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", ce.Kind, tt.wantKind)
			}
			if ce.Step != tt.wantStep {
				t.Errorf("Step = %d, want %d", ce.Step, tt.wantStep)
			}
			if ce.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", ce.Message, tt.wantMessage)
			}
			if !errors.Is(ce, tt.err) {
				t.Error("classified error does not wrap its cause")
			}
		})
	}
}

func TestClassify_History(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantKind    Kind
		wantStep    int
		wantMessage string
	}{
		{
			name:        "not found",
			err:         ClassifyHTTPResponse(404, []byte(`{"detail":"未找到股票数据"}`)),
			wantKind:    KindData,
			wantStep:    1,
			wantMessage: "history fetch failed: 404 - 未找到股票数据",
		},
		{
			name:        "server message",
			err:         ClassifyHTTPResponse(500, []byte(`{"message":"upstream down"}`)),
			wantKind:    KindServer,
			wantStep:    1,
			wantMessage: "history fetch failed: 500 - upstream down",
		},
		{
			name:        "timeout",
			err:         NewTimeoutError(context.DeadlineExceeded),
			wantKind:    KindNetworkTimeout,
			wantStep:    1,
			wantMessage: "history fetch failed: " + timeoutMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce := Classify(OpHistory, tt.err)
			if ce.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", ce.Kind, tt.wantKind)
			}
			if ce.Step != tt.wantStep {
				t.Errorf("Step = %d, want %d", ce.Step, tt.wantStep)
			}
			if ce.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", ce.Message, tt.wantMessage)
			}
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	err := ClassifyHTTPResponse(400, []byte(`{"detail":"配置错误"}`))
	a := Classify(OpAnalysis, err)
	b := Classify(OpAnalysis, err)
	if *a != *b {
		t.Errorf("Classify not deterministic: %+v vs %+v", a, b)
	}
}

func TestClassify_AlreadyClassified(t *testing.T) {
	pre := NewPreflightError(OpAnalysis, KindStaleCache, "cached history is stale", nil)
	got := Classify(OpAnalysis, fmt.Errorf("wrapped: %w", pre))
	if got != pre {
		t.Errorf("Classify() = %+v, want the original error", got)
	}
	if pre.Step != NoStep {
		t.Errorf("Step = %d, want NoStep", pre.Step)
	}
	if KindOf(got) != KindStaleCache {
		t.Errorf("KindOf() = %q", KindOf(got))
	}
}

func TestClassify_Nil(t *testing.T) {
	if ce := Classify(OpHistory, nil); ce != nil {
		t.Errorf("Classify(nil) = %+v, want nil", ce)
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("KindOf(plain) should be empty")
	}
}
