package domain

import (
	"math"
	"testing"
)

func i64(v int64) *int64 { return &v }

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name string
		rec  *PasteRecord
		now  int64
		want Status
	}{
		{"nil record", nil, 0, StatusMissing},
		{"no constraints", &PasteRecord{CreatedAtMs: 0}, 1 << 40, StatusOK},
		{"before expiry", &PasteRecord{TTLSeconds: i64(10)}, 9999, StatusOK},
		{"at expiry instant", &PasteRecord{TTLSeconds: i64(10)}, 10000, StatusExpired},
		{"after expiry", &PasteRecord{TTLSeconds: i64(10)}, 20000, StatusExpired},
		{"views left", &PasteRecord{MaxViews: i64(2), ViewsUsed: 1}, 0, StatusOK},
		{"views used up", &PasteRecord{MaxViews: i64(2), ViewsUsed: 2}, 0, StatusExhausted},
		{"expiry wins over exhaustion", &PasteRecord{TTLSeconds: i64(1), MaxViews: i64(1), ViewsUsed: 1}, 1000, StatusExpired},
		{"zero max views", &PasteRecord{MaxViews: i64(0)}, 0, StatusExhausted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.rec, tt.now); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConsumedOutcome(t *testing.T) {
	rec := &PasteRecord{Content: "x", TTLSeconds: i64(10), MaxViews: i64(3), ViewsUsed: 1}
	o := Consumed(rec)
	if !o.OK() {
		t.Fatalf("status = %v, want ok", o.Status)
	}
	if o.RemainingViews == nil || *o.RemainingViews != 2 {
		t.Errorf("remaining = %v, want 2", o.RemainingViews)
	}
	iso := o.ExpiresAtISO()
	if iso == nil || *iso != "1970-01-01T00:00:10.000Z" {
		t.Errorf("expires_at = %v, want 1970-01-01T00:00:10.000Z", iso)
	}
}

func TestConsumedOutcomeUnlimited(t *testing.T) {
	o := Consumed(&PasteRecord{Content: "z", ViewsUsed: 42})
	if o.RemainingViews != nil {
		t.Errorf("remaining = %d, want nil", *o.RemainingViews)
	}
	if o.ExpiresAtISO() != nil {
		t.Errorf("expires_at = %s, want nil", *o.ExpiresAtISO())
	}
}

func TestOutcomeErr(t *testing.T) {
	if Missing().Err() != ErrPasteNotFound {
		t.Error("missing should map to ErrPasteNotFound")
	}
	if Expired().Err() != ErrPasteExpired {
		t.Error("expired should map to ErrPasteExpired")
	}
	if Exhausted().Err() != ErrPasteExhausted {
		t.Error("exhausted should map to ErrPasteExhausted")
	}
	if Consumed(&PasteRecord{}).Err() != nil {
		t.Error("ok should map to nil")
	}
}

func TestCreateParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  CreateParams
		wantMsg string
	}{
		{"valid", CreateParams{ID: "a", Content: "hi"}, ""},
		{"valid with limits", CreateParams{ID: "a", Content: "hi", TTLSeconds: i64(1), MaxViews: i64(1)}, ""},
		{"blank content", CreateParams{ID: "a", Content: "  \n"}, "content must be a non-empty string"},
		{"zero ttl", CreateParams{ID: "a", Content: "hi", TTLSeconds: i64(0)}, "ttl_seconds must be an integer >= 1"},
		{"negative views", CreateParams{ID: "a", Content: "hi", MaxViews: i64(-3)}, "max_views must be an integer >= 1"},
		{"missing id", CreateParams{Content: "hi"}, "id is required"},
		{"max ttl", CreateParams{ID: "a", Content: "hi", TTLSeconds: i64(MaxTTLSeconds)}, ""},
		{"ttl too large", CreateParams{ID: "a", Content: "hi", TTLSeconds: i64(MaxTTLSeconds + 1)}, "ttl_seconds must be at most 1000000000000"},
		{"max views at bound", CreateParams{ID: "a", Content: "hi", MaxViews: i64(MaxViewLimit)}, ""},
		{"max views too large", CreateParams{ID: "a", Content: "hi", MaxViews: i64(MaxViewLimit + 1)}, "max_views must be at most 9007199254740991"},
		{"max views int64 max", CreateParams{ID: "a", Content: "hi", MaxViews: i64(math.MaxInt64)}, "max_views must be at most 9007199254740991"},
		{"created at bound", CreateParams{ID: "a", Content: "hi", TTLSeconds: i64(MaxTTLSeconds), NowMs: MaxCreatedAtMs}, ""},
		{"created too late", CreateParams{ID: "a", Content: "hi", NowMs: MaxCreatedAtMs + 1}, "creation time out of range"},
		{"negative created at", CreateParams{ID: "a", Content: "hi", NowMs: -1}, "creation time out of range"},
		{"invalid utf8", CreateParams{ID: "a", Content: "ok\xffok"}, "content must be valid UTF-8"},
		{"control characters kept", CreateParams{ID: "a", Content: "\x1b[31mred\x1b[0m\f"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantMsg == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error %q", tt.wantMsg)
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("error = %q, want %q", err.Error(), tt.wantMsg)
			}
			if !IsValidation(err) {
				t.Errorf("expected a validation error, got %T", err)
			}
		})
	}
}
