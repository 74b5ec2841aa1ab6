package singer

import (
	"strings"
	"testing"
)

func TestAggregateState(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "single document",
			input: `{"bookmarks":{"users":{"v":1}}}`,
			want:  `{"bookmarks":{"users":{"v":1}}}`,
		},
		{
			name:  "jsonl uses final line",
			input: "{\"v\":1}\n{\"v\":2}\n{\"v\":3}",
			want:  `{"v":3}`,
		},
		{
			name:  "trailing partial line falls back",
			input: "{\"v\":1}\n{\"v\":2}\n{\"v\":3",
			want:  `{"v":2}`,
		},
		{
			name:    "empty",
			input:   "",
			wantErr: true,
		},
		{
			name:    "garbage",
			input:   "not\njson\nat all",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AggregateState(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("AggregateState() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("AggregateState() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestStreamBookmark(t *testing.T) {
	value := []byte(`{"bookmarks":{"users":{"updated_at":"2024-06-01"},"orders":{"id":42}}}`)

	bm, ok := StreamBookmark(value, "users")
	if !ok {
		t.Fatal("expected bookmark for users")
	}
	if !strings.Contains(string(bm), "2024-06-01") {
		t.Errorf("bookmark = %s", bm)
	}

	if _, ok := StreamBookmark(value, "invoices"); ok {
		t.Error("unexpected bookmark for unknown stream")
	}
	if _, ok := StreamBookmark([]byte(`{"flat":true}`), "users"); ok {
		t.Error("unexpected bookmark from flat state")
	}
	if _, ok := StreamBookmark(nil, "users"); ok {
		t.Error("unexpected bookmark from nil state")
	}
}

func TestWrapBookmarkRoundTrip(t *testing.T) {
	value, err := WrapBookmark("users", []byte(`{"updated_at":"2024-06-01"}`))
	if err != nil {
		t.Fatalf("WrapBookmark: %v", err)
	}
	bm, ok := StreamBookmark(value, "users")
	if !ok {
		t.Fatal("bookmark not found after wrap")
	}
	if string(bm) != `{"updated_at":"2024-06-01"}` {
		t.Errorf("bookmark = %s", bm)
	}
}
