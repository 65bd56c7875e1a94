package feed

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseItem(t *testing.T) {
	it, err := ParseItem([]byte(`{"imageURL":"https://img/1.jpg","prompt":"a cat","seed":42,"width":1024,"model":"flux","nologo":true}`))
	if err != nil {
		t.Fatalf("ParseItem: %v", err)
	}
	if it.ImageURL != "https://img/1.jpg" || it.Prompt != "a cat" {
		t.Errorf("got %q / %q", it.ImageURL, it.Prompt)
	}
	if it.Seed == nil || *it.Seed != 42 {
		t.Errorf("Seed = %v, want 42", it.Seed)
	}
	if got := it.Param("width"); got != "1024" {
		t.Errorf("width = %q, want 1024", got)
	}
	if got := it.Param("model"); got != "flux" {
		t.Errorf("model = %q, want flux", got)
	}
	if got := it.Param("nologo"); got != "true" {
		t.Errorf("nologo = %q, want true", got)
	}
	if _, ok := it.Params["imageURL"]; ok {
		t.Error("Params must not repeat imageURL")
	}
}

func TestParseItemRejects(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		missing bool
	}{
		{"not json", `not json`, false},
		{"array", `[1,2]`, false},
		{"no imageURL", `{"prompt":"x"}`, true},
		{"empty imageURL", `{"imageURL":"","prompt":"x"}`, true},
		{"non-string imageURL", `{"imageURL":5}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseItem([]byte(tt.data))
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrMissingImageURL); got != tt.missing {
				t.Errorf("errors.Is(ErrMissingImageURL) = %v, want %v (err: %v)", got, tt.missing, err)
			}
		})
	}
}

func TestParseItemSeed(t *testing.T) {
	tests := []struct {
		data string
		want *int64
	}{
		{`{"imageURL":"u","seed":"17"}`, ptr(17)},
		{`{"imageURL":"u","seed":-3}`, ptr(-3)},
		{`{"imageURL":"u","seed":1.5}`, nil},
		{`{"imageURL":"u","seed":"abc"}`, nil},
		{`{"imageURL":"u","seed":null}`, nil},
		{`{"imageURL":"u"}`, nil},
	}
	for _, tt := range tests {
		it, err := ParseItem([]byte(tt.data))
		if err != nil {
			t.Fatalf("ParseItem(%s): %v", tt.data, err)
		}
		switch {
		case tt.want == nil && it.Seed != nil:
			t.Errorf("%s: Seed = %d, want nil", tt.data, *it.Seed)
		case tt.want != nil && (it.Seed == nil || *it.Seed != *tt.want):
			t.Errorf("%s: Seed = %v, want %d", tt.data, it.Seed, *tt.want)
		}
	}
}

func TestParseItemNonStringPrompt(t *testing.T) {
	it, err := ParseItem([]byte(`{"imageURL":"u","prompt":{"text":"x"}}`))
	if err != nil {
		t.Fatalf("ParseItem: %v", err)
	}
	if it.Prompt != "" {
		t.Errorf("Prompt = %q, want empty", it.Prompt)
	}
}

func TestItemMarshalJSON(t *testing.T) {
	it, err := ParseItem([]byte(`{"imageURL":"u","prompt":"p","seed":9,"height":512}`))
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(it)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m["imageURL"] != "u" || m["prompt"] != "p" || m["seed"] != float64(9) || m["height"] != float64(512) {
		t.Errorf("wire shape = %v", m)
	}
}

func ptr(v int64) *int64 { return &v }
