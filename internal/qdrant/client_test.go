package qdrant

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantHost string
		wantPort int
		wantTLS  bool
		wantErr  bool
	}{
		{"empty defaults to localhost", "", "localhost", 6334, false, false},
		{"bare host", "qdrant.internal", "qdrant.internal", 6334, false, false},
		{"host and port", "localhost:6334", "localhost", 6334, false, false},
		{"custom port", "10.0.0.5:7000", "10.0.0.5", 7000, false, false},
		{"https enables tls", "https://qdrant.example.com:6334", "qdrant.example.com", 6334, true, false},
		{"http stays plaintext", "http://qdrant.example.com", "qdrant.example.com", 6334, false, false},
		{"bad port", "host:notaport", "", 0, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port, useTLS, err := parseURL(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseURL(%q) error = %v", tt.input, err)
			}
			if host != tt.wantHost || port != tt.wantPort || useTLS != tt.wantTLS {
				t.Errorf("parseURL(%q) = (%s, %d, %v), want (%s, %d, %v)",
					tt.input, host, port, useTLS, tt.wantHost, tt.wantPort, tt.wantTLS)
			}
		})
	}
}

func TestBuildSearchFilter(t *testing.T) {
	if got := buildSearchFilter(nil); got != nil {
		t.Error("nil filter should produce nil")
	}
	if got := buildSearchFilter(&SearchFilter{}); got != nil {
		t.Error("empty filter should produce nil")
	}

	f := buildSearchFilter(&SearchFilter{DocID: "doc-1", Source: "handbook"})
	if f == nil || len(f.Must) != 2 {
		t.Fatalf("expected 2 conditions, got %+v", f)
	}
}

func TestBuildDeleteFilter(t *testing.T) {
	if got := buildDeleteFilter(DeleteFilter{}); got != nil {
		t.Error("empty filter should produce nil")
	}

	f := buildDeleteFilter(DeleteFilter{DocID: "doc-1", CreatedBefore: 1700000000})
	if f == nil || len(f.Must) != 2 {
		t.Fatalf("expected 2 conditions, got %+v", f)
	}
}

func TestExtractPayload(t *testing.T) {
	payload := map[string]*qdrant.Value{
		"text":       {Kind: &qdrant.Value_StringValue{StringValue: "hello"}},
		"chunk":      {Kind: &qdrant.Value_IntegerValue{IntegerValue: 3}},
		"score":      {Kind: &qdrant.Value_DoubleValue{DoubleValue: 0.5}},
		"deprecated": {Kind: &qdrant.Value_BoolValue{BoolValue: true}},
	}

	got := extractPayload(payload)

	if PayloadString(got, "text") != "hello" {
		t.Errorf("text = %v, want hello", got["text"])
	}
	if PayloadInt(got, "chunk") != 3 {
		t.Errorf("chunk = %v, want 3", got["chunk"])
	}
	if PayloadString(got, "missing") != "" {
		t.Error("missing string key should return empty string")
	}
	if PayloadInt(got, "missing") != 0 {
		t.Error("missing int key should return 0")
	}
}
