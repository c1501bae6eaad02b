package coursequiz

import (
	"context"
	"testing"
)

func TestVectorKey(t *testing.T) {
	a := VectorKey("openai:small", "some text")
	if a != VectorKey("openai:small", "some text") {
		t.Fatalf("VectorKey is not deterministic")
	}
	if a == VectorKey("ollama:nomic", "some text") {
		t.Fatalf("namespaces should produce different keys")
	}
	if a == VectorKey("openai:small", "other text") {
		t.Fatalf("texts should produce different keys")
	}
}

func TestMemoryVectorCache(t *testing.T) {
	cache := NewMemoryVectorCache()
	ctx := context.Background()

	if err := cache.PutVectors(ctx, map[string][]float32{"a": {1, 2}, "b": {3}}); err != nil {
		t.Fatalf("PutVectors: %v", err)
	}
	got, err := cache.GetVectors(ctx, []string{"a", "missing", "b"})
	if err != nil {
		t.Fatalf("GetVectors: %v", err)
	}
	if len(got) != 2 || got["a"][1] != 2 || got["b"][0] != 3 {
		t.Fatalf("GetVectors: got=%v", got)
	}
	if _, ok := got["missing"]; ok {
		t.Fatalf("missing key should be absent")
	}
	if cache.Len() != 2 {
		t.Fatalf("Len: want=2 got=%d", cache.Len())
	}
}
