package embedder

import (
	"testing"
)

// TestL2Normalize checks that l2Normalize produces a unit vector.
func TestL2Normalize(t *testing.T) {
	v := []float32{3, 4, 0} // norm = 5
	l2Normalize(v)
	want := []float32{0.6, 0.8, 0}
	for i, got := range v {
		if diff := got - want[i]; diff < -1e-5 || diff > 1e-5 {
			t.Errorf("v[%d] = %f, want %f", i, got, want[i])
		}
	}
}

// TestEmbedMissingModelErrors ensures Embed surfaces a useful error when the
// named model isn't present under modelsDir, instead of loading silently.
func TestEmbedMissingModelErrors(t *testing.T) {
	e, err := New("/tmp/nonexistent-models-root-searchd-test", "", 0)
	if err != nil {
		t.Skipf("skipping: ORT environment unavailable: %v", err)
	}
	defer e.Close()

	if _, err := e.Embed([]string{"hello"}, "all-MiniLM-L6-v2", 0); err == nil {
		t.Fatal("expected error for missing model, got nil")
	}
}

// TestEmbedEmptyInput verifies the empty-input short circuit required by
// the embed operation: no model load is attempted and the result is nil.
func TestEmbedEmptyInput(t *testing.T) {
	e, err := New("/tmp/nonexistent-models-root-searchd-test", "", 0)
	if err != nil {
		t.Skipf("skipping: ORT environment unavailable: %v", err)
	}
	defer e.Close()

	vecs, err := e.Embed(nil, "all-MiniLM-L6-v2", 0)
	if err != nil {
		t.Fatalf("expected no error for empty input, got %v", err)
	}
	if vecs != nil {
		t.Errorf("expected nil result for empty input, got %v", vecs)
	}
}

// TestEmbedSemanticSimilarity verifies that embeddings for a locally
// available model produce mathematically meaningful similarities using
// CLS pooling. It requires a real model directory and is skipped otherwise.
func TestEmbedSemanticSimilarity(t *testing.T) {
	e, err := New("../../models", "../../lib/onnxruntime.so", 0)
	if err != nil {
		t.Skipf("skipping: ORT environment unavailable: %v", err)
	}
	defer e.Close()

	const model = "all-MiniLM-L6-v2"

	vecs, err := e.Embed([]string{
		"a cute baby feline playing with yarn",
		"a tiny kitten swatting at a string",
	}, model, 0)
	if err != nil {
		t.Skipf("skipping: model not found: %v", err)
	}

	simKitten := dotProduct(vecs[0], vecs[1])
	if simKitten < 0.70 {
		t.Errorf("expected high similarity for synonyms, got %f", simKitten)
	}

	vecsUnrelated, err := e.Embed([]string{
		"a cute baby feline playing with yarn",
		"instructions for adjusting the carburetor on a 1998 honda civic",
	}, model, 0)
	if err != nil {
		t.Fatalf("embed unrelated: %v", err)
	}

	simCar := dotProduct(vecsUnrelated[0], vecsUnrelated[1])
	if simCar > 0.5 {
		t.Errorf("expected low similarity for unrelated text, got %f", simCar)
	}
}

// TestEmbedReloadsOnModelChange verifies that calling Embed with a
// different model name discards the previously loaded session.
func TestEmbedReloadsOnModelChange(t *testing.T) {
	e, err := New("../../models", "../../lib/onnxruntime.so", 0)
	if err != nil {
		t.Skipf("skipping: ORT environment unavailable: %v", err)
	}
	defer e.Close()

	if _, err := e.Embed([]string{"hello"}, "all-MiniLM-L6-v2", 0); err != nil {
		t.Skipf("skipping: model not found: %v", err)
	}
	if e.loadedName != "all-MiniLM-L6-v2" {
		t.Fatalf("loadedName = %q, want all-MiniLM-L6-v2", e.loadedName)
	}

	if _, err := e.Embed([]string{"hello"}, "bge-small-en-v1.5", 0); err != nil {
		t.Skipf("skipping: second model not found: %v", err)
	}
	if e.loadedName != "bge-small-en-v1.5" {
		t.Errorf("loadedName = %q, want bge-small-en-v1.5 after switch", e.loadedName)
	}
}

func dotProduct(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
