// Package embedder produces dense vector embeddings for document chunks
// via ONNX Runtime. It holds a single lazily-loaded model identified by
// name: the first call (or a call naming a different model) loads that
// model and discards whatever was loaded before. Vectors are
// L2-normalized so dot product equals cosine similarity.
package embedder

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"

	"github.com/daulet/tokenizers"
	ort "github.com/yalue/onnxruntime_go"
)

// maxSeqLen caps token length per input. 256 quarters the attention
// matrix (O(seqLen²)) relative to the usual 512-token ceiling and is
// sufficient for the chunk sizes this daemon produces; very
// unicode-dense chunks may get truncated but embedding quality is
// negligibly affected.
const maxSeqLen = 256

// Embedder owns the currently loaded ONNX session and tokenizer. It is
// only ever called from the Indexer, which holds its own mutex around
// every file it indexes, so it does not need to be reentrant.
type Embedder struct {
	modelsDir  string
	ortLibPath string
	numThreads int

	loadedName string
	session    *ort.DynamicAdvancedSession
	tokenizer  *tokenizers.Tokenizer
}

// New constructs an Embedder that will lazily load models by name from
// subdirectories of modelsDir (modelsDir/<name>/model.onnx +
// tokenizer.json). ortLibPath points at onnxruntime.so; pass "" to use
// the system default. numThreads controls ONNX intra-op parallelism;
// 0 means min(NumCPU, 4).
func New(modelsDir, ortLibPath string, numThreads int) (*Embedder, error) {
	if ortLibPath != "" {
		ort.SetSharedLibraryPath(ortLibPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("init ort: %w", err)
	}
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
		if numThreads > 4 {
			numThreads = 4
		}
	}
	return &Embedder{modelsDir: modelsDir, ortLibPath: ortLibPath, numThreads: numThreads}, nil
}

// Close releases whatever model is currently loaded.
func (e *Embedder) Close() {
	e.unload()
}

func (e *Embedder) unload() {
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	if e.tokenizer != nil {
		e.tokenizer.Close()
		e.tokenizer = nil
	}
	e.loadedName = ""
}

// ensureLoaded loads modelName if it isn't already the active model.
func (e *Embedder) ensureLoaded(modelName string) error {
	if e.loadedName == modelName && e.session != nil {
		return nil
	}
	e.unload()

	dir := filepath.Join(e.modelsDir, modelName)
	modelPath := filepath.Join(dir, "model.onnx")
	tokenPath := filepath.Join(dir, "tokenizer.json")

	if _, err := os.Stat(modelPath); err != nil {
		return fmt.Errorf("model %q not found at %s: %w", modelName, modelPath, err)
	}
	if _, err := os.Stat(tokenPath); err != nil {
		return fmt.Errorf("tokenizer for %q not found at %s: %w", modelName, tokenPath, err)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return fmt.Errorf("session options: %w", err)
	}
	defer opts.Destroy()

	if err := opts.SetIntraOpNumThreads(e.numThreads); err != nil {
		return fmt.Errorf("set intra threads: %w", err)
	}
	// Keep inter-op parallelism at 1: the encoder graph is a single chain
	// of ops, so a second pool only adds thread-spawn overhead.
	if err := opts.SetInterOpNumThreads(1); err != nil {
		return fmt.Errorf("set inter threads: %w", err)
	}

	inputNames := []string{"input_ids", "attention_mask", "token_type_ids"}
	outputNames := []string{"last_hidden_state"}

	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, outputNames, opts)
	if err != nil {
		return fmt.Errorf("create session for %q: %w", modelName, err)
	}

	tk, err := tokenizers.FromFile(tokenPath)
	if err != nil {
		session.Destroy()
		return fmt.Errorf("load tokenizer for %q: %w", modelName, err)
	}

	e.session = session
	e.tokenizer = tk
	e.loadedName = modelName
	return nil
}

// Embed loads modelName (if not already loaded) and encodes texts in
// batches of at most batchSize, returning one vector per input text in
// the same order. Empty input returns an empty (nil) result.
func (e *Embedder) Embed(texts []string, modelName string, batchSize int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if batchSize <= 0 {
		batchSize = 32
	}
	if err := e.ensureLoaded(modelName); err != nil {
		return nil, err
	}

	results := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := e.embedBatch(texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("batch [%d:%d]: %w", i, end, err)
		}
		results = append(results, batch...)
	}
	return results, nil
}

// encoded holds tokenization results for a single text.
type encoded struct {
	ids  []int64
	mask []int64
}

// embedBatch runs a single ONNX inference call for up to batchSize texts.
func (e *Embedder) embedBatch(texts []string) ([][]float32, error) {
	batchSize := len(texts)

	all := make([]encoded, batchSize)
	maxLen := 0
	for i, text := range texts {
		enc := e.tokenizer.EncodeWithOptions(text, true, tokenizers.WithReturnAttentionMask())
		ids := enc.IDs
		if len(ids) > maxSeqLen {
			ids = ids[:maxSeqLen]
		}
		ids64 := make([]int64, len(ids))
		mask64 := make([]int64, len(ids))
		for j, v := range ids {
			ids64[j] = int64(v)
			mask64[j] = 1
		}
		if len(enc.AttentionMask) >= len(ids) {
			for j := range ids64 {
				mask64[j] = int64(enc.AttentionMask[j])
			}
		}
		all[i] = encoded{ids: ids64, mask: mask64}
		if len(ids64) > maxLen {
			maxLen = len(ids64)
		}
	}
	if maxLen == 0 {
		return nil, fmt.Errorf("all texts tokenized to zero length")
	}

	flatIDs := make([]int64, batchSize*maxLen)
	flatMask := make([]int64, batchSize*maxLen)
	flatType := make([]int64, batchSize*maxLen) // all zeros (token_type_ids)
	for i, enc := range all {
		copy(flatIDs[i*maxLen:], enc.ids)
		copy(flatMask[i*maxLen:], enc.mask)
	}
	shape := ort.NewShape(int64(batchSize), int64(maxLen))

	inputIDs, err := ort.NewTensor(shape, flatIDs)
	if err != nil {
		return nil, fmt.Errorf("input_ids tensor: %w", err)
	}
	defer inputIDs.Destroy()

	attnMask, err := ort.NewTensor(shape, flatMask)
	if err != nil {
		return nil, fmt.Errorf("attention_mask tensor: %w", err)
	}
	defer attnMask.Destroy()

	typeIDs, err := ort.NewTensor(shape, flatType)
	if err != nil {
		return nil, fmt.Errorf("token_type_ids tensor: %w", err)
	}
	defer typeIDs.Destroy()

	inputs := []ort.Value{inputIDs, attnMask, typeIDs}
	outputs := []ort.Value{nil}
	if err := e.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("ort run: %w", err)
	}
	defer func() {
		if outputs[0] != nil {
			outputs[0].Destroy()
		}
	}()

	hiddenTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type (want *Tensor[float32])")
	}
	hidden := hiddenTensor.GetData()
	shapeOut := hiddenTensor.GetShape()
	seqLen := int(shapeOut[1])
	dim := int(shapeOut[2])

	embeddings := make([][]float32, batchSize)
	for i := 0; i < batchSize; i++ {
		vec := make([]float32, dim)
		// Use the [CLS] token (position 0) as the pooled sentence embedding.
		base := i * seqLen * dim
		copy(vec, hidden[base:base+dim])
		l2Normalize(vec)
		embeddings[i] = vec
	}
	return embeddings, nil
}

// l2Normalize normalizes v in-place to unit length.
func l2Normalize(v []float32) {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	if norm < 1e-10 {
		return
	}
	inv := float32(1.0 / norm)
	for i := range v {
		v[i] *= inv
	}
}
