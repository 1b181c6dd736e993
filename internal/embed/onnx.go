//go:build onnx

package embed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/daulet/tokenizers"
	ort "github.com/yalue/onnxruntime_go"

	"glowrs/internal/hub"
	"glowrs/internal/repo"
)

var (
	ortOnce sync.Once
	ortErr  error
)

func initONNX(lib string) error {
	ortOnce.Do(func() {
		if lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			ortErr = ErrDependencyUnavailable("onnxruntime: " + err.Error())
		}
	})
	return ortErr
}

func onnxBackend(o LoaderOptions) (Loader, error) {
	if o.Hub == nil {
		return nil, errors.New("onnx backend needs a hub client")
	}
	return func(ref repo.Ref, device Device) (Encoder, error) {
		if err := initONNX(o.OnnxLibrary); err != nil {
			return nil, err
		}
		return loadONNX(context.Background(), o, ref, device)
	}, nil
}

type onnxEncoder struct {
	session   *ort.DynamicAdvancedSession
	tokenizer *tokenizers.Tokenizer
	inputs    []string
	dim       int
	maxTokens int
	pooling   PoolingStrategy
}

type modelConfig struct {
	HiddenSize int `json:"hidden_size"`
	MaxPos     int `json:"max_position_embeddings"`
}

func loadONNX(ctx context.Context, o LoaderOptions, ref repo.Ref, device Device) (*onnxEncoder, error) {
	files, err := o.Hub.FetchAll(ctx, ref, []string{"config.json", "tokenizer.json"})
	if err != nil {
		return nil, err
	}
	modelPath, err := o.Hub.Fetch(ctx, ref, "onnx/model.onnx")
	if errors.Is(err, hub.ErrNotFound) {
		modelPath, err = o.Hub.Fetch(ctx, ref, "model.onnx")
	}
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(files["config.json"])
	if err != nil {
		return nil, err
	}
	var cfg modelConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config.json: %w", err)
	}
	if cfg.HiddenSize <= 0 {
		return nil, fmt.Errorf("config.json: missing hidden_size")
	}

	tk, err := tokenizers.FromFile(files["tokenizer.json"])
	if err != nil {
		return nil, fmt.Errorf("tokenizer load: %w", err)
	}

	ins, outs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		tk.Close()
		return nil, fmt.Errorf("inspect model: %w", err)
	}
	var inputs []string
	for _, in := range ins {
		switch in.Name {
		case "input_ids", "attention_mask", "token_type_ids":
			inputs = append(inputs, in.Name)
		}
	}
	output := ""
	for _, out := range outs {
		if out.Name == "last_hidden_state" {
			output = out.Name
		}
	}
	if output == "" && len(outs) > 0 {
		output = outs[0].Name
	}

	opts, err := sessionOptions(o, device)
	if err != nil {
		tk.Close()
		return nil, err
	}
	defer opts.Destroy()
	session, err := ort.NewDynamicAdvancedSession(modelPath, inputs, []string{output}, opts)
	if err != nil {
		tk.Close()
		return nil, fmt.Errorf("create session: %w", err)
	}

	maxTokens := o.MaxTokens
	if maxTokens <= 0 || (cfg.MaxPos > 0 && maxTokens > cfg.MaxPos) {
		maxTokens = cfg.MaxPos
	}
	return &onnxEncoder{
		session:   session,
		tokenizer: tk,
		inputs:    inputs,
		dim:       cfg.HiddenSize,
		maxTokens: maxTokens,
		pooling:   o.Pooling,
	}, nil
}

func sessionOptions(o LoaderOptions, device Device) (*ort.SessionOptions, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	if o.Threads > 0 {
		if err := opts.SetIntraOpNumThreads(o.Threads); err != nil {
			opts.Destroy()
			return nil, err
		}
	}
	switch device.Kind {
	case CUDA:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			opts.Destroy()
			return nil, ErrDependencyUnavailable("cuda provider: " + err.Error())
		}
		defer cuda.Destroy()
		if err := cuda.Update(map[string]string{"device_id": strconv.Itoa(device.Ordinal)}); err != nil {
			opts.Destroy()
			return nil, err
		}
		if err := opts.AppendExecutionProviderCUDA(cuda); err != nil {
			opts.Destroy()
			return nil, ErrDependencyUnavailable("cuda provider: " + err.Error())
		}
	case Metal:
		if err := opts.AppendExecutionProviderCoreML(0); err != nil {
			opts.Destroy()
			return nil, ErrDependencyUnavailable("coreml provider: " + err.Error())
		}
	}
	return opts, nil
}

func (e *onnxEncoder) Dimensions() int { return e.dim }

func (e *onnxEncoder) Encode(texts []string) ([][]float32, int, error) {
	out := make([][]float32, len(texts))
	total := 0
	for i, text := range texts {
		v, n, err := e.encodeOne(text)
		if err != nil {
			return nil, 0, fmt.Errorf("input %d: %w", i, err)
		}
		out[i] = v
		total += n
	}
	return out, total, nil
}

func (e *onnxEncoder) encodeOne(text string) ([]float32, int, error) {
	enc := e.tokenizer.EncodeWithOptions(text, true,
		tokenizers.WithReturnAttentionMask(),
		tokenizers.WithReturnTypeIDs(),
	)
	n := len(enc.IDs)
	if e.maxTokens > 0 && n > e.maxTokens {
		n = e.maxTokens
	}
	if n == 0 {
		return nil, 0, ErrInvalidInput("text produced no tokens")
	}
	cols := map[string][]int64{
		"input_ids":      make([]int64, n),
		"attention_mask": make([]int64, n),
		"token_type_ids": make([]int64, n),
	}
	for i := 0; i < n; i++ {
		cols["input_ids"][i] = int64(enc.IDs[i])
		cols["attention_mask"][i] = 1
		if i < len(enc.TypeIDs) {
			cols["token_type_ids"][i] = int64(enc.TypeIDs[i])
		}
	}

	shape := ort.NewShape(1, int64(n))
	inputs := make([]ort.Value, 0, len(e.inputs))
	defer func() {
		for _, v := range inputs {
			v.Destroy()
		}
	}()
	for _, name := range e.inputs {
		t, err := ort.NewTensor(shape, cols[name])
		if err != nil {
			return nil, 0, err
		}
		inputs = append(inputs, t)
	}
	outT, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(n), int64(e.dim)))
	if err != nil {
		return nil, 0, err
	}
	defer outT.Destroy()
	if err := e.session.Run(inputs, []ort.Value{outT}); err != nil {
		return nil, 0, fmt.Errorf("session run: %w", err)
	}

	flat := outT.GetData()
	tokens := make([][]float32, n)
	for t := 0; t < n; t++ {
		tokens[t] = flat[t*e.dim : (t+1)*e.dim]
	}
	return Pool(e.pooling, tokens), n, nil
}

func (e *onnxEncoder) Close() error {
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.tokenizer != nil {
		if cerr := e.tokenizer.Close(); err == nil {
			err = cerr
		}
		e.tokenizer = nil
	}
	return err
}
