package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"glowrs/internal/embed"
	"glowrs/internal/repo"
	"glowrs/internal/server"
	"glowrs/pkg/types"
)

const testDims = 16

// newTestState serves ids with the hash backend. Models named in broken
// fail to load; wrap, when set, decorates every loaded encoder.
func newTestState(t *testing.T, ids []string, broken []string, wrap func(repo.Ref, embed.Encoder) embed.Encoder, opts ...server.Option) *server.State {
	t.Helper()
	base, err := embed.NewLoader("hash", embed.LoaderOptions{Dimensions: testDims})
	if err != nil {
		t.Fatalf("loader: %v", err)
	}
	loader := func(ref repo.Ref, d embed.Device) (embed.Encoder, error) {
		for _, b := range broken {
			if ref.Name == b {
				return nil, errors.New("weights missing")
			}
		}
		enc, err := base(ref, d)
		if err != nil || wrap == nil {
			return enc, err
		}
		return wrap(ref, enc), nil
	}
	opts = append([]server.Option{server.WithLoader(loader)}, opts...)
	s, err := server.New(context.Background(), ids, embed.CPUDevice, opts...)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

// resetGlobals restores package-level settings after a test changes them.
func resetGlobals(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		SetMaxBodyBytes(0)
		SetMaxInputs(0)
		SetRequestTimeout(0)
		SetBaseContext(nil)
		SetCORSOptions(false, nil, nil, nil)
		SetRequestLogLevel("info")
	})
}

func postEmbeddings(t *testing.T, h http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/embeddings", &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func httptestPost(h http.Handler, path, contentType string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) types.ErrorBody {
	t.Helper()
	var body types.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body %q: %v", w.Body.String(), err)
	}
	return body.Error
}

// floatResponse mirrors EmbeddingsResponse with concrete float vectors.
type floatResponse struct {
	Object string `json:"object"`
	Data   []struct {
		Object    string    `json:"object"`
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Model string                `json:"model"`
	Usage types.EmbeddingsUsage `json:"usage"`
}

func decodeBase64(s string) ([]float32, error) {
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

type failingEncoder struct{ embed.Encoder }

func (failingEncoder) Encode([]string) ([][]float32, int, error) {
	return nil, 0, errors.New("device lost")
}

type slowEncoder struct {
	embed.Encoder
	delay time.Duration
}

func (s slowEncoder) Encode(texts []string) ([][]float32, int, error) {
	time.Sleep(s.delay)
	return s.Encoder.Encode(texts)
}
