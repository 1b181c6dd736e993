package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"glowrs/internal/embed"
	"glowrs/pkg/types"
)

// embeddingsHandler godoc
// @Summary      Create embeddings
// @Description  OpenAI compatible. Vectors are L2-normalized.
// @Tags         embeddings
// @Accept       json
// @Produce      json
// @Param        request  body      types.EmbeddingsRequest  true  "Texts to embed"
// @Success      200      {object}  types.EmbeddingsResponse
// @Failure      400      {object}  types.ErrorResponse
// @Failure      404      {object}  types.ErrorResponse
// @Failure      415      {object}  types.ErrorResponse
// @Failure      500      {object}  types.ErrorResponse
// @Failure      502      {object}  types.ErrorResponse
// @Failure      503      {object}  types.ErrorResponse
// @Failure      504      {object}  types.ErrorResponse
// @Router       /v1/embeddings [post]
func embeddingsHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lvl := requestLogLevel(r)

		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, errTypeInvalidRequest, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.EmbeddingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				writeJSONError(w, http.StatusRequestEntityTooLarge, errTypeInvalidRequest, "request body too large")
				return
			}
			writeJSONError(w, http.StatusBadRequest, errTypeInvalidRequest, "invalid JSON body: "+err.Error())
			return
		}
		format := strings.ToLower(req.EncodingFormat)
		if format != "" && format != "float" && format != "base64" {
			writeJSONError(w, http.StatusBadRequest, errTypeInvalidRequest, "encoding_format must be float or base64")
			return
		}
		ereq := embed.Request{Inputs: req.Input, Normalize: true, Dimensions: req.Dimensions}
		// Rejected here so a bad request never reaches the model's worker.
		if err := embed.ValidateRequest(ereq, maxInputs); err != nil {
			recordEmbeddingError(errTypeInvalidRequest)
			writeJSONError(w, http.StatusBadRequest, errTypeInvalidRequest, err.Error())
			return
		}

		fail := func(model string, err error) {
			status, typ := statusFor(err)
			recordEmbeddingError(typ)
			writeJSONError(w, status, typ, err.Error())
			logEnd(r, lvl, model, len(req.Input), status, start, err)
		}

		client, err := svc.Get(req.Model)
		if err != nil {
			fail(req.Model, err)
			return
		}

		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if requestTimeout > 0 {
			var cancelTimeout context.CancelFunc
			ctx, cancelTimeout = context.WithTimeout(ctx, requestTimeout)
			defer cancelTimeout()
		}
		resp, info, err := client.SubmitWithInfo(ctx, ereq)
		if err != nil {
			if r.Context().Err() != nil {
				// Client went away; nobody to answer.
				return
			}
			if serverBaseCtx.Err() != nil {
				recordEmbeddingError(errTypeUnavailable)
				writeJSONError(w, http.StatusServiceUnavailable, errTypeUnavailable, "server is shutting down")
				return
			}
			fail(client.Name(), err)
			return
		}

		out := types.EmbeddingsResponse{
			Object: "list",
			Data:   make([]types.Embedding, len(resp.Embeddings)),
			Model:  client.Name(),
			Usage:  types.EmbeddingsUsage{PromptTokens: resp.PromptTokens, TotalTokens: resp.PromptTokens},
		}
		for i, v := range resp.Embeddings {
			var payload any = v
			if format == "base64" {
				payload = encodeBase64(v)
			}
			out.Data[i] = types.Embedding{Object: "embedding", Index: i, Embedding: payload}
		}
		embeddingInputsTotal.WithLabelValues(client.Name()).Add(float64(len(req.Input)))
		embeddingTokensTotal.WithLabelValues(client.Name()).Add(float64(resp.PromptTokens))

		w.Header().Set("X-Queue-Time-Ms", strconv.FormatInt(info.QueuedFor.Milliseconds(), 10))
		w.Header().Set("X-Process-Time-Ms", strconv.FormatInt(info.Processing.Milliseconds(), 10))
		writeJSON(w, http.StatusOK, out)
		logEnd(r, lvl, client.Name(), len(req.Input), http.StatusOK, start, nil)
	}
}

// encodeBase64 packs v as little-endian float32, the layout OpenAI clients
// decode.
func encodeBase64(v []float32) string {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return base64.StdEncoding.EncodeToString(buf)
}
