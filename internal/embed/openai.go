package embed

import (
	"context"
	"fmt"
	"sort"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// openaiEmbedder calls an OpenAI-compatible /embeddings endpoint. The
// input_type extension field is sent for asymmetric models served behind
// compatible gateways; the OpenAI API itself ignores it.
type openaiEmbedder struct {
	client openai.Client
	model  string
	dims   int
}

func newOpenAIEmbedder(cfg Config) (Embedder, error) {
	key := keyOrEnv(cfg.APIKey, "OPENAI_API_KEY")
	if key == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY environment variable not set", ErrInvalidConfig)
	}
	opts := []option.RequestOption{option.WithAPIKey(key)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &openaiEmbedder{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		dims:   cfg.Dimensions,
	}, nil
}

func (e *openaiEmbedder) Dimension() int { return e.dims }

func (e *openaiEmbedder) Embed(ctx context.Context, texts []string, role Role) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:      openai.EmbeddingModel(e.model),
		Input:      openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Dimensions: openai.Int(int64(e.dims)),
	}, option.WithJSONSet("input_type", string(role)))
	if err != nil {
		return nil, fmt.Errorf("openai: embeddings.new: %w", err)
	}

	// The API reports each row's input index; do not rely on row order.
	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vecs := make([][]float32, len(data))
	for i, row := range data {
		v := make([]float32, len(row.Embedding))
		for j, x := range row.Embedding {
			v[j] = float32(x)
		}
		vecs[i] = v
	}
	return fitAll(vecs, len(texts), e.dims)
}
