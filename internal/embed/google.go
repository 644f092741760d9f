package embed

import (
	"context"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	googleoption "google.golang.org/api/option"
)

// googleEmbedder uses the Generative AI embedding models. As with the
// reasoner provider, a client is created per call so the caller's context
// governs the connection.
type googleEmbedder struct {
	apiKey  string
	model   string
	dims    int
	timeout time.Duration
}

func newGoogleEmbedder(cfg Config) (Embedder, error) {
	key := keyOrEnv(cfg.APIKey, "GOOGLE_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("%w: GOOGLE_API_KEY environment variable not set", ErrInvalidConfig)
	}
	return &googleEmbedder{apiKey: key, model: cfg.Model, dims: cfg.Dimensions, timeout: cfg.Timeout}, nil
}

func (e *googleEmbedder) Dimension() int { return e.dims }

func (e *googleEmbedder) Embed(ctx context.Context, texts []string, role Role) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	client, err := genai.NewClient(ctx, googleoption.WithAPIKey(e.apiKey))
	if err != nil {
		return nil, fmt.Errorf("google: genai client: %w", err)
	}
	defer client.Close()

	em := client.EmbeddingModel(e.model)
	em.TaskType = genai.TaskTypeRetrievalDocument
	if role == RoleQuery {
		em.TaskType = genai.TaskTypeRetrievalQuery
	}

	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}
	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("google: batch embed contents: %w", err)
	}

	vecs := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil {
			return nil, fmt.Errorf("google: embedding %d missing", i)
		}
		vecs[i] = append([]float32(nil), emb.Values...)
	}
	return fitAll(vecs, len(texts), e.dims)
}
