package embed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFit(t *testing.T) {
	assert.Equal(t, []float32{1, 2}, Fit([]float32{1, 2, 3}, 2))
	assert.Equal(t, []float32{1, 0, 0}, Fit([]float32{1}, 3))

	same := []float32{1, 2}
	assert.Equal(t, same, Fit(same, 2))
}

func TestFitAll_CountMismatch(t *testing.T) {
	_, err := fitAll([][]float32{{1}}, 2, 4)
	require.Error(t, err)

	vecs, err := fitAll([][]float32{{1, 2, 3, 4, 5}, {1}}, 2, 4)
	require.NoError(t, err)
	for _, v := range vecs {
		assert.Len(t, v, 4)
	}
}

func TestConfigValidate(t *testing.T) {
	assert.ErrorIs(t, Config{Model: "m"}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, Config{Dimensions: 8}.Validate(), ErrInvalidConfig)
	assert.NoError(t, Config{Model: "m", Dimensions: 8}.Validate())
}

func TestNew(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	_, err := New(Config{Provider: "cohere", Model: "m", Dimensions: 8})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{Provider: "openai", Model: "m", Dimensions: 8})
	assert.ErrorIs(t, err, ErrInvalidConfig, "openai without key or base URL")

	e, err := New(Config{Provider: "openai", Model: "m", Dimensions: 8, BaseURL: "http://localhost:9000/v1"})
	require.NoError(t, err)
	assert.Equal(t, 8, e.Dimension())

	_, err = New(Config{Provider: "google", Model: "text-embedding-004", Dimensions: 768})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	g, err := New(Config{Provider: "google", Model: "text-embedding-004", Dimensions: 768, APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, 768, g.Dimension())
}

func TestEmbed_EmptyInput(t *testing.T) {
	e, err := New(Config{Provider: "openai", Model: "m", Dimensions: 4, APIKey: "k"})
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), nil, RoleQuery)
	assert.True(t, errors.Is(err, ErrEmptyInput))
}
