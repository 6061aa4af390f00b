package clients

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/meeting-pipeline/config"
)

func TestFactoryCachesPerKey(t *testing.T) {
	f := NewFactory(config.OpenAIConfig{RequestTimeout: time.Second}, nil)

	a, err := f.openAIClient("key-a")
	require.NoError(t, err)
	again, err := f.openAIClient("key-a")
	require.NoError(t, err)
	b, err := f.openAIClient("key-b")
	require.NoError(t, err)

	assert.Same(t, a, again)
	assert.NotSame(t, a, b)

	n1, err := f.Notion("secret_1")
	require.NoError(t, err)
	n2, err := f.Notion("secret_1")
	require.NoError(t, err)
	assert.Same(t, n1, n2)
}

func TestFactoryRequiresKey(t *testing.T) {
	f := NewFactory(config.OpenAIConfig{}, nil)

	_, err := f.Transcriber("")
	assert.ErrorIs(t, err, ErrNoKey)
	_, err = f.Summarizer("")
	assert.ErrorIs(t, err, ErrNoKey)
	_, err = f.Notion("")
	assert.ErrorIs(t, err, ErrNoKey)

	tr, err := f.Transcriber("k")
	require.NoError(t, err)
	assert.NotNil(t, tr)
}
