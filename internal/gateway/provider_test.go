package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/inboxd/internal/config"
)

func TestNew_HeuristicDefault(t *testing.T) {
	g, err := New(context.Background(), config.GatewayConfig{Timeout: config.Duration(5 * time.Second)}, nil)
	require.NoError(t, err)

	tg, ok := g.(*timeoutGateway)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, tg.timeout)
	assert.IsType(t, &HeuristicGateway{}, tg.next)
}

func TestNew_RemoteProviderRequiresKey(t *testing.T) {
	for _, provider := range []string{config.ProviderGoogleAI, config.ProviderOpenAI, config.ProviderAnthropic} {
		t.Run(provider, func(t *testing.T) {
			_, err := New(context.Background(), config.GatewayConfig{Provider: provider}, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "requires an api key")
		})
	}
}

func TestNew_OpenAIWithKey(t *testing.T) {
	g, err := New(context.Background(), config.GatewayConfig{
		Provider:  config.ProviderOpenAI,
		APIKey:    config.Secret("sk-test"),
		BaseURL:   "http://127.0.0.1:1/v1",
		RateLimit: 2,
		Burst:     1,
	}, nil)
	require.NoError(t, err)

	tg := g.(*timeoutGateway)
	assert.Equal(t, DefaultTimeout, tg.timeout)
	llm, ok := tg.next.(*LLMGateway)
	require.True(t, ok)
	assert.Equal(t, 1, llm.limiter.Burst())
}

func TestNewModel_UnknownProvider(t *testing.T) {
	_, err := NewModel(context.Background(), config.GatewayConfig{Provider: "llama", APIKey: config.Secret("k")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}
