package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okapihq/okapi/internal/core/domain"
)

func TestRouter_RegisterRejectsDuplicates(t *testing.T) {
	router := NewProviderRouter(testLogger(), RouterConfig{})

	require.NoError(t, router.Register(newFakeAdapter("p1")))
	err := router.Register(newFakeAdapter("p1"))
	assert.ErrorContains(t, err, "already registered")
	assert.Equal(t, []string{"p1"}, router.Providers())
}

func TestRouter_RegisterRejectsEmptyID(t *testing.T) {
	router := NewProviderRouter(testLogger(), RouterConfig{})
	assert.Error(t, router.Register(newFakeAdapter("")))
}

func TestRouter_GenerateAutomaticFailover(t *testing.T) {
	router := NewProviderRouter(testLogger(), RouterConfig{Priority: []string{"p1", "p2"}})

	failing := newFakeAdapter("p1", fakeReply{err: domain.NewProviderError("p1", "boom", true, nil)})
	healthy := newFakeAdapter("p2", fakeReply{content: "hello"})
	require.NoError(t, router.Register(failing))
	require.NoError(t, router.Register(healthy))

	resp, err := router.Generate(context.Background(), domain.LLMRequest{Prompt: "hi"}, "")
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, "p2", resp.Provider)

	// The failed attempt degrades p1, the successful one marks p2 healthy.
	h1, ok := router.Health("p1")
	require.True(t, ok)
	assert.Equal(t, domain.HealthDegraded, h1.Status)
	h2, ok := router.Health("p2")
	require.True(t, ok)
	assert.Equal(t, domain.HealthHealthy, h2.Status)
}

func TestRouter_GenerateAllProvidersFail(t *testing.T) {
	router := NewProviderRouter(testLogger(), RouterConfig{})
	require.NoError(t, router.Register(newFakeAdapter("p1", fakeReply{err: domain.NewProviderError("p1", "down", true, nil)})))
	require.NoError(t, router.Register(newFakeAdapter("p2", fakeReply{err: domain.NewProviderError("p2", "down", true, nil)})))

	_, err := router.Generate(context.Background(), domain.LLMRequest{Prompt: "hi"}, "")
	require.Error(t, err)

	var agentErr *domain.AgentError
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, domain.ErrorKindProvider, agentErr.Kind)
	assert.True(t, agentErr.Retryable)
	assert.Contains(t, agentErr.Message, "all candidate providers failed")
}

func TestRouter_GenerateNoProviders(t *testing.T) {
	router := NewProviderRouter(testLogger(), RouterConfig{})

	_, err := router.Generate(context.Background(), domain.LLMRequest{Prompt: "hi"}, "")
	var agentErr *domain.AgentError
	require.ErrorAs(t, err, &agentErr)
	assert.True(t, agentErr.Retryable)
	assert.Contains(t, agentErr.Message, "no eligible provider")
}

func TestRouter_ExplicitProviderFallsBack(t *testing.T) {
	router := NewProviderRouter(testLogger(), RouterConfig{})
	failing := newFakeAdapter("p1", fakeReply{err: domain.NewProviderError("p1", "boom", true, nil)})
	healthy := newFakeAdapter("p2", fakeReply{content: "rescued"})
	require.NoError(t, router.Register(failing))
	require.NoError(t, router.Register(healthy))

	resp, err := router.Generate(context.Background(), domain.LLMRequest{Prompt: "hi"}, "p1")
	require.NoError(t, err)
	assert.Equal(t, "rescued", resp.Content)
	assert.Equal(t, 1, failing.callCount())
}

func TestRouter_ExplicitProviderSoleRegistration(t *testing.T) {
	router := NewProviderRouter(testLogger(), RouterConfig{})
	boom := domain.NewProviderError("p1", "boom", false, nil)
	require.NoError(t, router.Register(newFakeAdapter("p1", fakeReply{err: boom})))

	_, err := router.Generate(context.Background(), domain.LLMRequest{Prompt: "hi"}, "p1")
	var agentErr *domain.AgentError
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, "boom", agentErr.Message)
}

func TestRouter_ExplicitProviderUnregistered(t *testing.T) {
	router := NewProviderRouter(testLogger(), RouterConfig{})

	_, err := router.Generate(context.Background(), domain.LLMRequest{Prompt: "hi"}, "ghost")
	var agentErr *domain.AgentError
	require.ErrorAs(t, err, &agentErr)
	assert.Contains(t, agentErr.Message, "not registered")
}

func TestRouter_ModelFiltering(t *testing.T) {
	router := NewProviderRouter(testLogger(), RouterConfig{Priority: []string{"narrow", "wide"}})

	narrow := newFakeAdapter("narrow", fakeReply{content: "from narrow"})
	narrow.models = []string{"special-model"}
	wide := newFakeAdapter("wide", fakeReply{content: "from wide"})
	require.NoError(t, router.Register(narrow))
	require.NoError(t, router.Register(wide))

	resp, err := router.Generate(context.Background(), domain.LLMRequest{Prompt: "hi", Model: "other-model"}, "")
	require.NoError(t, err)
	assert.Equal(t, "from wide", resp.Content)
	assert.Equal(t, 0, narrow.callCount())
}

func TestRouter_PriorityOrdersCandidates(t *testing.T) {
	router := NewProviderRouter(testLogger(), RouterConfig{Priority: []string{"zeta"}})

	preferred := newFakeAdapter("zeta", fakeReply{content: "from zeta"})
	other := newFakeAdapter("alpha", fakeReply{content: "from alpha"})
	require.NoError(t, router.Register(other))
	require.NoError(t, router.Register(preferred))

	resp, err := router.Generate(context.Background(), domain.LLMRequest{Prompt: "hi"}, "")
	require.NoError(t, err)
	assert.Equal(t, "from zeta", resp.Content)
	assert.Equal(t, 0, other.callCount())
}

func TestRouter_UnregisterDropsHealth(t *testing.T) {
	router := NewProviderRouter(testLogger(), RouterConfig{})
	require.NoError(t, router.Register(newFakeAdapter("p1")))

	_, ok := router.Health("p1")
	require.True(t, ok)

	router.Unregister("p1")
	_, ok = router.Health("p1")
	assert.False(t, ok)
	assert.Empty(t, router.Providers())
}

func TestRouter_CheckAllHealth(t *testing.T) {
	router := NewProviderRouter(testLogger(), RouterConfig{})
	require.NoError(t, router.Register(newFakeAdapter("p1")))
	require.NoError(t, router.Register(newFakeAdapter("p2")))

	results := router.CheckAllHealth(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, domain.HealthHealthy, results["p1"].Status)
	assert.Equal(t, domain.HealthHealthy, results["p2"].Status)
	assert.False(t, results["p1"].LastCheck.IsZero())
}
