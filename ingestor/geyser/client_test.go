package geyser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"github.com/rexbrahh/ix-decoder/decoder/registry"
	natsx "github.com/rexbrahh/ix-decoder/sinks/nats"

	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
)

func natsConfigForTest() natsx.Config {
	cfg := natsx.DefaultConfig()
	cfg.URL = "nats://127.0.0.1:1"
	return cfg
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv(envEndpoint, "grpc.example.com:443")
	t.Setenv(envAPIKey, "secret-token-value")

	cfg, err := LoadConfig(registry.NewDefault().Filters())
	require.NoError(t, err)
	require.Equal(t, PrimarySource, cfg.Name)
	require.Equal(t, "grpc.example.com:443", cfg.Endpoint)
	require.Contains(t, cfg.ProgramFilters, registry.ProgramRaydiumAMM.String())

	masked := cfg.String()
	require.NotContains(t, masked, "secret-token-value")
	require.Contains(t, masked, "secr****alue")
}

func TestLoadConfigValidation(t *testing.T) {
	t.Setenv(envEndpoint, "")
	t.Setenv(envAPIKey, "")

	_, err := LoadConfig(map[string]string{"bad": "not-a-key"})
	require.Error(t, err)
	msg := err.Error()
	require.True(t, strings.Contains(msg, "endpoint is required"), msg)
	require.True(t, strings.Contains(msg, "api key is required"), msg)
	require.True(t, strings.Contains(msg, "invalid program ID"), msg)

	_, err = LoadConfig(nil)
	require.Error(t, err)
}

func TestLoadFallbackConfig(t *testing.T) {
	t.Setenv(envEndpoint, "primary:443")
	t.Setenv(envAPIKey, "primary-key")
	primary, err := LoadConfig(registry.NewDefault().Filters())
	require.NoError(t, err)

	t.Setenv(envFallbackEndpoint, "")
	fallback, err := LoadFallbackConfig(primary)
	require.NoError(t, err)
	require.Nil(t, fallback)

	t.Setenv(envFallbackEndpoint, "fallback:443")
	fallback, err = LoadFallbackConfig(primary)
	require.NoError(t, err)
	require.Equal(t, FallbackSource, fallback.Name)
	require.Equal(t, "primary-key", fallback.APIKey)
	require.Equal(t, primary.ProgramFilters, fallback.ProgramFilters)

	t.Setenv(envFallbackAPIKey, "fallback-key")
	fallback, err = LoadFallbackConfig(primary)
	require.NoError(t, err)
	require.Equal(t, "fallback-key", fallback.APIKey)
}

func TestBuildSubscribeRequest(t *testing.T) {
	reg, err := registry.ForPrograms(registry.ProgramRaydiumAMM, registry.ProgramSerumDEX)
	require.NoError(t, err)

	client, err := NewClient(&Config{
		Endpoint:       "grpc.example.com:443",
		APIKey:         "key",
		ProgramFilters: reg.Filters(),
	}, nil)
	require.NoError(t, err)
	defer client.Close()
	require.Equal(t, PrimarySource, client.Name())

	req := client.buildSubscribeRequest(0)
	require.Nil(t, req.FromSlot)
	require.Equal(t, pb.CommitmentLevel_CONFIRMED, req.GetCommitment())
	require.Contains(t, req.GetBlocksMeta(), "client")
	require.Contains(t, req.GetSlots(), "client")

	filter := req.GetTransactions()["programs"]
	require.NotNil(t, filter)
	require.False(t, filter.GetVote())
	require.ElementsMatch(t, []string{
		registry.ProgramRaydiumAMM.ID().String(),
		registry.ProgramSerumDEX.ID().String(),
	}, filter.GetAccountInclude())

	req = client.buildSubscribeRequest(1234)
	require.Equal(t, uint64(1234), req.GetFromSlot())
	require.True(t, proto.Equal(req, client.buildSubscribeRequest(1234)), "subscribe request must be deterministic")
}

func TestNewClientRejectsInvalidConfig(t *testing.T) {
	_, err := NewClient(nil, nil)
	require.Error(t, err)
	_, err = NewClient(&Config{Endpoint: "x"}, nil)
	require.Error(t, err)
}

func TestExtractSlotFromUpdate(t *testing.T) {
	cases := []struct {
		name   string
		update *pb.SubscribeUpdate
		want   uint64
	}{
		{"slot", slotUpdate(11, pb.SlotStatus_SLOT_CONFIRMED), 11},
		{"block meta", blockMetaUpdate(12, 0), 12},
		{"transaction", &pb.SubscribeUpdate{UpdateOneof: &pb.SubscribeUpdate_Transaction{Transaction: &pb.SubscribeUpdateTransaction{Slot: 13}}}, 13},
		{"ping", &pb.SubscribeUpdate{UpdateOneof: &pb.SubscribeUpdate_Ping{Ping: &pb.SubscribeUpdatePing{}}}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, extractSlotFromUpdate(tc.update))
		})
	}
}

func TestReplayFrom(t *testing.T) {
	require.Equal(t, uint64(0), replayFrom(0))
	require.Equal(t, uint64(ReplaySlotWindow), replayFrom(ReplaySlotWindow))
	require.Equal(t, uint64(1000-ReplaySlotWindow), replayFrom(1000))
}

func TestClientReconnectsAfterClose(t *testing.T) {
	client, err := NewClient(&Config{
		Endpoint:       "127.0.0.1:1",
		APIKey:         "key",
		ProgramFilters: registry.NewDefault().Filters(),
	}, nil)
	require.NoError(t, err)

	require.NoError(t, client.Connect())
	require.NoError(t, client.Close())
	require.Error(t, client.ctx.Err())

	require.NoError(t, client.Connect())
	require.NoError(t, client.ctx.Err(), "Connect must start a fresh context after Close")
	require.NoError(t, client.Close())
}
