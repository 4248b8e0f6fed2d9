package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mr-tron/base58/base58"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rexbrahh/ix-decoder/api/http/cache"
	apitypes "github.com/rexbrahh/ix-decoder/api/http/types"
	"github.com/rexbrahh/ix-decoder/decoder/raydium"
	"github.com/rexbrahh/ix-decoder/decoder/registry"
)

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	cacheClient, err := cache.New(cache.Config{Enabled: false, TTL: time.Minute})
	require.NoError(t, err)

	return NewServer(registry.NewDefault(), cacheClient, zap.NewNop(), opts...)
}

func loadRequest(t *testing.T, filename string) apitypes.DecodeRequest {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", filename))
	require.NoError(t, err)

	var req apitypes.DecodeRequest
	require.NoError(t, json.Unmarshal(data, &req))
	return req
}

func post(t *testing.T, srv *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	switch b := body.(type) {
	case string:
		payload = []byte(b)
	default:
		var err error
		payload, err = json.Marshal(b)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	return rr
}

func TestHealthzHandler(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp apitypes.HealthResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.Equal(t, "ok", resp.Status)
	require.Equal(t, []string{"raydium_amm_v4"}, resp.Programs)
}

func TestDecodeSwapBaseIn(t *testing.T) {
	srv := newTestServer(t)
	body := loadRequest(t, "swap_base_in.json")

	for _, path := range []string{"/decode", "/v1/decode"} {
		t.Run(path, func(t *testing.T) {
			rr := post(t, srv, path, body)
			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
			require.Equal(t, "application/json", rr.Header().Get("Content-Type"))

			var resp struct {
				Name     string                 `json:"name"`
				Data     map[string]json.Number `json:"data"`
				Accounts map[string]any         `json:"accounts"`
			}
			dec := json.NewDecoder(rr.Body)
			dec.UseNumber()
			require.NoError(t, dec.Decode(&resp))

			require.Equal(t, "swapBaseIn", resp.Name)
			require.Equal(t, json.Number("300000000"), resp.Data["amount_in"])
			require.Equal(t, json.Number("817831824599853"), resp.Data["minimum_amount_out"])
			require.Len(t, resp.Accounts, 18)
			require.Equal(t, body.Accounts[4], resp.Accounts["amm_target_orders"])
			require.Equal(t, body.Accounts[17], resp.Accounts["user_source_owner"])
		})
	}
}

func TestDecodeSeventeenAccountSwap(t *testing.T) {
	srv := newTestServer(t)
	body := loadRequest(t, "swap_base_in.json")
	body.Accounts = append(body.Accounts[:4:4], body.Accounts[5:]...)

	rr := post(t, srv, "/decode", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp apitypes.DecodeResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.Len(t, resp.Accounts, 17)
	require.NotContains(t, resp.Accounts, "amm_target_orders")
}

func TestDecodeFailuresReturnBadRequest(t *testing.T) {
	srv := newTestServer(t)
	good := loadRequest(t, "swap_base_in.json")

	badAccount := good
	badAccount.Accounts = append([]string{"not-a-key"}, good.Accounts[1:]...)

	unknownProgram := good
	unknownProgram.ProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

	badTag := good
	badTag.Data = base58.Encode([]byte{99})

	unimplemented := good
	unimplemented.Data = base58.Encode([]byte{byte(raydium.TagWithdrawPnl)})

	truncated := good
	truncated.Data = base58.Encode([]byte{byte(raydium.TagSwapBaseIn), 1, 2, 3})

	tests := []struct {
		name    string
		body    any
		contain string
	}{
		{"bad json", `{"programId":`, "invalid request body"},
		{"bad account", badAccount, "malformed input"},
		{"unknown program", unknownProgram, "unrecognized"},
		{"bad tag", badTag, "failed to decode instruction"},
		{"truncated payload", truncated, "failed to decode instruction"},
		{"unimplemented", unimplemented, "not implemented"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := post(t, srv, "/decode", tt.body)
			require.Equal(t, http.StatusBadRequest, rr.Code)

			var resp apitypes.ErrorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			require.Contains(t, strings.ToLower(resp.Msg), tt.contain)
		})
	}
}

func TestBatchDecodePreservesOrder(t *testing.T) {
	srv := newTestServer(t)
	good := loadRequest(t, "swap_base_in.json")
	bad := good
	bad.Data = base58.Encode([]byte{99})

	rr := post(t, srv, "/v1/decode/batch", apitypes.BatchDecodeRequest{
		Instructions: []apitypes.DecodeRequest{good, bad, good},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp apitypes.BatchDecodeResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.Len(t, resp.Results, 3)

	require.NotNil(t, resp.Results[0].Decoded)
	require.Equal(t, "swapBaseIn", resp.Results[0].Decoded.Name)
	require.Nil(t, resp.Results[1].Decoded)
	require.Contains(t, resp.Results[1].Error, "failed to decode instruction")
	require.NotNil(t, resp.Results[2].Decoded)
}

func TestBatchDecodeRejectsEmpty(t *testing.T) {
	srv := newTestServer(t)
	rr := post(t, srv, "/v1/decode/batch", `{"instructions":[]}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestProgramsHandler(t *testing.T) {
	reg, err := registry.ForPrograms(registry.ProgramRaydiumAMM, registry.ProgramSerumDEX)
	require.NoError(t, err)
	srv := NewServer(reg, nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/programs", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp apitypes.ProgramsResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.Equal(t, []apitypes.ProgramInfo{
		{Name: "raydium_amm_v4", ID: raydium.ProgramID},
		{Name: "serum_dex_v3", ID: "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"},
	}, resp.Programs)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv := newTestServer(t, WithMetrics(reg, reg))

	rr := post(t, srv, "/decode", loadRequest(t, "swap_base_in.json"))
	require.Equal(t, http.StatusOK, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `dex_decoder_instructions_total{instruction="swapBaseIn",program="raydium_amm_v4"} 1`)
}

func TestListenAddr(t *testing.T) {
	t.Setenv("API_HTTP_ADDR", "")
	addr, err := listenAddr(nil)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:3000", addr)

	t.Setenv("API_HTTP_ADDR", ":9090")
	addr, err = listenAddr(nil)
	require.NoError(t, err)
	require.Equal(t, ":9090", addr)

	addr, err = listenAddr([]string{"--listen-url", "0.0.0.0:4000"})
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:4000", addr)
}
