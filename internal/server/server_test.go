package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nearbridge/fastbridge-relayer/internal/config"
	"github.com/nearbridge/fastbridge-relayer/internal/store/storetest"
)

type fakeHeight struct{ h uint64 }

func (f fakeHeight) Height() uint64 { return f.h }

func newTestServer() *Server {
	cfg := &config.Config{
		ProfitThreshold: config.NewThreshold(1.5),
		Whitelist:       config.NewWhitelist(),
	}
	return New(cfg, storetest.New(), fakeHeight{h: 999})
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestThresholdGetAndSet(t *testing.T) {
	srv := newTestServer()

	getReq := httptest.NewRequest(http.MethodGet, "/api/v1/threshold", nil)
	getRec := httptest.NewRecorder()
	srv.router.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)

	var got map[string]float64
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &got))
	require.Equal(t, 1.5, got["profit_threshold_usd"])

	body, _ := json.Marshal(map[string]float64{"profit_threshold_usd": 3.25})
	putReq := httptest.NewRequest(http.MethodPut, "/api/v1/threshold", bytes.NewReader(body))
	putRec := httptest.NewRecorder()
	srv.router.ServeHTTP(putRec, putReq)
	require.Equal(t, http.StatusOK, putRec.Code)
	require.Equal(t, 3.25, srv.cfg.ProfitThreshold.Get())
}

func TestWhitelistSetAndDelete(t *testing.T) {
	srv := newTestServer()

	body, _ := json.Marshal(config.TokenInfo{CoinID: "tether", Decimals: 6})
	putReq := httptest.NewRequest(http.MethodPut, "/api/v1/whitelist/usdt.near", bytes.NewReader(body))
	putRec := httptest.NewRecorder()
	srv.router.ServeHTTP(putRec, putReq)
	require.Equal(t, http.StatusOK, putRec.Code)

	info, ok := srv.cfg.Whitelist.Get("usdt.near")
	require.True(t, ok)
	require.Equal(t, "tether", info.CoinID)

	delReq := httptest.NewRequest(http.MethodDelete, "/api/v1/whitelist/usdt.near", nil)
	delRec := httptest.NewRecorder()
	srv.router.ServeHTTP(delRec, delReq)
	require.Equal(t, http.StatusNoContent, delRec.Code)

	_, ok = srv.cfg.Whitelist.Get("usdt.near")
	require.False(t, ok)
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, float64(999), got["eth_last_block_number_on_near"])
}
