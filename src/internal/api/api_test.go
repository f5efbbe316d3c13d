package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/maksimkurb/tunroute/src/internal/burstguard"
	"github.com/maksimkurb/tunroute/src/internal/mocks"
	"github.com/maksimkurb/tunroute/src/internal/networking"
	"github.com/maksimkurb/tunroute/src/internal/routing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ethGateway  = netip.MustParseAddr("192.168.1.1")
	wlanGateway = netip.MustParseAddr("192.168.2.1")
)

type testEnv struct {
	sys     *mocks.FakeSystem
	manager *routing.RouteManager
	router  http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	sys := mocks.NewFakeSystem()
	sys.AddInterface(networking.InterfaceInfo{
		ID: 2, Name: "eth0", Index: 2, MTU: 1500, Up: true, Connected: true,
		IPv4Enabled: true, Gateways: []netip.Addr{ethGateway},
	})
	sys.AddInterface(networking.InterfaceInfo{
		ID: 3, Name: "wlan0", Index: 3, MTU: 1400, Up: true, Connected: true,
		IPv4Enabled: true, Gateways: []netip.Addr{wlanGateway},
	})
	sys.AddInterface(networking.InterfaceInfo{
		ID: 5, Name: "wg0", Index: 5, MTU: 1380, Up: true, Connected: true, Virtual: true,
		IPv4Enabled: true,
	})
	sys.InsertEntry(networking.ForwardEntry{
		Destination: networking.FamilyV4.DefaultPrefix(), Interface: 2, Gateway: ethGateway, Metric: 100,
	})

	manager, err := routing.NewRouteManager(sys, routing.Options{
		BurstGuard: burstguard.Config{BufferPeriod: 10 * time.Millisecond, LongestBufferPeriod: 50 * time.Millisecond},
	})
	require.NoError(t, err)
	t.Cleanup(manager.Close)

	h := NewHandler(manager, sys, []networking.Family{networking.FamilyV4})
	return &testEnv{sys: sys, manager: manager, router: NewRouter(h)}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "127.0.0.1:40000"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var resp struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error
}

func TestRoutes_AddListDelete(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/routes",
		`{"routes":[{"network":"10.0.0.0/8"},{"network":"0.0.0.0/1","device":"wg0"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	added := decodeData[RoutesResponse](t, rec)
	require.Len(t, added.Routes, 2)
	assert.Equal(t, RouteInfo{
		Network:   "10.0.0.0/8",
		Node:      "default",
		Installed: NextHopInfo{Interface: "?0000000000000002", InterfaceName: "eth0", Gateway: "192.168.1.1"},
	}, added.Routes[0])
	assert.Equal(t, "device", added.Routes[1].Node)
	assert.Equal(t, "wg0", added.Routes[1].Installed.InterfaceName)
	assert.Len(t, env.sys.EntriesFor(netip.MustParsePrefix("0.0.0.0/1")), 1)

	rec = env.do(t, http.MethodGet, "/api/v1/routes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, added, decodeData[RoutesResponse](t, rec))

	rec = env.do(t, http.MethodDelete, "/api/v1/routes", `{"networks":["10.0.0.0/8","172.16.0.0/12"]}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.Empty(t, env.sys.EntriesFor(netip.MustParsePrefix("10.0.0.0/8")))
	assert.Len(t, env.manager.Routes(), 1)
}

func TestRoutes_AddErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		status   int
		code     ErrorCode
		contains string
	}{
		{
			name:   "malformed body",
			body:   `{"routes":`,
			status: http.StatusBadRequest,
			code:   ErrCodeInvalidRequest,
		},
		{
			name:   "unknown field",
			body:   `{"routes":[{"network":"10.0.0.0/8","metric":5}]}`,
			status: http.StatusBadRequest,
			code:   ErrCodeInvalidRequest,
		},
		{
			name:   "empty batch",
			body:   `{"routes":[]}`,
			status: http.StatusBadRequest,
			code:   ErrCodeInvalidRequest,
		},
		{
			name:     "invalid network",
			body:     `{"routes":[{"network":"10.0.0.0"}]}`,
			status:   http.StatusBadRequest,
			code:     ErrCodeValidationFailed,
			contains: "route.0.network",
		},
		{
			name:   "gateway family mismatch",
			body:   `{"routes":[{"network":"10.0.0.0/8","gateway":"fe80::1"}]}`,
			status: http.StatusBadRequest,
			code:   ErrCodeValidationFailed,
		},
		{
			name:     "unknown device",
			body:     `{"routes":[{"network":"10.0.0.0/8"},{"network":"192.0.2.0/24","device":"eth9"}]}`,
			status:   http.StatusUnprocessableEntity,
			code:     ErrCodeUnresolvable,
			contains: "DEVICE_NAME_NOT_FOUND",
		},
		{
			name:     "unknown gateway",
			body:     `{"routes":[{"network":"192.0.2.0/24","gateway":"203.0.113.1"}]}`,
			status:   http.StatusUnprocessableEntity,
			code:     ErrCodeUnresolvable,
			contains: "DEVICE_GATEWAY_NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			before := env.sys.Entries(networking.FamilyV4)

			rec := env.do(t, http.MethodPost, "/api/v1/routes", tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())

			body := rec.Body.String()
			apiErr := decodeError(t, rec)
			assert.Equal(t, tt.code, apiErr.Code)
			if tt.contains != "" {
				assert.Contains(t, body, tt.contains)
			}

			assert.Equal(t, before, env.sys.Entries(networking.FamilyV4), "failed batches leave no trace")
			assert.Empty(t, env.manager.Routes())
		})
	}
}

func TestRoutes_RouteTableFailure(t *testing.T) {
	env := newTestEnv(t)
	env.sys.CreateFunc = func(networking.ForwardEntry) error { return assert.AnError }

	rec := env.do(t, http.MethodPost, "/api/v1/routes", `{"routes":[{"network":"10.0.0.0/8"}]}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, ErrCodeRouteTableError, decodeError(t, rec).Code)
}

func TestRoutes_DeleteInvalidNetwork(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodDelete, "/api/v1/routes", `{"networks":["nope"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrCodeValidationFailed, decodeError(t, rec).Code)
}

func TestRoutes_ManagerClosed(t *testing.T) {
	env := newTestEnv(t)
	env.manager.Close()

	rec := env.do(t, http.MethodPost, "/api/v1/routes", `{"routes":[{"network":"10.0.0.0/8"}]}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDefaultRoutes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/default-routes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, DefaultRoutesResponse{DefaultRoutes: []DefaultRouteInfo{{
		Family:  "ipv4",
		Present: true,
		Route:   &NextHopInfo{Interface: "?0000000000000002", InterfaceName: "eth0", Gateway: "192.168.1.1"},
	}}}, decodeData[DefaultRoutesResponse](t, rec))

	env.sys.RemoveDefaultRoute(networking.FamilyV4)
	require.Eventually(t, func() bool {
		_, ok := env.manager.DefaultRoute(networking.FamilyV4)
		return !ok
	}, time.Second, 5*time.Millisecond)

	rec = env.do(t, http.MethodGet, "/api/v1/default-routes", "")
	resp := decodeData[DefaultRoutesResponse](t, rec)
	require.Len(t, resp.DefaultRoutes, 1)
	assert.False(t, resp.DefaultRoutes[0].Present)
	assert.Nil(t, resp.DefaultRoutes[0].Route)
}

func TestMTU(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/mtu", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, MTUResponse{Family: "ipv4", MTU: 1500}, decodeData[MTUResponse](t, rec))

	rec = env.do(t, http.MethodGet, "/api/v1/mtu?family=6", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/mtu?family=ipx", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decodeData[HealthCheckResponse](t, rec)
	assert.True(t, health.Healthy)
	assert.True(t, health.Checks["ipv4_default_route"].Passed)

	env.sys.RemoveDefaultRoute(networking.FamilyV4)
	require.Eventually(t, func() bool {
		rec := env.do(t, http.MethodGet, "/health", "")
		return !decodeData[HealthCheckResponse](t, rec).Healthy
	}, time.Second, 5*time.Millisecond)
}

func TestEvents_StreamsDefaultRouteChanges(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/api/v1/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": connected\n", line)

	env.sys.SetDefaultRoute(networking.FamilyV4, 3, wlanGateway, 100)

	var event, data string
	for event == "" || data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}

	assert.Equal(t, "default-route-changed", event)

	var info DefaultRouteEventInfo
	require.NoError(t, json.Unmarshal([]byte(data), &info))
	assert.Equal(t, DefaultRouteEventInfo{
		Type:   "updated",
		Family: "ipv4",
		Route:  &NextHopInfo{Interface: "?0000000000000003", InterfaceName: "wlan0", Gateway: "192.168.2.1"},
	}, info)
}

func TestMiddleware(t *testing.T) {
	env := newTestEnv(t)

	t.Run("rejects public clients", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/routes", nil)
		req.RemoteAddr = "203.0.113.7:5555"
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("rejects non-JSON bodies", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/routes", strings.NewReader("network=10.0.0.0/8"))
		req.RemoteAddr = "192.168.1.10:5555"
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown endpoint", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/ipsets", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("recovers from panics", func(t *testing.T) {
		handler := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestServer_StartStop(t *testing.T) {
	env := newTestEnv(t)
	srv := NewServer("127.0.0.1:0", NewHandler(env.manager, env.sys, []networking.Family{networking.FamilyV4}))
	require.NoError(t, srv.Start())

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	streamDone := make(chan struct{})
	go func() {
		defer close(streamDone)
		resp, err := http.Get("http://" + srv.Addr() + "/api/v1/events")
		if err == nil {
			_, _ = bufio.NewReader(resp.Body).ReadString('\x00')
			resp.Body.Close()
		}
	}()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))

	select {
	case <-streamDone:
	case <-time.After(time.Second):
		t.Fatal("event stream was not closed on shutdown")
	}
}
