package redis_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aussiebroadwan/authz/internal/authz/app"
	"github.com/aussiebroadwan/authz/internal/authz/domain"
	"github.com/aussiebroadwan/authz/internal/authz/store"
	"github.com/aussiebroadwan/authz/internal/authz/store/drivers/redis"
	"github.com/aussiebroadwan/authz/internal/authz/store/storetest"
	"github.com/aussiebroadwan/authz/pkg/cryptox"
	"github.com/aussiebroadwan/authz/pkg/idx"
)

/*
 * End-to-end tests against a real Redis. They need Docker and only run with
 * AUTHZ_E2E=1.
 */

const redisImage = "redis:7-alpine"

// setupRedisContainer starts Redis and returns its address.
func setupRedisContainer(t *testing.T) string {
	t.Helper()
	if os.Getenv("AUTHZ_E2E") != "1" {
		t.Skip("set AUTHZ_E2E=1 to run end-to-end tests")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        redisImage,
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForLog("Ready to accept connections").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	mappedPort, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)
	host, err := container.Host(ctx)
	require.NoError(t, err)

	return fmt.Sprintf("%s:%s", host, mappedPort.Port())
}

func TestRedisDriverContract(t *testing.T) {
	addr := setupRedisContainer(t)

	storetest.Run(t, func(t *testing.T, maxValueSize int) store.Store {
		client := goredis.NewClient(&goredis.Options{Addr: addr})
		// A fresh prefix per store keeps subtests from seeing each other.
		s := redis.NewStoreWithClient(client, "e2e:"+idx.New().String()+":", maxValueSize)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func call(t *testing.T, url, method string, params any) json.RawMessage {
	t.Helper()
	body, err := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 1, "method": method, "params": params})
	require.NoError(t, err)

	res, err := http.Post(url+"/rpc", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var out rpcResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	require.Nil(t, out.Error, method)
	return out.Result
}

func TestAuthorizationFlowOnRedis(t *testing.T) {
	addr := setupRedisContainer(t)
	dir := t.TempDir()

	hash, err := cryptox.HashSecret("e2e-secret")
	require.NoError(t, err)
	clients, err := json.Marshal([]domain.Client{{ID: "e2e-app", Name: "E2E", SecretHash: hash}})
	require.NoError(t, err)
	clientsFile := filepath.Join(dir, "clients.json")
	require.NoError(t, os.WriteFile(clientsFile, clients, 0o600))

	cfg := app.LoadConfig()
	cfg.Store = app.StoreRedis
	cfg.RedisAddr = addr
	cfg.RedisPrefix = "e2e:" + idx.New().String() + ":"
	cfg.ClientsFile = clientsFile
	cfg.PepperFile = ""
	cfg.LogLevel = "error"
	cfg.ShutdownGracePeriod = time.Second

	application, err := app.New(cfg)
	require.NoError(t, err)
	application.Start()
	t.Cleanup(func() { require.NoError(t, application.Shutdown()) })

	srv := httptest.NewServer(application.Handler())
	t.Cleanup(srv.Close)

	var authz struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(call(t, srv.URL, "authorize", map[string]any{
		"identity":     "urn:rollupid:identity/e2e",
		"responseType": "code",
		"clientId":     "e2e-app",
		"redirectUri":  "https://e2e.example/cb",
		"scope":        []string{"read"},
		"state":        "e2e",
	}), &authz))

	var set domain.TokenSet
	require.NoError(t, json.Unmarshal(call(t, srv.URL, "exchangeToken", map[string]any{
		"grantType":    "authorization_code",
		"code":         authz.Code,
		"clientId":     "e2e-app",
		"clientSecret": "e2e-secret",
	}), &set))
	require.NotEmpty(t, set.RefreshToken)

	var refreshed domain.TokenSet
	require.NoError(t, json.Unmarshal(call(t, srv.URL, "exchangeToken", map[string]any{
		"grantType":    "refresh_token",
		"refreshToken": set.RefreshToken,
		"clientId":     "e2e-app",
		"clientSecret": "e2e-secret",
	}), &refreshed))
	require.NotEmpty(t, refreshed.AccessToken)

	var verified struct {
		Subject string `json:"sub"`
	}
	require.NoError(t, json.Unmarshal(call(t, srv.URL, "verifyToken", map[string]any{
		"token":    refreshed.AccessToken,
		"clientId": "e2e-app",
	}), &verified))
	require.Equal(t, "urn:rollupid:identity/e2e", verified.Subject)
}
