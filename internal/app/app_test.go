package app

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	contentmocks "github.com/readlist/readlist-sync/internal/contentapi/mocks"
)

func newTestApp(t *testing.T) *SyncApp {
	t.Helper()
	ctrl := gomock.NewController(t)

	cfg := memoryConfig()
	app, err := NewSyncApp(context.Background(),
		WithConfig(cfg),
		WithContentClient(contentmocks.NewMockClient(ctrl)),
		WithAddress("127.0.0.1:8080"))
	require.NoError(t, err)
	return app
}

func freeAddr(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())
	return addr
}

func TestSyncApp_StartStop(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)
	app.GetHTTPServer().Addr = freeAddr(t)
	assert.NotNil(t, app.GetConfig())

	errCh := make(chan error, 1)
	go func() { errCh <- app.Start() }()

	url := "http://" + app.GetHTTPServer().Addr
	require.Eventually(t, func() bool {
		resp, err := http.Get(url + "/health") //nolint:gosec // test URL
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Post(url+"/v1/sync/run", "application/json", nil) //nolint:gosec // test URL
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	require.NoError(t, app.Stop(5*time.Second))
	require.NoError(t, <-errCh)
}

func TestSyncApp_StartFailsOnBusyPort(t *testing.T) {
	t.Parallel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	app := newTestApp(t)
	app.GetHTTPServer().Addr = listener.Addr().String()

	err = app.Start()
	require.ErrorContains(t, err, "HTTP server failed")
	require.NoError(t, app.Stop(time.Second))
}
