package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// flakyTelegram fails getMe with the given status until it has been asked
// failures times.
type flakyTelegram struct {
	failures int32
	status   int
	calls    atomic.Int32
}

func (f *flakyTelegram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := f.calls.Add(1)
	w.Header().Set("Content-Type", "application/json")
	if !strings.HasSuffix(r.URL.Path, "/getMe") || n > f.failures {
		_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Agama","username":"AgamaBot"}}`))
		return
	}
	w.WriteHeader(f.status)
	if f.status == http.StatusUnauthorized {
		_, _ = w.Write([]byte(`{"ok":false,"error_code":401,"description":"Unauthorized"}`))
		return
	}
	_, _ = w.Write([]byte(`{"ok":false,"error_code":502,"description":"Bad Gateway"}`))
}

func botConfig() Config {
	return Config{
		TelegramToken:     "123:test",
		ReconnectDelay:    time.Millisecond,
		ReconnectMaxDelay: time.Millisecond,
	}
}

func TestNewBot_RetriesUntilTelegramAnswers(t *testing.T) {
	api := &flakyTelegram{failures: 3, status: http.StatusBadGateway}
	srv := httptest.NewServer(api)
	defer srv.Close()

	b, err := newBot(context.Background(), botConfig(), zap.NewNop().Sugar(), tgbot.WithServerURL(srv.URL))
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, int32(4), api.calls.Load())
}

func TestNewBot_RejectedTokenIsPermanent(t *testing.T) {
	api := &flakyTelegram{failures: 100, status: http.StatusUnauthorized}
	srv := httptest.NewServer(api)
	defer srv.Close()

	_, err := newBot(context.Background(), botConfig(), zap.NewNop().Sugar(), tgbot.WithServerURL(srv.URL))
	require.ErrorIs(t, err, tgbot.ErrorUnauthorized)
	assert.Equal(t, int32(1), api.calls.Load())
}

func TestNewBot_StopsWithContext(t *testing.T) {
	api := &flakyTelegram{failures: 1 << 30, status: http.StatusBadGateway}
	srv := httptest.NewServer(api)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newBot(ctx, botConfig(), zap.NewNop().Sugar(), tgbot.WithServerURL(srv.URL))
	require.Error(t, err)
	assert.Greater(t, api.calls.Load(), int32(1))
}
