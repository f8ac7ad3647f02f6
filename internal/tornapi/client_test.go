package tornapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tornwatch/internal/store"
)

type staticCredentials string

func (s staticCredentials) APIKey(context.Context) (string, error) {
	return string(s), nil
}

func newTestClient(baseURL, key string) *Client {
	return New(Options{
		BaseURL:    baseURL,
		MinSpacing: time.Millisecond,
		Cooldown:   50 * time.Millisecond,
		Timeout:    time.Second,
	}, staticCredentials(key), zerolog.Nop())
}

func TestFetchJSONNoCredential(t *testing.T) {
	c := newTestClient("http://localhost", "")
	if _, err := c.FetchJSON(context.Background(), "/torn/", nil); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("缺少 key 时应返回 ErrNoCredential, 实际 %v", err)
	}
}

func TestFetchJSONSuccess(t *testing.T) {
	var gotKey, gotSelections string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		gotSelections = r.URL.Query().Get("selections")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"market":[{"cost":100}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "secret")
	body, err := c.FetchJSON(context.Background(), "/market/206", url.Values{"selections": {"market"}})
	if err != nil {
		t.Fatalf("FetchJSON 应成功: %v", err)
	}
	if len(body) == 0 {
		t.Fatal("body 应非空")
	}
	if gotKey != "secret" {
		t.Fatalf("key 参数不正确: %q", gotKey)
	}
	if gotSelections != "market" {
		t.Fatalf("selections 参数不正确: %q", gotSelections)
	}
	if c.LastRequestAt().IsZero() {
		t.Fatal("LastRequestAt 应被更新")
	}
}

func TestFetchJSONEnvelopeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":{"code":2,"error":"Incorrect key"}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "secret")
	_, err := c.FetchJSON(context.Background(), "/torn/", nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("200 信封错误应映射为 APIError, 实际 %v", err)
	}
	if apiErr.Code != 2 {
		t.Fatalf("code = %d, want 2", apiErr.Code)
	}
}

func TestFetchJSONRateLimitEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":{"code":5,"error":"Too many requests"}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "secret")
	_, err := c.FetchJSON(context.Background(), "/torn/", nil)

	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("信封 code=5 应映射为 RateLimitedError, 实际 %v", err)
	}
	if _, active := c.CoolingDown(); !active {
		t.Fatal("限流后应进入冷却")
	}
}

func TestFetchJSONStatus429(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "secret")
	var rl *RateLimitedError
	if _, err := c.FetchJSON(context.Background(), "/torn/", nil); !errors.As(err, &rl) {
		t.Fatalf("HTTP 429 应映射为 RateLimitedError, 实际 %v", err)
	}
}

func TestCooldownBlocksUntilDeadline(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "secret")
	if _, err := c.FetchJSON(context.Background(), "/torn/", nil); err == nil {
		t.Fatal("第一次请求应因 429 失败")
	}

	start := time.Now()
	if _, err := c.FetchJSON(context.Background(), "/torn/", nil); err != nil {
		t.Fatalf("冷却结束后应成功: %v", err)
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Fatal("第二次请求应等待冷却结束")
	}
}

func TestStoreCredentialsTrimsWhitespace(t *testing.T) {
	st := store.NewMemory()
	if err := store.SetJSON(context.Background(), st, store.KeyCredential, " secret \n"); err != nil {
		t.Fatalf("seed credential: %v", err)
	}

	creds := StoreCredentials{Store: st}
	key, err := creds.APIKey(context.Background())
	if err != nil {
		t.Fatalf("APIKey: %v", err)
	}
	if key != "secret" {
		t.Fatalf("key = %q, want secret", key)
	}
}

func TestStoreCredentialsMissingKey(t *testing.T) {
	creds := StoreCredentials{Store: store.NewMemory()}
	key, err := creds.APIKey(context.Background())
	if err != nil {
		t.Fatalf("APIKey: %v", err)
	}
	if key != "" {
		t.Fatalf("缺省应返回空 key, 实际 %q", key)
	}
}
