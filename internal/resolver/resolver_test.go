package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

const receiptBody = `{"id":"r-1","sum":"300","locationName":"Cafe","products":[
	{"productId":1,"productName":"Soup","productPrice":"100","productCount":"1","productCost":"100"},
	{"productId":2,"productName":"Tea","productPrice":"100","productCount":"2","productCost":"200"}]}`

func TestResolve(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		validateFunc func(t *testing.T, res *Result, err error)
	}{
		{
			name:   "receipt",
			status: http.StatusOK,
			body:   receiptBody,
			validateFunc: func(t *testing.T, res *Result, err error) {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if res.Receipt == nil || res.Acknowledged {
					t.Fatalf("expected receipt, got %+v", res)
				}
				if len(res.Receipt.Items) != 2 || res.Receipt.Metadata.StoreName != "Cafe" {
					t.Errorf("unexpected receipt: %+v", res.Receipt)
				}
			},
		},
		{
			name:   "acknowledgement without receipt",
			status: http.StatusOK,
			body:   `{"status":"ok"}`,
			validateFunc: func(t *testing.T, res *Result, err error) {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if !res.Acknowledged || res.Receipt != nil {
					t.Errorf("expected acknowledgement, got %+v", res)
				}
			},
		},
		{
			name:   "server error",
			status: http.StatusBadGateway,
			body:   "upstream down",
			validateFunc: func(t *testing.T, res *Result, err error) {
				var rErr *Error
				if !errors.As(err, &rErr) {
					t.Fatalf("expected *Error, got %v", err)
				}
				if rErr.Category != CategoryServer || rErr.Status != http.StatusBadGateway {
					t.Errorf("unexpected error: %+v", rErr)
				}
				if rErr.Body != "upstream down" {
					t.Errorf("Body = %q", rErr.Body)
				}
				if !strings.Contains(rErr.UserMessage(), "502") {
					t.Errorf("UserMessage = %q, want status", rErr.UserMessage())
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotLink string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("method = %s, want POST", r.Method)
				}
				var req resolveRequest
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					t.Errorf("failed to decode request: %v", err)
				}
				gotLink = req.Link
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			res, err := New(NewClient(srv.URL, srv.Client())).Resolve(context.Background(), "https://check.example/q?x=1")
			if gotLink != "https://check.example/q?x=1" {
				t.Errorf("posted link = %q", gotLink)
			}
			tt.validateFunc(t, res, err)
		})
	}
}

func TestResolveNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(NewClient(url, nil)).Resolve(context.Background(), "link")
	if CategoryOf(err) != CategoryNetwork {
		t.Fatalf("category = %s, want network (err=%v)", CategoryOf(err), err)
	}
}

func TestResolveNotConfigured(t *testing.T) {
	_, err := New(NewClient("", nil)).Resolve(context.Background(), "link")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if CategoryOf(err) != CategoryUnknown {
		t.Errorf("category = %s, want unknown", CategoryOf(err))
	}
}

func TestClientSingleInFlight(t *testing.T) {
	var active, maxActive int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&active, 1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		io.WriteString(w, receiptBody)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.Fetch(context.Background(), "link"); err != nil {
				t.Errorf("Fetch: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&maxActive); got != 1 {
		t.Errorf("max concurrent requests = %d, want 1", got)
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		category Category
		want     string
	}{
		{CategoryNetwork, "Network error"},
		{CategoryCORS, "CORS error"},
		{CategoryServer, "Server error"},
		{CategoryUnknown, "Error"},
	}
	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			msg := UserMessage(tt.category, "detail")
			if !strings.HasPrefix(msg, tt.want) {
				t.Errorf("UserMessage(%s) = %q, want prefix %q", tt.category, msg, tt.want)
			}
		})
	}
}

type fakeCache struct {
	mu      sync.Mutex
	data    map[string]string
	ttl     time.Duration
	readErr error
}

func (f *fakeCache) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return redis.NewStringResult("", f.readErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	f.ttl = expiration
	return redis.NewStatusResult("OK", nil)
}

type countingFetcher struct {
	calls int
	body  []byte
	err   error
}

func (c *countingFetcher) Fetch(ctx context.Context, link string) ([]byte, error) {
	c.calls++
	return c.body, c.err
}

type countingObserver struct{ hits, misses int }

func (o *countingObserver) CacheHit()  { o.hits++ }
func (o *countingObserver) CacheMiss() { o.misses++ }

func TestCached(t *testing.T) {
	tests := []struct {
		name         string
		readErr      error
		fetchErr     error
		validateFunc func(t *testing.T, next *countingFetcher, cache *fakeCache, obs *countingObserver)
	}{
		{
			name: "second fetch served from cache",
			validateFunc: func(t *testing.T, next *countingFetcher, cache *fakeCache, obs *countingObserver) {
				if next.calls != 1 {
					t.Errorf("upstream calls = %d, want 1", next.calls)
				}
				if obs.hits != 1 || obs.misses != 1 {
					t.Errorf("hits/misses = %d/%d, want 1/1", obs.hits, obs.misses)
				}
				if cache.ttl != time.Minute {
					t.Errorf("ttl = %v, want 1m", cache.ttl)
				}
			},
		},
		{
			name:    "redis failure falls through",
			readErr: errors.New("connection refused"),
			validateFunc: func(t *testing.T, next *countingFetcher, cache *fakeCache, obs *countingObserver) {
				if next.calls != 2 {
					t.Errorf("upstream calls = %d, want 2", next.calls)
				}
			},
		},
		{
			name:     "errors are not cached",
			fetchErr: &Error{Category: CategoryServer, Status: 500},
			validateFunc: func(t *testing.T, next *countingFetcher, cache *fakeCache, obs *countingObserver) {
				if len(cache.data) != 0 {
					t.Errorf("cache has %d entries, want 0", len(cache.data))
				}
				if next.calls != 2 {
					t.Errorf("upstream calls = %d, want 2", next.calls)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := &countingFetcher{body: []byte(receiptBody), err: tt.fetchErr}
			cache := &fakeCache{data: map[string]string{}, readErr: tt.readErr}
			obs := &countingObserver{}
			cached := NewCached(next, cache, time.Minute, obs)

			for i := 0; i < 2; i++ {
				body, err := cached.Fetch(context.Background(), "link")
				if tt.fetchErr != nil {
					if err == nil {
						t.Fatalf("expected error")
					}
					continue
				}
				if err != nil {
					t.Fatalf("Fetch: %v", err)
				}
				if string(body) != receiptBody {
					t.Errorf("body mismatch on call %d", i)
				}
			}
			tt.validateFunc(t, next, cache, obs)
		})
	}
}

func TestCacheKey(t *testing.T) {
	a, b := CacheKey("link-a"), CacheKey("link-b")
	if a == b {
		t.Error("distinct links share a key")
	}
	if !strings.HasPrefix(a, "receipt:link:") || a != CacheKey("link-a") {
		t.Errorf("unexpected key %q", a)
	}
}

func TestCachedRedis(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	client, err := NewRedisClient(ctx, addr, "", 0)
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	defer client.Close()

	link := "https://receipt.example/r/" + t.Name() + time.Now().Format(time.RFC3339Nano)
	defer client.Del(ctx, CacheKey(link))

	next := &countingFetcher{body: []byte(receiptBody)}
	cached := NewCached(next, client, time.Minute, nil)
	for i := 0; i < 2; i++ {
		body, err := cached.Fetch(ctx, link)
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		if string(body) != receiptBody {
			t.Errorf("body mismatch on call %d", i)
		}
	}
	if next.calls != 1 {
		t.Errorf("upstream calls = %d, want 1", next.calls)
	}

	ttl, err := client.TTL(ctx, CacheKey(link)).Result()
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("ttl = %v, want (0, 1m]", ttl)
	}
}
