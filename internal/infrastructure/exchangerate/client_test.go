package exchangerate

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mailledger/internal/domain/fx"
	"mailledger/internal/shared/apperr"
)

func newTestServer(t *testing.T, status int, body string, check func(*http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRate_QueryParameters(t *testing.T) {
	var got *http.Request
	srv := newTestServer(t, http.StatusOK, `{"info":{"rate":1.3456}}`, func(r *http.Request) { got = r })

	c := NewClient(WithBaseURL(srv.URL+"/"), WithAccessKey("secret"))
	rate, err := c.Rate(context.Background(), "2026-02-03", "USD", "SGD")
	if err != nil {
		t.Fatalf("Rate() error = %v", err)
	}
	if rate != 1.3456 {
		t.Errorf("rate = %v, want 1.3456", rate)
	}

	if got.URL.Path != "/convert" {
		t.Errorf("path = %q, want /convert", got.URL.Path)
	}
	q := got.URL.Query()
	want := map[string]string{"from": "USD", "to": "SGD", "amount": "1", "date": "2026-02-03", "access_key": "secret"}
	for k, v := range want {
		if q.Get(k) != v {
			t.Errorf("query %s = %q, want %q", k, q.Get(k), v)
		}
	}
	if got.Header.Get("Accept") != "application/json" {
		t.Errorf("Accept header = %q", got.Header.Get("Accept"))
	}
}

func TestRate_Responses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    float64
		wantErr bool
	}{
		{"info rate", http.StatusOK, `{"success":true,"info":{"rate":0.74},"result":0.74}`, 0.74, false},
		{"result only", http.StatusOK, `{"result":1.5}`, 1.5, false},
		{"info wins over result", http.StatusOK, `{"info":{"rate":2},"result":3}`, 2, false},
		{"no rate", http.StatusOK, `{"info":{}}`, 0, true},
		{"success false", http.StatusOK, `{"success":false,"error":{"code":101}}`, 0, true},
		{"bad json", http.StatusOK, `not json`, 0, true},
		{"http error", http.StatusServiceUnavailable, `down`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.status, tt.body, nil)
			rate, err := NewClient(WithBaseURL(srv.URL)).Rate(context.Background(), "2026-02-03", "USD", "SGD")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Rate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && math.Abs(rate-tt.want) > 1e-12 {
				t.Errorf("rate = %v, want %v", rate, tt.want)
			}
		})
	}
}

func TestRate_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithTimeout(50*time.Millisecond))
	if _, err := c.Rate(context.Background(), "2026-02-03", "USD", "SGD"); err == nil {
		t.Error("Rate() expected timeout error, got nil")
	}
}

func TestRate_OversizedBody(t *testing.T) {
	body := `{"result": 1.35}` + strings.Repeat(" ", maxBodyLen)
	srv := newTestServer(t, http.StatusOK, body, nil)

	c := NewClient(WithBaseURL(srv.URL))
	_, err := c.Rate(context.Background(), "2026-02-03", "USD", "SGD")
	if err == nil || !strings.Contains(err.Error(), "exceeds") {
		t.Errorf("Rate() error = %v, want size limit error", err)
	}
}

func TestName(t *testing.T) {
	if got := NewClient().Name(); got != DefaultName {
		t.Errorf("Name() = %q, want %q", got, DefaultName)
	}
	if got := NewClient(WithName("ecb")).Name(); got != "ecb" {
		t.Errorf("Name() = %q, want ecb", got)
	}
}

type memRates struct {
	rows map[fx.Key]fx.Rate
}

func (m *memRates) Get(ctx context.Context, key fx.Key) (*fx.Rate, error) {
	r, ok := m.rows[key]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *memRates) Upsert(ctx context.Context, rate fx.Rate) error {
	m.rows[rate.Key] = rate
	return nil
}

func TestClient_WithCache(t *testing.T) {
	calls := 0
	srv := newTestServer(t, http.StatusOK, `{"info":{"rate":1.25}}`, func(*http.Request) { calls++ })

	repo := &memRates{rows: map[fx.Key]fx.Rate{}}
	cache := fx.NewCache(repo, NewClient(WithBaseURL(srv.URL)))
	key := fx.NewKey(time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC), "usd", "sgd", cache.ProviderName())

	for i := 0; i < 2; i++ {
		rate, err := cache.Resolve(context.Background(), key)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if rate.String() != "1.25" {
			t.Errorf("rate = %s, want 1.25", rate)
		}
	}
	if calls != 1 {
		t.Errorf("provider calls = %d, want 1 (second resolve is a cache hit)", calls)
	}
}

func TestClient_UpstreamFailureKind(t *testing.T) {
	srv := newTestServer(t, http.StatusBadGateway, `bad gateway`, nil)

	cache := fx.NewCache(&memRates{rows: map[fx.Key]fx.Rate{}}, NewClient(WithBaseURL(srv.URL)))
	key := fx.NewKey(time.Now(), "EUR", "SGD", cache.ProviderName())

	_, err := cache.FetchAndCache(context.Background(), key)
	if !errors.Is(err, apperr.ErrUpstreamUnavailable) {
		t.Errorf("error = %v, want UpstreamUnavailable", err)
	}
}
