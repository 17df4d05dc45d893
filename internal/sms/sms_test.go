package sms

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/petalbox/storefront-auth/internal/logging"
	"github.com/petalbox/storefront-auth/internal/otp"
)

const testPhone = "+971501111111"

func providerConfig(baseURL string) Config {
	return Config{
		AccountSID:       "AC123",
		AuthToken:        "secret",
		VerifyServiceSID: "VA456",
		BaseURL:          baseURL,
		Timeout:          time.Second,
	}
}

func TestNewSelectsVariant(t *testing.T) {
	store := otp.NewMemoryStore(nil)

	gw, err := New(providerConfig("https://verify.example.test"), store, logging.Discard())
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if gw.Mode() != ModeProvider {
		t.Fatalf("expected provider mode, got %s", gw.Mode())
	}

	dry := providerConfig("https://verify.example.test")
	dry.DryRun = true
	gw, err = New(dry, store, logging.Discard())
	if err != nil {
		t.Fatalf("new dry run: %v", err)
	}
	if gw.Mode() != ModeLocal {
		t.Fatalf("expected dry run to force local mode, got %s", gw.Mode())
	}

	partial := providerConfig("")
	partial.VerifyServiceSID = ""
	gw, err = New(partial, store, logging.Discard())
	if err != nil {
		t.Fatalf("new partial: %v", err)
	}
	if gw.Mode() != ModeLocal {
		t.Fatalf("expected incomplete credentials to fall back to local, got %s", gw.Mode())
	}

	if _, err := New(Config{}, nil, logging.Discard()); err == nil {
		t.Fatalf("expected local gateway without a store to fail")
	}
}

func TestLocalSendAndCheck(t *testing.T) {
	gw := NewLocal(otp.NewMemoryStore(nil), time.Minute, true, logging.Discard())
	ctx := context.Background()

	out, err := gw.Send(ctx, testPhone)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if out.Mode != ModeLocal {
		t.Fatalf("expected local outcome, got %s", out.Mode)
	}
	if !regexp.MustCompile(`^[0-9]{6}$`).MatchString(out.DebugCode) {
		t.Fatalf("expected 6 digit debug code, got %q", out.DebugCode)
	}

	ok, err := gw.Check(ctx, testPhone, "abcdef")
	if err != nil || ok {
		t.Fatalf("expected wrong code to be rejected, got %v %v", ok, err)
	}
	ok, err = gw.Check(ctx, testPhone, out.DebugCode)
	if err != nil || !ok {
		t.Fatalf("expected debug code to verify, got %v %v", ok, err)
	}
	ok, err = gw.Check(ctx, testPhone, out.DebugCode)
	if err != nil || ok {
		t.Fatalf("expected replay to be rejected, got %v %v", ok, err)
	}
}

func TestLocalHidesCodesUnlessExposed(t *testing.T) {
	gw := NewLocal(otp.NewMemoryStore(nil), time.Minute, false, logging.Discard())
	out, err := gw.Send(context.Background(), testPhone)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if out.DebugCode != "" {
		t.Fatalf("expected no debug code, got %q", out.DebugCode)
	}
}

func TestLocalSecondSendSupersedesFirst(t *testing.T) {
	gw := NewLocal(otp.NewMemoryStore(nil), time.Minute, true, logging.Discard())
	ctx := context.Background()

	first, err := gw.Send(ctx, testPhone)
	if err != nil {
		t.Fatalf("first send: %v", err)
	}
	second, err := gw.Send(ctx, testPhone)
	if err != nil {
		t.Fatalf("second send: %v", err)
	}
	if first.DebugCode != second.DebugCode {
		if ok, _ := gw.Check(ctx, testPhone, first.DebugCode); ok {
			t.Fatalf("expected first code to be superseded")
		}
	}
	if ok, _ := gw.Check(ctx, testPhone, second.DebugCode); !ok {
		t.Fatalf("expected latest code to verify")
	}
}

func TestGenerateCodeKeepsLeadingZeros(t *testing.T) {
	code, err := generateCode(bytes.NewReader(make([]byte, 16)))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if code != "000000" {
		t.Fatalf("expected zero padded code, got %q", code)
	}
}

func TestProviderSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/Services/VA456/Verifications" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "secret" {
			t.Errorf("expected basic auth credentials, got %q %q", user, pass)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("To") != testPhone || r.PostForm.Get("Channel") != "sms" {
			t.Errorf("unexpected form %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"status":"pending"}`))
	}))
	defer srv.Close()

	p, err := NewProvider(providerConfig(srv.URL))
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	out, err := p.Send(context.Background(), testPhone)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if out.Mode != ModeProvider || out.DebugCode != "" {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestProviderCheck(t *testing.T) {
	cases := []struct {
		name        string
		status      int
		body        string
		want        bool
		unavailable bool
	}{
		{name: "approved", status: http.StatusOK, body: `{"status":"approved"}`, want: true},
		{name: "pending", status: http.StatusOK, body: `{"status":"pending"}`, want: false},
		{name: "no pending verification", status: http.StatusNotFound, body: `{"code":20404}`, want: false},
		{name: "throttled", status: http.StatusTooManyRequests, unavailable: true},
		{name: "outage", status: http.StatusServiceUnavailable, unavailable: true},
		{name: "bad credentials", status: http.StatusUnauthorized, unavailable: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v2/Services/VA456/VerificationCheck" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				if err := r.ParseForm(); err != nil {
					t.Errorf("parse form: %v", err)
				}
				if r.PostForm.Get("Code") != "123456" {
					t.Errorf("expected code to be forwarded, got %v", r.PostForm)
				}
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			p, err := NewProvider(providerConfig(srv.URL))
			if err != nil {
				t.Fatalf("new provider: %v", err)
			}
			ok, err := p.Check(context.Background(), testPhone, "123456")
			if tc.unavailable {
				if !errors.Is(err, ErrProviderUnavailable) {
					t.Fatalf("expected ErrProviderUnavailable, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("check: %v", err)
			}
			if ok != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, ok)
			}
		})
	}
}

func TestProviderSendFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := NewProvider(providerConfig(srv.URL))
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if _, err := p.Send(context.Background(), testPhone); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestProviderHonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	p, err := NewProvider(providerConfig(srv.URL))
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = p.Send(ctx, testPhone)
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline to be surfaced, got %v", err)
	}
}

func TestNewProviderRejectsBadURL(t *testing.T) {
	if _, err := NewProvider(providerConfig("not a url")); err == nil {
		t.Fatalf("expected invalid base url to be rejected")
	}
}
