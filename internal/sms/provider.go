package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultProviderBaseURL = "https://verify.twilio.com"
	defaultProviderTimeout = 8 * time.Second
	statusApproved         = "approved"
)

// ProviderError carries the failed operation and upstream status. It matches
// ErrProviderUnavailable with errors.Is.
type ProviderError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode > 0:
		return fmt.Sprintf("%s: status=%d: %v", e.Op, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: status=%d", e.Op, e.StatusCode)
	}
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool { return target == ErrProviderUnavailable }

// Provider talks to the Twilio Verify API. Code generation, delivery and
// expiry all happen on the provider side.
type Provider struct {
	baseURL    string
	accountSID string
	authToken  string
	serviceSID string
	httpClient *http.Client
}

// NewProvider validates the credentials and base URL.
func NewProvider(cfg Config) (*Provider, error) {
	if !cfg.ProviderConfigured() {
		return nil, errors.New("sms provider credentials are incomplete")
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultProviderBaseURL
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse sms provider url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid sms provider url: %s", base)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	return &Provider{
		baseURL:    strings.TrimRight(base, "/"),
		accountSID: strings.TrimSpace(cfg.AccountSID),
		authToken:  strings.TrimSpace(cfg.AuthToken),
		serviceSID: strings.TrimSpace(cfg.VerifyServiceSID),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (p *Provider) Mode() Mode { return ModeProvider }

// Send starts an SMS verification for phone.
func (p *Provider) Send(ctx context.Context, phone string) (Outcome, error) {
	form := url.Values{"To": {phone}, "Channel": {"sms"}}
	status, _, err := p.post(ctx, "start verification", "Verifications", form)
	if err != nil {
		return Outcome{}, err
	}
	if status < 200 || status > 299 {
		return Outcome{}, &ProviderError{Op: "start verification", StatusCode: status}
	}
	return Outcome{Mode: ModeProvider, Message: "OTP sent"}, nil
}

// Check asks the provider whether code is the pending code for phone. A
// missing verification is a plain rejection, not an outage.
func (p *Provider) Check(ctx context.Context, phone, code string) (bool, error) {
	form := url.Values{"To": {phone}, "Code": {code}}
	status, body, err := p.post(ctx, "check verification", "VerificationCheck", form)
	if err != nil {
		return false, err
	}
	switch {
	case status == http.StatusNotFound, status == http.StatusBadRequest:
		return false, nil
	case status < 200 || status > 299:
		return false, &ProviderError{Op: "check verification", StatusCode: status}
	}

	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, &ProviderError{Op: "decode verification check", StatusCode: status, Err: err}
	}
	return resp.Status == statusApproved, nil
}

func (p *Provider) post(ctx context.Context, op, resource string, form url.Values) (int, []byte, error) {
	endpoint := fmt.Sprintf("%s/v2/Services/%s/%s", p.baseURL, url.PathEscape(p.serviceSID), resource)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, &ProviderError{Op: op, Err: err}
	}
	req.SetBasicAuth(p.accountSID, p.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, nil, &ProviderError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, &ProviderError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	return resp.StatusCode, body, nil
}
