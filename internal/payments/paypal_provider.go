package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// PayPalLogger defines the logging contract for PayPal provider operations.
type PayPalLogger func(ctx context.Context, event string, fields map[string]any)

const (
	// tokenExpiryMargin invalidates cached access tokens this long before the
	// provider-reported expiry to avoid using a token that dies mid-request.
	tokenExpiryMargin = 60 * time.Second

	defaultHTTPTimeout  = 15 * time.Second
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 250 * time.Millisecond
)

// PayPalProviderConfig configures the PayPalProvider.
type PayPalProviderConfig struct {
	// BaseURL points at the REST API root, e.g. https://api-m.sandbox.paypal.com.
	BaseURL   string
	ClientID  string
	Secret    string
	WebhookID string

	HTTPClient   *http.Client
	Clock        func() time.Time
	Logger       PayPalLogger
	MaxAttempts  int
	RetryBackoff time.Duration
}

// PayPalProvider implements the Provider interface against the PayPal Orders v2 API.
type PayPalProvider struct {
	baseURL   string
	clientID  string
	secret    string
	webhookID string

	httpClient   *http.Client
	clock        func() time.Time
	logger       PayPalLogger
	maxAttempts  int
	retryBackoff time.Duration
	sleep        func(ctx context.Context, d time.Duration) error

	tokenGroup singleflight.Group
	tokenMu    sync.Mutex
	token      string
	tokenExp   time.Time
}

// NewPayPalProvider constructs a PayPal Provider using the given configuration.
func NewPayPalProvider(cfg PayPalProviderConfig) (*PayPalProvider, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("paypal: base url is required")
	}
	clientID := strings.TrimSpace(cfg.ClientID)
	secret := strings.TrimSpace(cfg.Secret)
	if clientID == "" || secret == "" {
		return nil, errors.New("paypal: client credentials are required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}

	return &PayPalProvider{
		baseURL:      baseURL,
		clientID:     clientID,
		secret:       secret,
		webhookID:    strings.TrimSpace(cfg.WebhookID),
		httpClient:   httpClient,
		clock:        func() time.Time { return clock().UTC() },
		logger:       logger,
		maxAttempts:  maxAttempts,
		retryBackoff: backoff,
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		},
	}, nil
}

// Name returns the provider identifier stored on payment records.
func (p *PayPalProvider) Name() string { return "paypal" }

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalLink struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method"`
}

type paypalCapture struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Amount paypalAmount `json:"amount"`
}

type paypalPurchaseUnit struct {
	ReferenceID string       `json:"reference_id,omitempty"`
	Amount      paypalAmount `json:"amount"`
	Description string       `json:"description,omitempty"`
	Payments    *struct {
		Captures []paypalCapture `json:"captures"`
	} `json:"payments,omitempty"`
}

type paypalOrder struct {
	ID            string               `json:"id"`
	Status        string               `json:"status"`
	PurchaseUnits []paypalPurchaseUnit `json:"purchase_units"`
	Links         []paypalLink         `json:"links"`
}

// Authorize creates a PayPal order in CAPTURE intent and returns the approval link.
func (p *PayPalProvider) Authorize(ctx context.Context, req AuthorizationRequest) (Authorization, error) {
	if p == nil {
		return Authorization{}, errors.New("paypal: provider is nil")
	}
	if req.Amount <= 0 {
		return Authorization{}, fmt.Errorf("%w: non-positive amount", ErrAuthorizationDeclined)
	}

	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{
			{
				"reference_id": strings.TrimSpace(req.ReferenceID),
				"description":  strings.TrimSpace(req.Description),
				"amount": paypalAmount{
					CurrencyCode: strings.ToUpper(strings.TrimSpace(req.Currency)),
					Value:        FormatAmount(req.Amount),
				},
			},
		},
	}
	appCtx := map[string]any{}
	if req.ReturnURL != "" {
		appCtx["return_url"] = req.ReturnURL
	}
	if req.CancelURL != "" {
		appCtx["cancel_url"] = req.CancelURL
	}
	if len(appCtx) > 0 {
		payload["application_context"] = appCtx
	}

	headers := map[string]string{}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		headers["PayPal-Request-Id"] = key
	}

	var order paypalOrder
	if err := p.doWithRetry(ctx, http.MethodPost, "/v2/checkout/orders", payload, headers, &order); err != nil {
		return Authorization{}, err
	}

	approval := ""
	for _, link := range order.Links {
		if strings.EqualFold(link.Rel, "approve") {
			approval = link.Href
			break
		}
	}

	p.logger(ctx, "payments.paypal.order.created", map[string]any{
		"externalOrderId": order.ID,
		"status":          order.Status,
	})

	status := paypalOrderStatus(order.Status)
	if status == StatusFailed {
		return Authorization{}, fmt.Errorf("%w: provider status %s", ErrAuthorizationDeclined, order.Status)
	}

	return Authorization{
		ExternalOrderID: order.ID,
		ApprovalURL:     approval,
		Status:          status,
		RawStatus:       order.Status,
	}, nil
}

// Capture settles the authorized funds. A capture is never blindly retried:
// when the outcome is ambiguous the order is re-queried to determine whether
// funds actually moved.
func (p *PayPalProvider) Capture(ctx context.Context, externalOrderID string) (CaptureResult, error) {
	if p == nil {
		return CaptureResult{}, errors.New("paypal: provider is nil")
	}
	externalOrderID = strings.TrimSpace(externalOrderID)
	if externalOrderID == "" {
		return CaptureResult{}, fmt.Errorf("%w: empty external order id", ErrOrderNotFound)
	}

	path := fmt.Sprintf("/v2/checkout/orders/%s/capture", url.PathEscape(externalOrderID))

	var order paypalOrder
	err := p.doOnce(ctx, http.MethodPost, path, map[string]any{}, nil, &order)
	if err != nil {
		if isTransient(err) {
			p.logger(ctx, "payments.paypal.capture.ambiguous", map[string]any{
				"externalOrderId": externalOrderID,
				"error":           err.Error(),
			})
			details, lookupErr := p.LookupOrder(ctx, externalOrderID)
			if lookupErr != nil {
				return CaptureResult{}, fmt.Errorf("%w: capture outcome unresolved", ErrUnavailable)
			}
			if details.Status == StatusCompleted {
				return CaptureResult{
					CaptureID:       details.CaptureID,
					ExternalOrderID: externalOrderID,
					Status:          StatusCompleted,
					RawStatus:       details.RawStatus,
				}, nil
			}
			return CaptureResult{}, fmt.Errorf("%w: capture outcome unresolved", ErrUnavailable)
		}
		return CaptureResult{}, err
	}

	result := CaptureResult{
		ExternalOrderID: externalOrderID,
		Status:          paypalOrderStatus(order.Status),
		RawStatus:       order.Status,
	}
	for _, unit := range order.PurchaseUnits {
		if unit.Payments == nil || len(unit.Payments.Captures) == 0 {
			continue
		}
		capture := unit.Payments.Captures[0]
		result.CaptureID = capture.ID
		result.Currency = capture.Amount.CurrencyCode
		if amount, err := ParseAmount(capture.Amount.Value); err == nil {
			result.Amount = amount
		}
		if strings.EqualFold(capture.Status, "DECLINED") || strings.EqualFold(capture.Status, "FAILED") {
			result.Status = StatusFailed
		}
		break
	}

	p.logger(ctx, "payments.paypal.order.captured", map[string]any{
		"externalOrderId": externalOrderID,
		"captureId":       result.CaptureID,
		"status":          order.Status,
	})

	if result.Status == StatusFailed {
		return result, fmt.Errorf("%w: provider status %s", ErrCaptureDeclined, order.Status)
	}
	return result, nil
}

// LookupOrder fetches the provider's current view of an order.
func (p *PayPalProvider) LookupOrder(ctx context.Context, externalOrderID string) (OrderDetails, error) {
	if p == nil {
		return OrderDetails{}, errors.New("paypal: provider is nil")
	}
	externalOrderID = strings.TrimSpace(externalOrderID)
	if externalOrderID == "" {
		return OrderDetails{}, fmt.Errorf("%w: empty external order id", ErrOrderNotFound)
	}

	path := "/v2/checkout/orders/" + url.PathEscape(externalOrderID)
	var order paypalOrder
	if err := p.doWithRetry(ctx, http.MethodGet, path, nil, nil, &order); err != nil {
		return OrderDetails{}, err
	}

	details := OrderDetails{
		ExternalOrderID: order.ID,
		Status:          paypalOrderStatus(order.Status),
		RawStatus:       order.Status,
	}
	for _, unit := range order.PurchaseUnits {
		if unit.Payments != nil && len(unit.Payments.Captures) > 0 {
			details.CaptureID = unit.Payments.Captures[0].ID
			break
		}
	}
	return details, nil
}

type paypalWebhookEvent struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Summary   string `json:"summary"`
	Resource  struct {
		ID                string `json:"id"`
		Status            string `json:"status"`
		SupplementaryData *struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

// VerifyWebhook validates the transmission signature through the provider's
// verification endpoint before the payload is trusted.
func (p *PayPalProvider) VerifyWebhook(ctx context.Context, req WebhookRequest) (WebhookEvent, error) {
	if p == nil {
		return WebhookEvent{}, errors.New("paypal: provider is nil")
	}
	if len(req.Body) == 0 {
		return WebhookEvent{}, fmt.Errorf("%w: empty body", ErrSignatureInvalid)
	}

	verification := map[string]any{
		"auth_algo":         req.Headers.Get("Paypal-Auth-Algo"),
		"cert_url":          req.Headers.Get("Paypal-Cert-Url"),
		"transmission_id":   req.Headers.Get("Paypal-Transmission-Id"),
		"transmission_sig":  req.Headers.Get("Paypal-Transmission-Sig"),
		"transmission_time": req.Headers.Get("Paypal-Transmission-Time"),
		"webhook_id":        p.webhookID,
		"webhook_event":     json.RawMessage(req.Body),
	}

	var result struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := p.doWithRetry(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", verification, nil, &result); err != nil {
		return WebhookEvent{}, err
	}
	if !strings.EqualFold(result.VerificationStatus, "SUCCESS") {
		return WebhookEvent{}, fmt.Errorf("%w: verification status %s", ErrSignatureInvalid, result.VerificationStatus)
	}

	var event paypalWebhookEvent
	if err := json.Unmarshal(req.Body, &event); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: malformed event payload", ErrSignatureInvalid)
	}

	parsed := WebhookEvent{
		ID:        event.ID,
		EventType: strings.ToUpper(strings.TrimSpace(event.EventType)),
		Summary:   event.Summary,
	}
	switch {
	case strings.HasPrefix(parsed.EventType, "PAYMENT.CAPTURE."):
		parsed.CaptureID = event.Resource.ID
		if event.Resource.SupplementaryData != nil {
			parsed.ExternalOrderID = event.Resource.SupplementaryData.RelatedIDs.OrderID
		}
	case strings.HasPrefix(parsed.EventType, "CHECKOUT.ORDER."):
		parsed.ExternalOrderID = event.Resource.ID
	}

	return parsed, nil
}

func (p *PayPalProvider) accessToken(ctx context.Context) (string, error) {
	if token, ok := p.cachedToken(); ok {
		return token, nil
	}

	value, err, _ := p.tokenGroup.Do("oauth", func() (any, error) {
		if token, ok := p.cachedToken(); ok {
			return token, nil
		}
		return p.fetchToken(ctx)
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

func (p *PayPalProvider) cachedToken() (string, bool) {
	p.tokenMu.Lock()
	defer p.tokenMu.Unlock()
	if p.token == "" {
		return "", false
	}
	if !p.clock().Before(p.tokenExp.Add(-tokenExpiryMargin)) {
		return "", false
	}
	return p.token, true
}

func (p *PayPalProvider) storeToken(token string, expiresIn int64) {
	p.tokenMu.Lock()
	defer p.tokenMu.Unlock()
	p.token = token
	p.tokenExp = p.clock().Add(time.Duration(expiresIn) * time.Second)
}

func (p *PayPalProvider) invalidateToken() {
	p.tokenMu.Lock()
	defer p.tokenMu.Unlock()
	p.token = ""
	p.tokenExp = time.Time{}
}

func (p *PayPalProvider) fetchToken(ctx context.Context) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := p.sleep(ctx, p.backoffFor(attempt)); err != nil {
				return "", err
			}
		}

		form := url.Values{"grant_type": []string{"client_credentials"}}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
		if err != nil {
			return "", fmt.Errorf("paypal: build token request: %w", err)
		}
		httpReq.SetBasicAuth(p.clientID, p.secret)
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := p.httpClient.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrUnavailable, err)
			continue
		}
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("%w: %v", ErrUnavailable, readErr)
			continue
		}
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("%w: token endpoint status %d", ErrUnavailable, resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("paypal: token endpoint status %d", resp.StatusCode)
		}

		var payload struct {
			AccessToken string `json:"access_token"`
			ExpiresIn   int64  `json:"expires_in"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return "", fmt.Errorf("paypal: decode token response: %w", err)
		}
		if payload.AccessToken == "" {
			return "", errors.New("paypal: token response missing access_token")
		}

		p.storeToken(payload.AccessToken, payload.ExpiresIn)
		p.logger(ctx, "payments.paypal.token.refreshed", map[string]any{
			"expiresIn": payload.ExpiresIn,
		})
		return payload.AccessToken, nil
	}
	if lastErr == nil {
		lastErr = ErrUnavailable
	}
	return "", lastErr
}

// doWithRetry performs a request with bounded retries on transient failures.
// Only safe to use for idempotent calls (reads, verification, and creates
// guarded by PayPal-Request-Id).
func (p *PayPalProvider) doWithRetry(ctx context.Context, method, path string, payload any, headers map[string]string, out any) error {
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := p.sleep(ctx, p.backoffFor(attempt)); err != nil {
				return err
			}
		}
		err := p.doOnce(ctx, method, path, payload, headers, out)
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (p *PayPalProvider) doOnce(ctx context.Context, method, path string, payload any, headers map[string]string, out any) error {
	token, err := p.accessToken(ctx)
	if err != nil {
		return err
	}

	status, body, err := p.roundTrip(ctx, method, path, payload, headers, token)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		// Token revoked out of band; refresh once and retry the call.
		p.invalidateToken()
		token, err = p.accessToken(ctx)
		if err != nil {
			return err
		}
		status, body, err = p.roundTrip(ctx, method, path, payload, headers, token)
		if err != nil {
			return err
		}
	}

	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: status 404", ErrOrderNotFound)
	case status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrCaptureDeclined, paypalIssueCode(body))
	case status >= http.StatusInternalServerError || status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ErrUnavailable, status)
	case status >= http.StatusBadRequest:
		return fmt.Errorf("paypal: request failed with status %d: %s", status, paypalIssueCode(body))
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("paypal: decode response: %w", err)
		}
	}
	return nil
}

func (p *PayPalProvider) roundTrip(ctx context.Context, method, path string, payload any, headers map[string]string, token string) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("paypal: encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("paypal: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		if value != "" {
			httpReq.Header.Set(key, value)
		}
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return resp.StatusCode, body, nil
}

func (p *PayPalProvider) backoffFor(attempt int) time.Duration {
	d := p.retryBackoff
	for i := 2; i < attempt; i++ {
		d *= 2
	}
	return d
}

func isTransient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

func paypalOrderStatus(raw string) Status {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "COMPLETED":
		return StatusCompleted
	case "VOIDED", "DECLINED", "FAILED":
		return StatusFailed
	default:
		return StatusPending
	}
}

func paypalIssueCode(body []byte) string {
	var payload struct {
		Name    string `json:"name"`
		Message string `json:"message"`
		Details []struct {
			Issue string `json:"issue"`
		} `json:"details"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "unparsable error body"
	}
	if len(payload.Details) > 0 && payload.Details[0].Issue != "" {
		return payload.Details[0].Issue
	}
	if payload.Name != "" {
		return payload.Name
	}
	return payload.Message
}

// FormatAmount renders minor currency units as the decimal string expected by
// the provider, e.g. 2500 -> "25.00".
func FormatAmount(minor int64) string {
	negative := minor < 0
	if negative {
		minor = -minor
	}
	value := fmt.Sprintf("%d.%02d", minor/100, minor%100)
	if negative {
		return "-" + value
	}
	return value
}

// ParseAmount converts the provider's decimal amount string back to minor units.
func ParseAmount(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, errors.New("paypal: empty amount")
	}
	parts := strings.SplitN(value, ".", 2)
	units, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("paypal: parse amount %q: %w", value, err)
	}
	var cents int64
	if len(parts) == 2 {
		frac := parts[1]
		if len(frac) > 2 {
			frac = frac[:2]
		}
		for len(frac) < 2 {
			frac += "0"
		}
		cents, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("paypal: parse amount %q: %w", value, err)
		}
	}
	if units < 0 || strings.HasPrefix(parts[0], "-") {
		return units*100 - cents, nil
	}
	return units*100 + cents, nil
}
