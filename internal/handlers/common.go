package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	domain "github.com/oakmarket/api/internal/domain"
)

const defaultMaxBodySize = 64 * 1024

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultMaxBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func formatOptionalTime(ts *time.Time) string {
	if ts == nil || ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}

type addressPayload struct {
	Recipient  string `json:"recipient"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

func buildAddressPayload(addr *domain.Address) *addressPayload {
	if addr == nil {
		return nil
	}
	payload := &addressPayload{
		Recipient:  addr.Recipient,
		Line1:      addr.Line1,
		City:       addr.City,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
	}
	if addr.Line2 != nil {
		payload.Line2 = *addr.Line2
	}
	if addr.State != nil {
		payload.State = *addr.State
	}
	if addr.Phone != nil {
		payload.Phone = *addr.Phone
	}
	return payload
}

func parseAddressPayload(payload *addressPayload) *domain.Address {
	if payload == nil {
		return nil
	}
	addr := &domain.Address{
		Recipient:  strings.TrimSpace(payload.Recipient),
		Line1:      strings.TrimSpace(payload.Line1),
		City:       strings.TrimSpace(payload.City),
		PostalCode: strings.TrimSpace(payload.PostalCode),
		Country:    strings.ToUpper(strings.TrimSpace(payload.Country)),
	}
	if v := strings.TrimSpace(payload.Line2); v != "" {
		addr.Line2 = &v
	}
	if v := strings.TrimSpace(payload.State); v != "" {
		addr.State = &v
	}
	if v := strings.TrimSpace(payload.Phone); v != "" {
		addr.Phone = &v
	}
	return addr
}
