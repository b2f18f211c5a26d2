package pricing

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeNoData
	outcomeBadRequest
	outcomeAuth
	outcomeRateLimited
	outcomeServerError
	outcomeEdgeBlocked
	outcomeQuota
	outcomeTransport
	outcomeUnrecognized
)

var outcomeNames = map[outcome]string{
	outcomeSuccess:      "success",
	outcomeNoData:       "no_data",
	outcomeBadRequest:   "bad_request",
	outcomeAuth:         "auth_failure",
	outcomeRateLimited:  "rate_limited",
	outcomeServerError:  "server_error",
	outcomeEdgeBlocked:  "edge_blocked",
	outcomeQuota:        "quota_exhausted",
	outcomeTransport:    "transport_error",
	outcomeUnrecognized: "unrecognized",
}

func (o outcome) String() string { return outcomeNames[o] }

// edgeBlockCode is Cloudflare's "access denied" code, surfaced either as a
// status or inside a plain text body.
const edgeBlockCode = 1020

var (
	authErrorCodes  = map[int]bool{10002: true, 10010: true, 10011: true}
	quotaErrorCodes = map[int]bool{10005: true, 10006: true}
)

type historyResponse struct {
	ID         string `json:"id"`
	MarketData *struct {
		CurrentPrice map[string]decimal.Decimal `json:"current_price"`
	} `json:"market_data"`
}

type errorResponse struct {
	Status *struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
	Error string `json:"error"`
}

// classify maps a response to an outcome and, on success, the price in
// currency.
func classify(status int, body []byte, currency string) (outcome, decimal.Decimal) {
	var apiErr errorResponse
	_ = json.Unmarshal(body, &apiErr)

	code := 0
	if apiErr.Status != nil {
		code = apiErr.Status.ErrorCode
	}

	switch {
	case status == edgeBlockCode || code == edgeBlockCode || isEdgeBlockBody(body):
		return outcomeEdgeBlocked, decimal.Zero
	case authErrorCodes[code]:
		return outcomeAuth, decimal.Zero
	case quotaErrorCodes[code]:
		return outcomeQuota, decimal.Zero
	}

	switch status {
	case http.StatusOK:
		var hr historyResponse
		if err := json.Unmarshal(body, &hr); err != nil {
			return outcomeUnrecognized, decimal.Zero
		}
		if hr.MarketData == nil {
			return outcomeNoData, decimal.Zero
		}
		price, ok := hr.MarketData.CurrentPrice[strings.ToLower(currency)]
		if !ok {
			return outcomeNoData, decimal.Zero
		}
		return outcomeSuccess, price
	case http.StatusBadRequest:
		return outcomeBadRequest, decimal.Zero
	case http.StatusUnauthorized, http.StatusForbidden:
		return outcomeAuth, decimal.Zero
	case http.StatusTooManyRequests:
		return outcomeRateLimited, decimal.Zero
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return outcomeServerError, decimal.Zero
	default:
		return outcomeUnrecognized, decimal.Zero
	}
}

func isEdgeBlockBody(body []byte) bool {
	b := bytes.ToLower(body)
	return bytes.Contains(b, []byte("error code: 1020")) || bytes.Contains(b, []byte("error code 1020"))
}
