package webhooks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	mpesawebhook "github.com/joseph3559/letrents-backend/internal/webhooks/mpesa"
	"github.com/joseph3559/letrents-backend/pkg/logger"
	"github.com/joseph3559/letrents-backend/pkg/metrics"
)

type stubMpesaService struct {
	validateResult mpesawebhook.CallbackResult
	confirmResult  mpesawebhook.CallbackResult
	lastRequest    *mpesawebhook.C2BRequest
}

func (s *stubMpesaService) Validate(_ context.Context, req *mpesawebhook.C2BRequest) mpesawebhook.CallbackResult {
	s.lastRequest = req
	return s.validateResult
}

func (s *stubMpesaService) Confirm(_ context.Context, req *mpesawebhook.C2BRequest) mpesawebhook.CallbackResult {
	s.lastRequest = req
	return s.confirmResult
}

func postMpesa(handler http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) mpesawebhook.CallbackResult {
	t.Helper()
	var result mpesawebhook.CallbackResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode callback result: %v: %s", err, rec.Body.String())
	}
	return result
}

func TestMpesaValidationAlwaysAnswers200(t *testing.T) {
	svc := &stubMpesaService{validateResult: mpesawebhook.Accepted()}
	handler := MpesaValidation(svc, logger.New(logger.Options{ServiceName: "test"}))

	rec := postMpesa(handler, "/api/v1/webhooks/mpesa/validation", `{"TransID":"TX100","BillRefNumber":"A3"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decodeResult(t, rec); got.ResultCode != mpesawebhook.ResultAccepted {
		t.Fatalf("expected result code %q, got %q", mpesawebhook.ResultAccepted, got.ResultCode)
	}
	if svc.lastRequest == nil || svc.lastRequest.TransID != "TX100" {
		t.Fatalf("service did not receive the decoded request: %+v", svc.lastRequest)
	}
}

func TestMpesaValidationMalformedBodyStillAnswers200(t *testing.T) {
	svc := &stubMpesaService{}
	handler := MpesaValidation(svc, logger.New(logger.Options{ServiceName: "test"}))

	rec := postMpesa(handler, "/api/v1/webhooks/mpesa/validation", `{not json`)
	if rec.Code != http.StatusOK {
		t.Fatalf("gateway callbacks must always get 200, got %d", rec.Code)
	}
	if got := decodeResult(t, rec); got.ResultCode != mpesawebhook.ResultInvalidAccount {
		t.Fatalf("expected result code %q, got %q", mpesawebhook.ResultInvalidAccount, got.ResultCode)
	}
	if svc.lastRequest != nil {
		t.Fatal("service must not see an undecodable request")
	}
}

func TestMpesaConfirmationReportsServiceResult(t *testing.T) {
	cases := []struct {
		name   string
		result mpesawebhook.CallbackResult
	}{
		{"accepted", mpesawebhook.Accepted()},
		{"invalid account", mpesawebhook.Rejected(mpesawebhook.ResultInvalidAccount, "unknown account")},
		{"other error", mpesawebhook.Rejected(mpesawebhook.ResultOtherError, "settlement failed")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubMpesaService{confirmResult: tc.result}
			handler := MpesaConfirmation(svc, metrics.NewWebhookMetrics(prometheus.NewRegistry()), logger.New(logger.Options{ServiceName: "test"}))

			rec := postMpesa(handler, "/api/v1/webhooks/mpesa/confirmation", `{"TransID":"TX200","TransAmount":"45000.00"}`)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			if got := decodeResult(t, rec); got.ResultCode != tc.result.ResultCode {
				t.Fatalf("expected result code %q, got %q", tc.result.ResultCode, got.ResultCode)
			}
		})
	}
}

func TestMpesaConfirmationToleratesUnknownFields(t *testing.T) {
	svc := &stubMpesaService{confirmResult: mpesawebhook.Accepted()}
	handler := MpesaConfirmation(svc, metrics.NewWebhookMetrics(prometheus.NewRegistry()), logger.New(logger.Options{ServiceName: "test"}))

	body := `{"TransID":"TX300","ThirdPartyTransID":"","OrgAccountBalance":"900000.00"}`
	rec := postMpesa(handler, "/api/v1/webhooks/mpesa/confirmation", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.lastRequest == nil || svc.lastRequest.TransID != "TX300" {
		t.Fatalf("expected decoded request to reach the service: %+v", svc.lastRequest)
	}
}
