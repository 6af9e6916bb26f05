package mpesawebhook

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph3559/letrents-backend/internal/payments"
	"github.com/joseph3559/letrents-backend/pkg/enums"
	pkgerrors "github.com/joseph3559/letrents-backend/pkg/errors"
)

// C2BRequest is the bank mobile-money callback body, shared by the
// validation and confirmation endpoints. TransAmount arrives in major
// currency units as a decimal string.
type C2BRequest struct {
	TransactionType   string `json:"TransactionType"`
	TransID           string `json:"TransID"`
	TransTime         string `json:"TransTime"`
	TransAmount       string `json:"TransAmount"`
	BusinessShortCode string `json:"BusinessShortCode"`
	BillRefNumber     string `json:"BillRefNumber"`
	MSISDN            string `json:"MSISDN"`
	FirstName         string `json:"FirstName"`
	LastName          string `json:"LastName"`
}

// CallbackResult is the response object the gateway acts on. HTTP status is
// always 200; redelivery and rejection ride on the result code alone.
type CallbackResult struct {
	ResultCode string `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// Gateway result codes.
const (
	ResultAccepted       = "0"
	ResultInvalidAccount = "C2B00012"
	ResultOtherError     = "C2B00016"
)

// Accepted is the success envelope both callbacks answer with.
func Accepted() CallbackResult {
	return CallbackResult{ResultCode: ResultAccepted, ResultDesc: "Accepted"}
}

// Rejected builds a failure envelope with the given gateway result code.
func Rejected(code, desc string) CallbackResult {
	return CallbackResult{ResultCode: code, ResultDesc: desc}
}

// Normalize converts the callback into the canonical payment event. The
// account reference the payer typed (BillRefNumber) is the only correlation
// data this gateway carries: an invoice id settles directly, a
// "tenant-id/unit" pair falls back to heuristic matching, anything else
// parks the payment.
func Normalize(req *C2BRequest, receivedAt time.Time) (payments.PaymentEvent, error) {
	if req == nil {
		return payments.PaymentEvent{}, pkgerrors.New(pkgerrors.CodeValidation, "callback body is required")
	}
	transID := strings.TrimSpace(req.TransID)
	if transID == "" {
		return payments.PaymentEvent{}, pkgerrors.New(pkgerrors.CodeValidation, "TransID missing")
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.TransAmount))
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		return payments.PaymentEvent{}, pkgerrors.New(pkgerrors.CodeValidation, "TransAmount invalid")
	}

	channel := enums.PaymentChannelMobileMoney
	return payments.PaymentEvent{
		Gateway:        enums.GatewayMpesa,
		TransactionRef: transID,
		PaymentRef:     transID,
		Amount:         amount,
		Currency:       "KES",
		PayerPhone:     strings.TrimSpace(req.MSISDN),
		Channel:        channel,
		ChannelLabel:   payments.ChannelLabel(channel, "M-Pesa", ""),
		Provenance:     enums.ProvenanceWebhook,
		Metadata:       parseBillRef(req.BillRefNumber),
		ReceivedAt:     receivedAt,
	}, nil
}

func parseBillRef(billRef string) payments.Metadata {
	ref := strings.TrimSpace(billRef)
	if ref == "" {
		return payments.EmptyMetadata{}
	}

	if id, err := uuid.Parse(ref); err == nil {
		return payments.ExplicitInvoiceIDs{InvoiceIDs: []uuid.UUID{id}}
	}

	if before, after, found := strings.Cut(ref, "/"); found {
		if tenantID, err := uuid.Parse(strings.TrimSpace(before)); err == nil {
			if unitNumber := strings.TrimSpace(after); unitNumber != "" {
				return payments.TenantUnitHint{TenantID: tenantID, UnitNumber: unitNumber}
			}
		}
	}

	return payments.EmptyMetadata{}
}
