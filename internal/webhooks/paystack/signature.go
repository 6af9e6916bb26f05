package paystackwebhook

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"

	pkgerrors "github.com/joseph3559/letrents-backend/pkg/errors"
)

// SignatureHeader carries the gateway's HMAC-SHA512 hex digest of the body.
const SignatureHeader = "X-Paystack-Signature"

// VerifySignature checks the HMAC-SHA512 hex signature over the exact raw
// body bytes. The comparison is constant-time and failures carry no detail
// about what exists server-side.
func VerifySignature(secret string, body []byte, signature string) error {
	if secret == "" {
		return pkgerrors.New(pkgerrors.CodeInvalidSignature, "webhook secret not configured")
	}
	if signature == "" {
		return pkgerrors.New(pkgerrors.CodeInvalidSignature, "signature header missing")
	}

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return pkgerrors.New(pkgerrors.CodeInvalidSignature, "signature mismatch")
	}
	return nil
}
