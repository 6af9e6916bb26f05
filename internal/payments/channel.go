package payments

import (
	"strings"

	"github.com/joseph3559/letrents-backend/pkg/enums"
)

// NormalizeChannel maps the channel vocabulary used by the gateways onto the
// canonical enum. Unknown values degrade to PaymentChannelUnknown rather than
// failing the event.
func NormalizeChannel(raw string) enums.PaymentChannel {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "card", "debit_card", "credit_card":
		return enums.PaymentChannelCard
	case "bank", "bank_transfer", "eft":
		return enums.PaymentChannelBank
	case "mobile_money", "mobilemoney", "mpesa", "momo":
		return enums.PaymentChannelMobileMoney
	case "ussd":
		return enums.PaymentChannelUSSD
	default:
		return enums.PaymentChannelUnknown
	}
}

// ChannelLabel derives the human-readable label shown on receipts. Issuer and
// bank hints refine generic channels when the gateway provides them.
func ChannelLabel(channel enums.PaymentChannel, issuerHint, bankHint string) string {
	issuer := strings.TrimSpace(issuerHint)
	bank := strings.TrimSpace(bankHint)

	switch channel {
	case enums.PaymentChannelCard:
		if issuer != "" {
			return issuer + " Card"
		}
		return "Card"
	case enums.PaymentChannelBank:
		if bank != "" {
			return bank
		}
		return "Bank Transfer"
	case enums.PaymentChannelMobileMoney:
		if issuer != "" {
			return issuer
		}
		return "Mobile Money"
	case enums.PaymentChannelUSSD:
		return "USSD"
	default:
		if issuer != "" {
			return issuer
		}
		return "Payment"
	}
}
