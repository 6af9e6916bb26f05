package enums

import "fmt"

// PaymentChannel is the canonical channel vocabulary shared by all gateways.
type PaymentChannel string

const (
	PaymentChannelCard        PaymentChannel = "card"
	PaymentChannelBank        PaymentChannel = "bank"
	PaymentChannelMobileMoney PaymentChannel = "mobile_money"
	PaymentChannelUSSD        PaymentChannel = "ussd"
	PaymentChannelUnknown     PaymentChannel = "unknown"
)

var validPaymentChannels = []PaymentChannel{
	PaymentChannelCard,
	PaymentChannelBank,
	PaymentChannelMobileMoney,
	PaymentChannelUSSD,
	PaymentChannelUnknown,
}

// String implements fmt.Stringer.
func (c PaymentChannel) String() string {
	return string(c)
}

// IsValid reports whether the value is a known PaymentChannel.
func (c PaymentChannel) IsValid() bool {
	for _, candidate := range validPaymentChannels {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParsePaymentChannel converts raw input into a PaymentChannel.
func ParsePaymentChannel(value string) (PaymentChannel, error) {
	for _, candidate := range validPaymentChannels {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment channel %q", value)
}
