package observability

import (
	"github.com/numvend/numvend/internal/logging"
)

// Logger returns the global safe logger instance
func Logger() *logging.SafeLogger {
	return logging.Logger
}

// MaskPhoneNumber masks a phone number for logging, keeping only the
// country code prefix and the last two digits
func MaskPhoneNumber(number string) string {
	if len(number) < 6 {
		return "******"
	}
	return number[:3] + "******" + number[len(number)-2:]
}

// MaskAPIKey masks an API key for logging
func MaskAPIKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}
