package logger

import "go.uber.org/zap"

// visibleTokenPrefix is how many leading characters of a secret may appear in logs.
const visibleTokenPrefix = 6

// MaskToken renders token material as a short prefix followed by an ellipsis.
// Short values are fully hidden.
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= visibleTokenPrefix*2 {
		return "..."
	}
	return token[:visibleTokenPrefix] + "..."
}

// Token returns a zap field carrying masked token material
func Token(key, token string) zap.Field {
	return zap.String(key, MaskToken(token))
}
