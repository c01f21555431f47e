package helpers

import (
	"fmt"
	"strings"

	"github.com/stephnangue/chronicle/api"
)

// PrintTokenStatus prints a credential status in a formatted table
func PrintTokenStatus(status *api.TokenStatus) {
	if status == nil {
		fmt.Println("No data to display")
		return
	}

	headers := []string{"Key", "Value"}
	data := make([][]any, 0, 11)
	data = append(data, []any{"state", status.State})
	data = append(data, []any{"token_hash", stringOr(status.TokenHash, "n/a")})
	data = append(data, []any{"expiry", FormatTime(status.Expiry)})
	data = append(data, []any{"expires_in", stringOr(status.ExpiresIn, "n/a")})
	data = append(data, []any{"has_refresh_token", status.HasRefreshToken})
	data = append(data, []any{"scopes", FormatScopes(status.Scopes)})
	data = append(data, []any{"obtained_at", FormatTime(status.ObtainedAt)})
	data = append(data, []any{"last_refresh", FormatTime(status.LastRefresh)})
	data = append(data, []any{"last_error", stringOr(status.LastError, "n/a")})
	data = append(data, []any{"refreshes", status.Refreshes})
	data = append(data, []any{"refresh_failures", status.RefreshFailures})
	PrintTable(headers, data)
}

// FormatScopes formats a scope list as a comma separated string
func FormatScopes(scopes []string) string {
	if len(scopes) == 0 {
		return "n/a"
	}
	return strings.Join(scopes, ", ")
}

func stringOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
