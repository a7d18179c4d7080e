package notify

import (
	"fmt"
	"strings"
	"time"
)

// FormatConnectionLostMessage creates the body sent when reconnection gives up.
func FormatConnectionLostMessage(endpoint string, attempts int, err error) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Endpoint: %s\n", endpoint))
	sb.WriteString(fmt.Sprintf("Reconnect attempts: %d\n", attempts))
	sb.WriteString("Real-time updates are paused until the client reconnects.")

	if err != nil {
		sb.WriteString(fmt.Sprintf("\n\nError: %v", err))
	}

	return sb.String()
}

// FormatConnectionRestoredMessage creates the body sent when updates resume.
func FormatConnectionRestoredMessage(endpoint string, downtime time.Duration) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Endpoint: %s\n", endpoint))
	sb.WriteString(fmt.Sprintf("Downtime: %s", downtime.Round(time.Second)))

	return sb.String()
}
