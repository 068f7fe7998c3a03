// Package cli holds terminal helpers shared by the caption-cli commands.
package cli

import (
	"fmt"
	"time"
)

// FormatDurationShort renders elapsed time as M:SS, or H:MM:SS past an hour.
func FormatDurationShort(d time.Duration) string {
	s := int(d.Seconds())
	h, m := s/3600, (s%3600)/60
	s %= 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatSize renders a byte count with a binary unit, e.g. "2.4 MB".
func FormatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
