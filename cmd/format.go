package cmd

import (
	"fmt"
	"time"
)

// formatNumber formats a number with K/M suffixes for readability
func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	} else if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	} else {
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
}

// formatTime formats a time relative to now or as an absolute date
func formatTime(t time.Time) string {
	now := time.Now()
	diff := now.Sub(t)

	if diff < 24*time.Hour {
		if diff < time.Hour {
			minutes := int(diff.Minutes())
			if minutes < 1 {
				return "just now"
			}
			return fmt.Sprintf("%d minutes ago", minutes)
		}
		return fmt.Sprintf("%d hours ago", int(diff.Hours()))
	}

	if diff < 7*24*time.Hour {
		return fmt.Sprintf("%d days ago", int(diff.Hours()/24))
	}

	if t.Year() == now.Year() {
		return t.Format("Jan 2, 15:04")
	}
	return t.Format("Jan 2, 2006")
}

// formatStats formats storage statistics for display
func formatStats(stats map[string]any) {
	fmt.Printf("📊 Content Store Statistics\n")
	fmt.Printf("═══════════════════════════\n\n")

	asInt := func(key string) int {
		switch v := stats[key].(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		default:
			return 0
		}
	}

	fmt.Printf("Pages:        %s\n", formatNumber(asInt("total_pages")))
	fmt.Printf("Blocks:       %s\n", formatNumber(asInt("total_blocks")))
	fmt.Printf("Legacy items: %s\n", formatNumber(asInt("legacy_items")))
	fmt.Printf("Revisions:    %s\n", formatNumber(asInt("revisions_kept")))
}
