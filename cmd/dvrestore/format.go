package main

import (
	"fmt"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	printer   = message.NewPrinter(language.English)
	titleCase = cases.Title(language.English)
)

func formatCount(n int64) string {
	return printer.Sprintf("%d", n)
}

func formatSeconds(seconds float64) string {
	return printer.Sprintf("%.3fs", seconds)
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func statusLabel(status string) string {
	return titleCase.String(status)
}

func frameRange(first, last *int64) string {
	if first == nil || last == nil {
		return "-"
	}
	return fmt.Sprintf("%d-%d", *first, *last)
}
