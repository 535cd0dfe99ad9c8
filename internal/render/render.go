// Package render formats ledger data for the terminal.
package render

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"flowstate/internal/types"
)

// Renderer handles output formatting
type Renderer struct {
	pretty bool
}

// New returns a renderer; pretty output is coloured with header rules
func New(pretty bool) *Renderer {
	return &Renderer{pretty: pretty}
}

// Minutes formats a minute count as "1h 05m" or "42m"
func Minutes(m int64) string {
	if m < 60 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %02dm", m/60, m%60)
}

func categoryColor(c types.Category) func(format string, a ...interface{}) string {
	switch c {
	case types.CategoryProductive:
		return color.GreenString
	case types.CategoryDistracting:
		return color.RedString
	default:
		return color.YellowString
	}
}

// Category renders a category name, coloured when pretty
func (r *Renderer) Category(c types.Category) string {
	if !r.pretty {
		return string(c)
	}
	return categoryColor(c)("%s", c)
}

// Bucket renders one day's totals followed by its top domains
func (r *Renderer) Bucket(date string, bucket types.DailyBucket, top int) string {
	var sb strings.Builder

	if r.pretty {
		sb.WriteString(color.CyanString("%s\n", date))
		sb.WriteString(strings.Repeat("─", 40) + "\n")
	} else {
		fmt.Fprintf(&sb, "%s\n", date)
	}

	fmt.Fprintf(&sb, "  %-12s %s\n", r.Category(types.CategoryProductive), Minutes(bucket.ProductiveMinutes))
	fmt.Fprintf(&sb, "  %-12s %s\n", r.Category(types.CategoryDistracting), Minutes(bucket.DistractingMinutes))
	fmt.Fprintf(&sb, "  %-12s %s\n", r.Category(types.CategoryNeutral), Minutes(bucket.NeutralMinutes))
	fmt.Fprintf(&sb, "  %-12s %d\n", "tasks", bucket.TasksCompleted)

	domains := bucket.TopDomains(top)
	if len(domains) == 0 {
		return sb.String()
	}

	sb.WriteString("\n")
	for _, d := range domains {
		name := d.Domain
		if r.pretty {
			name = categoryColor(d.Category)("%s", d.Domain)
		}
		fmt.Fprintf(&sb, "  %8s  %s\n", Minutes(d.TimeSpent), name)
	}
	return sb.String()
}

// Day is one row of a multi-day listing
type Day struct {
	Date   string
	Bucket types.DailyBucket
}

// Days renders one summary line per day, newest first as given
func (r *Renderer) Days(days []Day) string {
	if len(days) == 0 {
		return "No tracked days"
	}

	var sb strings.Builder
	if r.pretty {
		sb.WriteString(color.CyanString("Recent Days\n"))
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	}

	for _, d := range days {
		b := d.Bucket
		if r.pretty {
			fmt.Fprintf(&sb, "%s  %s %s  %s %s  %s %s  %s\n",
				color.HiBlackString(d.Date),
				color.GreenString("▲"), Minutes(b.ProductiveMinutes),
				color.RedString("▼"), Minutes(b.DistractingMinutes),
				color.YellowString("•"), Minutes(b.NeutralMinutes),
				fmt.Sprintf("%d tasks", b.TasksCompleted))
		} else {
			fmt.Fprintf(&sb, "%s productive=%d distracting=%d neutral=%d tasks=%d\n",
				d.Date, b.ProductiveMinutes, b.DistractingMinutes, b.NeutralMinutes, b.TasksCompleted)
		}
	}
	return sb.String()
}

// Success renders a confirmation line
func (r *Renderer) Success(format string, args ...interface{}) string {
	msg := fmt.Sprintf(format, args...)
	if r.pretty {
		return color.GreenString("✓ ") + msg
	}
	return msg
}
