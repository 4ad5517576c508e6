package platform

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var indianEnglish = language.MustParse("en-IN")

// FormatPrice renders a rupee amount with Indian digit grouping.
func FormatPrice(amount float64) string {
	p := message.NewPrinter(indianEnglish)
	return "₹" + p.Sprint(number.Decimal(amount, number.MaxFractionDigits(2)))
}

// FormatPercent renders a discount percentage without decimals.
func FormatPercent(percent float64) string {
	return fmt.Sprintf("%.0f%%", math.Round(percent))
}

// networkLabel turns a network key such as "amazon" into "Amazon".
func networkLabel(network string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(network, "_", " "))
}

func truncateRunes(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	if limit <= 1 {
		return string(runes[:limit])
	}
	return string(runes[:limit-1]) + "…"
}
