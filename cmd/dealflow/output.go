package main

import (
	"strconv"
	"time"

	"dealflow/internal/store"
)

func renderLinkTable(links []*store.AffiliateLink) string {
	rows := make([][]string, 0, len(links))
	for _, l := range links {
		short := l.ShortURL
		if short == "" {
			short = "-"
		}
		rows = append(rows, []string{
			l.ID,
			l.Network,
			short,
			strconv.FormatInt(l.Clicks, 10),
			strconv.FormatInt(l.Conversions, 10),
			formatMoney(l.Earnings),
		})
	}
	return renderTable(
		[]string{"Link", "Network", "Short URL", "Clicks", "Conversions", "Earnings"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
	)
}

func renderDeliveryTable(deliveries []*store.Delivery) string {
	rows := make([][]string, 0, len(deliveries))
	for _, d := range deliveries {
		rows = append(rows, []string{
			strconv.FormatInt(d.ID, 10),
			strconv.FormatInt(d.ProductID, 10),
			d.Platform,
			d.ScheduledTime.Local().Format(time.DateTime),
			string(d.Status),
			strconv.Itoa(d.Attempts),
			d.LastError,
		})
	}
	return renderTable(
		[]string{"ID", "Product", "Platform", "Scheduled", "Status", "Attempts", "Last Error"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}
