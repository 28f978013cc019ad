package manifests

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

const reportTimeLayout = "2006-01-02 15:04:05"

// writeReport renders the scan report as CSV: a summary block, then the
// scanned parcels, then the parcels still pending.
func writeReport(w io.Writer, detail *ManifestDetail, generatedAt time.Time) error {
	cw := csv.NewWriter(w)

	pending := detail.ParcelCount - detail.ReceivedCount
	records := [][]string{
		{"Manifest", detail.ManifestNumber},
		{"Manifest Date", detail.Date.UTC().Format("2006-01-02")},
		{"Generated At", generatedAt.UTC().Format(reportTimeLayout)},
		{"Total Parcels", strconv.Itoa(detail.ParcelCount)},
		{"Scanned", strconv.Itoa(detail.ReceivedCount)},
		{"Pending", strconv.Itoa(pending)},
		{"Completion", fmt.Sprintf("%.2f%%", percentage(detail.ReceivedCount, detail.ParcelCount))},
		{},
		{"Scanned Parcels"},
		{"Tracking Number", "Consignee Name", "Received At", "Received By", "Scanned By"},
	}
	for _, p := range detail.Parcels {
		if !p.Received {
			continue
		}
		receivedAt := ""
		if p.ReceivedAt != nil {
			receivedAt = p.ReceivedAt.UTC().Format(reportTimeLayout)
		}
		records = append(records, []string{p.TrackingNumber, p.ConsigneeName, receivedAt, p.ReceivedBy, p.ScannedBy})
	}

	records = append(records,
		[]string{},
		[]string{"Pending Parcels"},
		[]string{"Tracking Number", "Consignee Name", "Consignee Phone", "Consignee Address", "Zip Code"},
	)
	for _, p := range detail.Parcels {
		if p.Received {
			continue
		}
		records = append(records, []string{p.TrackingNumber, p.ConsigneeName, p.ConsigneePhone, p.ConsigneeAddress, p.ZipCode})
	}

	if err := cw.WriteAll(records); err != nil {
		return err
	}
	return cw.Error()
}
