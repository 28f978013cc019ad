package manifests

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/parcel-intake-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/parcel-intake-backend/pkg/errors"
	"github.com/angelmondragon/parcel-intake-backend/pkg/pagination"
	"github.com/angelmondragon/parcel-intake-backend/pkg/types"
)

func TestIngestCreatesThenUpdatesInPlace(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Ingest(ctx, IngestInput{
		ManifestNumber: "M1",
		UploadedBy:     "admin",
		Parcels:        []ParcelInput{row("TN001", "Alice"), row("TN002", "Bob")},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Created)
	assert.Equal(t, 0, first.Updated)
	assert.Empty(t, first.Errors)

	updatedRow := row("TN001", "Alice Smith")
	updatedRow.ActualWeight = "2.5 kg"
	second, err := svc.Ingest(ctx, IngestInput{
		ManifestNumber: "M1",
		UploadedBy:     "admin",
		UploadedByName: "Admin",
		Parcels:        []ParcelInput{updatedRow, row("TN003", "Carol")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Created)
	assert.Equal(t, 1, second.Updated)
	assert.Equal(t, second.Total-len(second.Errors), second.Created+second.Updated)

	detail, err := svc.Get(ctx, "M1")
	require.NoError(t, err)
	require.Len(t, detail.Parcels, 3)
	assert.Equal(t, "TN001", detail.Parcels[0].TrackingNumber)
	assert.Equal(t, "Alice Smith", detail.Parcels[0].ConsigneeName)
	require.NotNil(t, detail.Parcels[0].ActualWeight)
	assert.True(t, detail.Parcels[0].ActualWeight.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, 1, detail.Parcels[0].ScanHistory.Count(enums.ScanActionUpdated))
	assert.Equal(t, "TN003", detail.Parcels[2].TrackingNumber)
	assert.Equal(t, 2, detail.Parcels[2].Position)
}

func TestIngestDuplicateRowsInOneRequestUpdateEarlierRow(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.Ingest(ctx, IngestInput{
		ManifestNumber: "M1",
		Parcels:        []ParcelInput{row("TN001", "Alice"), row("TN001", "Alice B")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Updated)

	detail, err := svc.Get(ctx, "M1")
	require.NoError(t, err)
	require.Len(t, detail.Parcels, 1)
	assert.Equal(t, "Alice B", detail.Parcels[0].ConsigneeName)
}

func TestIngestCollectsRowErrorsAndWarnings(t *testing.T) {
	svc, _, _ := newTestService(t)

	badDate := row("TN004", "Dan")
	badDate.ShipmentDate = "not a date"
	goodDate := row("TN005", "Eve")
	goodDate.ShipmentDate = "2026-02-27"

	res, err := svc.Ingest(context.Background(), IngestInput{
		ManifestNumber: "M1",
		Parcels: []ParcelInput{
			row("", "No Tracking"),
			row("TN002", "  "),
			badDate,
			goodDate,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, 1, res.Errors[0].Row)
	assert.Equal(t, "tracking number is required", res.Errors[0].Message)
	assert.Equal(t, 2, res.Errors[1].Row)
	assert.Equal(t, "consignee name is required", res.Errors[1].Message)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "unparseable shipment date")
	assert.Equal(t, res.Total-len(res.Errors), res.Created+res.Updated)

	detail, err := svc.Get(context.Background(), "M1")
	require.NoError(t, err)
	require.Len(t, detail.Parcels, 2)
	assert.Nil(t, detail.Parcels[0].ShipmentDate)
	require.NotNil(t, detail.Parcels[1].ShipmentDate)
	assert.True(t, detail.Parcels[1].ShipmentDate.Equal(time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC)))
}

func TestIngestRejectsTrackingNumberOwnedByAnotherManifest(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, IngestInput{ManifestNumber: "M1", Parcels: []ParcelInput{row("TN001", "Alice")}})
	require.NoError(t, err)

	res, err := svc.Ingest(ctx, IngestInput{ManifestNumber: "M2", Parcels: []ParcelInput{row("TN001", "Alice"), row("TN010", "Zed")}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Message, "M1")
}

func TestIngestGeneratesManifestNumber(t *testing.T) {
	svc, _, _ := newTestService(t)

	res, err := svc.Ingest(context.Background(), IngestInput{Parcels: []ParcelInput{row("TN001", "Alice")}})
	require.NoError(t, err)
	assert.Equal(t, "MAN-20260301-093000", res.ManifestNumber)
}

func TestIngestRequiresRows(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Ingest(context.Background(), IngestInput{ManifestNumber: "M1"})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestScanStatsActivityAndReport(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, IngestInput{ManifestNumber: "M1", Parcels: []ParcelInput{row("TN001", "Alice"), row("TN002", "Bob")}})
	require.NoError(t, err)

	parcels, err := repo.FindParcelsByTrackingNumbers(ctx, []string{"TN001"})
	require.NoError(t, err)
	require.Len(t, parcels, 1)
	receivedAt := fixedNow.Add(time.Hour)
	ok, err := repo.MarkReceived(ctx, parcels[0].ID, parcels[0].Version, ReceiveUpdate{
		ReceivedAt:    receivedAt,
		ReceivedBy:    "Jane",
		ScannedBy:     "op1",
		ScannedByUser: "Jane",
		History: parcels[0].ScanHistory.Append(types.ScanHistoryEntry{
			UserID: "op1", UserName: "Jane", Timestamp: receivedAt, Action: enums.ScanActionReceived,
		}),
	})
	require.NoError(t, err)
	require.True(t, ok)

	stats, err := svc.ScanStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 2, stats[0].Total)
	assert.Equal(t, 1, stats[0].Scanned)
	assert.Equal(t, 1, stats[0].Pending)
	assert.Equal(t, 50.0, stats[0].Percentage)

	activity, err := svc.ScanActivity(ctx, "M1")
	require.NoError(t, err)
	require.Len(t, activity, 1)
	assert.Equal(t, "TN001", activity[0].TrackingNumber)
	assert.Equal(t, enums.ScanActionReceived, activity[0].Action)

	var buf bytes.Buffer
	require.NoError(t, svc.Report(ctx, "M1", &buf))
	report := buf.String()
	assert.Contains(t, report, "Manifest,M1")
	assert.Contains(t, report, "Completion,50.00%")
	assert.Contains(t, report, "TN001,Alice,2026-03-01 10:30:00,Jane,op1")
	pendingSection := report[strings.Index(report, "Pending Parcels"):]
	assert.Contains(t, pendingSection, "TN002,Bob")
	assert.NotContains(t, pendingSection, "TN001")
}

func TestListPaginatesNewestFirst(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for i, number := range []string{"M1", "M2", "M3"} {
		svc.now = func() time.Time { return fixedNow.Add(time.Duration(i) * time.Minute) }
		_, err := svc.Ingest(ctx, IngestInput{ManifestNumber: number, Parcels: []ParcelInput{row("TN-"+number, "Alice")}})
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Manifests, 2)
	assert.Equal(t, "M3", page.Manifests[0].ManifestNumber)
	assert.Equal(t, 1, page.Manifests[0].ParcelCount)
	require.NotEmpty(t, page.NextCursor)

	next, err := svc.List(ctx, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, next.Manifests, 1)
	assert.Equal(t, "M1", next.Manifests[0].ManifestNumber)
	assert.Empty(t, next.NextCursor)

	_, err = svc.List(ctx, pagination.Params{Cursor: "%%%"})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestDeleteRemovesManifestAndParcels(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, IngestInput{ManifestNumber: "M1", Parcels: []ParcelInput{row("TN001", "Alice")}})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "M1"))

	_, err = svc.Get(ctx, "M1")
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
	parcels, err := repo.FindParcelsByTrackingNumbers(ctx, []string{"TN001"})
	require.NoError(t, err)
	assert.Empty(t, parcels)

	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(svc.Delete(ctx, "M1")))
}
