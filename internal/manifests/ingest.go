package manifests

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/jinzhu/now"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/parcel-intake-backend/pkg/db/models"
)

const manifestNumberLayout = "20060102-150405"

// spreadsheet serial dates count days from this epoch
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

var shipmentDateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"02.01.2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02-Jan-2006",
	"02-Jan-06",
}

var dateParser = &now.Config{
	TimeLocation: time.UTC,
	TimeFormats:  append(append([]string{}, shipmentDateFormats...), now.TimeFormats...),
}

var rowValidator = validator.New()

// GenerateManifestNumber builds the fallback number used when an upload omits one.
func GenerateManifestNumber(at time.Time) string {
	return "MAN-" + at.UTC().Format(manifestNumberLayout)
}

type ingestRow struct {
	Row              int
	TrackingNumber   string `validate:"required,max=128"`
	ConsigneeName    string `validate:"required,max=255"`
	ShipmentDate     *time.Time
	AWBNumber        string `validate:"max=128"`
	ConsigneePhone   string `validate:"max=64"`
	ConsigneeEmail   string `validate:"max=255"`
	ConsigneeAddress string
	ZipCode          string `validate:"max=32"`
	Description      string
	ActualWeight     decimal.NullDecimal
	DeclaredValue    decimal.NullDecimal
}

// normalizeRow trims and parses one input row. Unparseable optional values
// degrade to null and come back as warnings; missing required fields are errors.
func normalizeRow(rowNumber int, in ParcelInput) (ingestRow, []string, *RowError) {
	row := ingestRow{
		Row:              rowNumber,
		TrackingNumber:   in.TrackingNumber.String(),
		ConsigneeName:    strings.TrimSpace(in.ConsigneeName),
		AWBNumber:        in.AWBNumber.String(),
		ConsigneePhone:   in.ConsigneePhone.String(),
		ConsigneeEmail:   strings.TrimSpace(in.ConsigneeEmail),
		ConsigneeAddress: strings.TrimSpace(in.ConsigneeAddress),
		ZipCode:          in.ZipCode.String(),
		Description:      strings.TrimSpace(in.Description),
	}

	if err := rowValidator.Struct(row); err != nil {
		return row, nil, &RowError{
			Row:            rowNumber,
			TrackingNumber: row.TrackingNumber,
			Message:        rowValidationMessage(err),
		}
	}

	var warnings []string
	if raw := in.ShipmentDate.String(); raw != "" {
		parsed, err := parseShipmentDate(raw)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("row %d (%s): unparseable shipment date %q stored as empty", rowNumber, row.TrackingNumber, raw))
		} else {
			row.ShipmentDate = &parsed
		}
	}
	if row.ConsigneeEmail != "" {
		if err := rowValidator.Var(row.ConsigneeEmail, "email"); err != nil {
			warnings = append(warnings, fmt.Sprintf("row %d (%s): consignee email %q looks invalid", rowNumber, row.TrackingNumber, row.ConsigneeEmail))
		}
	}

	var warn string
	row.ActualWeight, warn = parseAmount(rowNumber, row.TrackingNumber, "actual weight", in.ActualWeight.String())
	if warn != "" {
		warnings = append(warnings, warn)
	}
	row.DeclaredValue, warn = parseAmount(rowNumber, row.TrackingNumber, "declared value", in.DeclaredValue.String())
	if warn != "" {
		warnings = append(warnings, warn)
	}

	return row, warnings, nil
}

func rowValidationMessage(err error) string {
	errs, ok := err.(validator.ValidationErrors)
	if !ok || len(errs) == 0 {
		return "invalid row"
	}
	fe := errs[0]
	field := map[string]string{
		"TrackingNumber": "tracking number",
		"ConsigneeName":  "consignee name",
	}[fe.Field()]
	if field == "" {
		field = strings.ToLower(fe.Field())
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	}
	return field + " is invalid"
}

// parseShipmentDate accepts the common spreadsheet layouts plus spreadsheet
// serial day numbers. Bare numbers that are not serial dates are rejected since
// the time parser would read them as hours or years.
func parseShipmentDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if isDigits(raw) {
		if len(raw) != 5 {
			return time.Time{}, fmt.Errorf("ambiguous numeric date %q", raw)
		}
		days, err := strconv.Atoi(raw)
		if err != nil {
			return time.Time{}, err
		}
		return excelEpoch.AddDate(0, 0, days), nil
	}
	if !strings.ContainsAny(raw, "-/.") && !strings.ContainsFunc(raw, unicode.IsLetter) {
		return time.Time{}, fmt.Errorf("date %q has no date component", raw)
	}
	parsed, err := dateParser.Parse(raw)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}

func parseAmount(rowNumber int, trackingNumber, field, raw string) (decimal.NullDecimal, string) {
	if raw == "" {
		return decimal.NullDecimal{}, ""
	}
	cleaned := strings.ReplaceAll(raw, ",", "")
	cleaned = strings.TrimFunc(cleaned, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '.' && r != '-'
	})
	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Sprintf("row %d (%s): unparseable %s %q stored as empty", rowNumber, trackingNumber, field, raw)
	}
	return decimal.NewNullDecimal(value), ""
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

func applyRow(parcel *models.Parcel, row ingestRow) {
	parcel.TrackingNumber = row.TrackingNumber
	parcel.ConsigneeName = row.ConsigneeName
	parcel.ShipmentDate = row.ShipmentDate
	parcel.AWBNumber = row.AWBNumber
	parcel.ConsigneePhone = row.ConsigneePhone
	parcel.ConsigneeEmail = row.ConsigneeEmail
	parcel.ConsigneeAddress = row.ConsigneeAddress
	parcel.ZipCode = row.ZipCode
	parcel.Description = row.Description
	parcel.ActualWeight = row.ActualWeight
	parcel.DeclaredValue = row.DeclaredValue
}
