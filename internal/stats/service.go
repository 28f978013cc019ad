package stats

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/parcel-intake-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/parcel-intake-backend/pkg/errors"
)

// CustomerStat aggregates the parcels addressed to one consignee.
type CustomerStat struct {
	ConsigneeName   string     `json:"consigneeName"`
	ParcelCount     int        `json:"parcelCount"`
	ReceivedCount   int        `json:"receivedCount"`
	PendingCount    int        `json:"pendingCount"`
	ReceivedRate    float64    `json:"receivedRate"`
	LastScanAt      *time.Time `json:"lastScanAt"`
	LastScannedBy   string     `json:"lastScannedBy,omitempty"`
	TrackingNumbers []string   `json:"trackingNumbers"`
	MultiParcel     bool       `json:"multiParcel"`
}

// CustomerStats is the response of a customer statistics query.
type CustomerStats struct {
	ManifestNumber string         `json:"manifestNumber,omitempty"`
	TotalParcels   int            `json:"totalParcels"`
	Customers      []CustomerStat `json:"customers"`
}

// Service computes customer statistics from the live parcel set.
type Service interface {
	CustomerStats(ctx context.Context, manifestNumber *string) (*CustomerStats, error)
}

type service struct {
	repo      Repository
	threshold int
}

// NewService builds the stats service. Consignees with more parcels than
// multiParcelThreshold are flagged as multi-parcel; a threshold of 0 flags
// every consignee.
func NewService(repo Repository, multiParcelThreshold int) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("stats repository required")
	}
	if multiParcelThreshold < 0 {
		return nil, fmt.Errorf("multi-parcel threshold must not be negative, got %d", multiParcelThreshold)
	}
	return &service{repo: repo, threshold: multiParcelThreshold}, nil
}

func (s *service) CustomerStats(ctx context.Context, manifestNumber *string) (*CustomerStats, error) {
	out := &CustomerStats{Customers: []CustomerStat{}}

	var manifestID *uuid.UUID
	if manifestNumber != nil && strings.TrimSpace(*manifestNumber) != "" {
		number := strings.TrimSpace(*manifestNumber)
		id, err := s.repo.FindManifestID(ctx, number)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("manifest %s not found", number))
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load manifest")
		}
		manifestID = &id
		out.ManifestNumber = number
	}

	parcels, err := s.repo.ListParcels(ctx, manifestID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list parcels")
	}

	out.TotalParcels = len(parcels)
	out.Customers = s.aggregate(parcels)
	return out, nil
}

type customerAgg struct {
	stat     CustomerStat
	tracking map[string]struct{}
}

// aggregate groups parcels by consignee, keeping first-seen order until the
// final sort by parcel count and name.
func (s *service) aggregate(parcels []models.Parcel) []CustomerStat {
	index := map[string]int{}
	var groups []*customerAgg

	for _, p := range parcels {
		name := strings.TrimSpace(p.ConsigneeName)
		i, ok := index[name]
		if !ok {
			i = len(groups)
			index[name] = i
			groups = append(groups, &customerAgg{
				stat:     CustomerStat{ConsigneeName: name},
				tracking: map[string]struct{}{},
			})
		}
		g := groups[i]
		g.stat.ParcelCount++
		g.tracking[p.TrackingNumber] = struct{}{}
		if !p.Received {
			continue
		}
		g.stat.ReceivedCount++
		if p.ReceivedAt != nil && (g.stat.LastScanAt == nil || p.ReceivedAt.After(*g.stat.LastScanAt)) {
			at := *p.ReceivedAt
			g.stat.LastScanAt = &at
			g.stat.LastScannedBy = p.ReceivedBy
		}
	}

	out := make([]CustomerStat, 0, len(groups))
	for _, g := range groups {
		stat := g.stat
		stat.PendingCount = stat.ParcelCount - stat.ReceivedCount
		stat.ReceivedRate = receivedRate(stat.ReceivedCount, stat.ParcelCount)
		stat.MultiParcel = stat.ParcelCount > s.threshold
		stat.TrackingNumbers = make([]string, 0, len(g.tracking))
		for tn := range g.tracking {
			stat.TrackingNumbers = append(stat.TrackingNumbers, tn)
		}
		sort.Strings(stat.TrackingNumbers)
		out = append(out, stat)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ParcelCount != out[j].ParcelCount {
			return out[i].ParcelCount > out[j].ParcelCount
		}
		return out[i].ConsigneeName < out[j].ConsigneeName
	})
	return out
}

// receivedRate is the received share as a percentage rounded to two places.
func receivedRate(received, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(int(float64(received)*10000/float64(total)+0.5)) / 100
}
