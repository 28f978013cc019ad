package manifests

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/parcel-intake-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/parcel-intake-backend/pkg/errors"
)

// ParcelMatch locates a parcel inside its owning manifest. Index is the
// parcel's 0-based offset in the manifest's ordered parcel list.
type ParcelMatch struct {
	Manifest models.Manifest
	Parcel   models.Parcel
	Index    int
}

// ParcelFinder resolves a tracking number to its parcel.
type ParcelFinder interface {
	FindParcel(ctx context.Context, trackingNumber string) (*ParcelMatch, error)
}

// Matcher resolves tracking numbers across every manifest.
type Matcher struct {
	repo Repository
}

// NewMatcher builds a matcher over the manifest repository.
func NewMatcher(repo Repository) (*Matcher, error) {
	if repo == nil {
		return nil, fmt.Errorf("manifests repository required")
	}
	return &Matcher{repo: repo}, nil
}

// FindParcel compares tracking numbers exactly and case-sensitively. When more
// than one manifest holds the number, the oldest manifest wins.
func (m *Matcher) FindParcel(ctx context.Context, trackingNumber string) (*ParcelMatch, error) {
	if strings.TrimSpace(trackingNumber) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tracking number is required")
	}

	parcel, err := m.repo.FindFirstParcelByTrackingNumber(ctx, trackingNumber)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("parcel %s not found in any manifest", trackingNumber)).
				WithDetails(map[string]any{"trackingNumber": trackingNumber})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup parcel")
	}

	manifest, err := m.repo.FindManifestByID(ctx, parcel.ManifestID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load owning manifest")
	}

	index, err := m.repo.CountParcelsBefore(ctx, parcel.ManifestID, parcel.Position)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve parcel index")
	}

	return &ParcelMatch{
		Manifest: *manifest,
		Parcel:   *parcel,
		Index:    index,
	}, nil
}
