package manifests

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/parcel-intake-backend/pkg/db"
	"github.com/angelmondragon/parcel-intake-backend/pkg/db/dbtest"
	"github.com/angelmondragon/parcel-intake-backend/pkg/logger"
	"github.com/angelmondragon/parcel-intake-backend/pkg/types"
)

var fixedNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func newTestService(t *testing.T) (*service, Repository, *gorm.DB) {
	t.Helper()

	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	logg := logger.New(logger.Options{ServiceName: "manifests-test", Output: &bytes.Buffer{}})
	svc, err := NewService(repo, db.NewFromConn(conn), logg)
	require.NoError(t, err)

	impl := svc.(*service)
	impl.now = func() time.Time { return fixedNow }
	return impl, repo, conn
}

func row(trackingNumber, consignee string) ParcelInput {
	return ParcelInput{
		TrackingNumber: types.LooseString(trackingNumber),
		ConsigneeName:  consignee,
	}
}
