package db_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/parcel-intake-backend/pkg/db"
	"github.com/angelmondragon/parcel-intake-backend/pkg/db/dbtest"
	"github.com/angelmondragon/parcel-intake-backend/pkg/db/models"
)

func newManifest(number string) *models.Manifest {
	return &models.Manifest{ID: uuid.New(), ManifestNumber: number, Date: time.Now().UTC()}
}

func countManifests(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, conn.Model(&models.Manifest{}).Count(&count).Error)
	return count
}

func TestWithTxCommitsAndRollsBack(t *testing.T) {
	conn := dbtest.Open(t)
	client := db.NewFromConn(conn)
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(newManifest("M1")).Error
	}))
	assert.EqualValues(t, 1, countManifests(t, conn))

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(newManifest("M2")).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.EqualValues(t, 1, countManifests(t, conn))
}

func TestDuplicateManifestNumberIsUniqueViolation(t *testing.T) {
	conn := dbtest.Open(t)
	client := db.NewFromConn(conn)

	require.NoError(t, conn.Create(newManifest("M1")).Error)
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return tx.Create(newManifest("M1")).Error
	})
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, ""))
	assert.True(t, db.UniqueConstraint{Name: "ux_manifests_manifest_number", Columns: "manifests.manifest_number"}.Violated(err))
	assert.False(t, db.UniqueConstraint{Name: "manifests_pkey", Columns: "manifests.id"}.Violated(err))
	assert.False(t, db.IsUniqueViolation(errors.New("connection reset"), ""))
	assert.False(t, db.IsUniqueViolation(nil, ""))
}

func TestPingAndDB(t *testing.T) {
	conn := dbtest.Open(t)
	client := db.NewFromConn(conn)

	require.NoError(t, client.Ping(context.Background()))
	assert.Same(t, conn, client.DB())
}
