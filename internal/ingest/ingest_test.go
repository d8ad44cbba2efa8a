package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hazpost-core/location"

	"hazpost/internal/logging"
	"hazpost/internal/store"
)

const goodCSV = `vs30,lat,lon,imt,source_digest,gmcm_digest,values
400,-41.3,174.78,PGA,aaaaaaaaaaaa,bbbbbbbbbbbb,0.1;0.01
400,-41.3,174.78,PGA,cccccccccccc,dddddddddddd,0.2;0.02
250,-41.3,174.78,PGA,aaaaaaaaaaaa,bbbbbbbbbbbb,0.3;0.03
`

func TestCSVRoundTrip(t *testing.T) {
	db, err := store.OpenInMemory()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	n, err := CSV(ctx, strings.NewReader(goodCSV), "A_A", db, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	loc := location.New(-41.3, 174.78)
	batch, err := db.Batch(ctx, store.BatchQuery{
		CompatKey: "A_A",
		VS30:      400,
		Partition: loc.PartitionCode(),
		IMTs:      []string{"PGA"},
	})
	require.NoError(t, err)
	rows, err := batch.Job(loc, "PGA", 2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestCSVRejectsBadRows(t *testing.T) {
	cases := map[string]string{
		"missing column": "vs30,lat,lon,imt,source_digest,values\n",
		"bad vs30":       "vs30,lat,lon,imt,source_digest,gmcm_digest,values\n-1,-41.3,174.78,PGA,aaaaaaaaaaaa,bbbbbbbbbbbb,0.1\n",
		"bad digest":     "vs30,lat,lon,imt,source_digest,gmcm_digest,values\n400,-41.3,174.78,PGA,short,bbbbbbbbbbbb,0.1\n",
		"bad value":      "vs30,lat,lon,imt,source_digest,gmcm_digest,values\n400,-41.3,174.78,PGA,aaaaaaaaaaaa,bbbbbbbbbbbb,zero\n",
		"prob too large": "vs30,lat,lon,imt,source_digest,gmcm_digest,values\n400,-41.3,174.78,PGA,aaaaaaaaaaaa,bbbbbbbbbbbb,1.5\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			db, err := store.OpenInMemory()
			require.NoError(t, err)
			defer func() { _ = db.Close() }()

			_, err = CSV(context.Background(), strings.NewReader(data), "A_A", db, logging.Discard())
			require.Error(t, err)
		})
	}
}
