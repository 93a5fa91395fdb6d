package sink

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestTimescaleWriteSample(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewTimescale(db, "samples")
	q := regexp.QuoteMeta(`INSERT INTO "samples" (measurement, tags, fields, ts) VALUES ($1,$2,$3,$4)`)
	mock.ExpectExec(q).
		WithArgs("E36312A", []byte(`{"Channel":"2"}`), []byte(`{"current":0.5}`), time.Unix(1700000000, 0).UTC()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = s.WriteSample(context.Background(), "E36312A",
		map[string]string{"Channel": "2"}, map[string]float64{"current": 0.5}, 1700000000)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimescaleWriteSampleError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewTimescale(db, "samples")
	mock.ExpectExec(`INSERT INTO "samples"`).WillReturnError(errors.New("connection refused"))

	err = s.WriteSample(context.Background(), "E36312A", nil, map[string]float64{"voltage": 1}, 1)
	require.ErrorContains(t, err, "connection refused")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimescaleQuotesTableName(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO "lab"."samples" (measurement, tags, fields, ts) VALUES ($1,$2,$3,$4)`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO "x; DROP TABLE samples; --" (measurement, tags, fields, ts) VALUES ($1,$2,$3,$4)`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	ctx := context.Background()
	fields := map[string]float64{"voltage": 1}
	require.NoError(t, NewTimescale(db, "lab.samples").WriteSample(ctx, "E36312A", nil, fields, 1))
	require.NoError(t, NewTimescale(db, "x; DROP TABLE samples; --").WriteSample(ctx, "E36312A", nil, fields, 1))
	require.NoError(t, mock.ExpectationsWereMet())
}
