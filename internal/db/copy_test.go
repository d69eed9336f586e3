package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "source_items", []string{"id", "content"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"source_items"}, []string{"id", "content"}).WillReturnResult(3)

	rows := [][]any{{"p1", "post one"}, {"p2", "post two"}, {"p3", "post three"}}
	n, err := CopyFrom(context.Background(), mock, "source_items", []string{"id", "content"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"source_items"}, []string{"id", "content"}).WillReturnError(fmt.Errorf("copy failed"))

	rows := [][]any{{"p1", "post one"}}
	_, err = CopyFrom(context.Background(), mock, "source_items", []string{"id", "content"}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO source_items")
	assert.NoError(t, mock.ExpectationsWereMet())
}
