package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectRows(t *testing.T, rowCh <-chan []string, errCh <-chan error) [][]string {
	t.Helper()
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	require.NoError(t, <-errCh)
	return rows
}

func TestStreamCSV_Basic(t *testing.T) {
	input := "a,b,c\n1,2,3\n4,5,6\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{})

	rows := collectRows(t, rowCh, errCh)
	assert.Equal(t, [][]string{{"a", "b", "c"}, {"1", "2", "3"}, {"4", "5", "6"}}, rows)
}

func TestStreamCSV_HeaderRowSkippedAndDelivered(t *testing.T) {
	headerCh := make(chan []string, 1)
	input := "id,content\np1,post one\np2,post two\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
	})

	rows := collectRows(t, rowCh, errCh)
	assert.Equal(t, [][]string{{"p1", "post one"}, {"p2", "post two"}}, rows)
	assert.Equal(t, []string{"id", "content"}, <-headerCh)
}

func TestStreamCSV_TrimSpaceAndVariableFields(t *testing.T) {
	input := "p1 ,  post one\np2,post two,extra\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{TrimSpace: true})

	rows := collectRows(t, rowCh, errCh)
	assert.Equal(t, [][]string{{"p1", "post one"}, {"p2", "post two", "extra"}}, rows)
}

func TestStreamCSV_CustomDelimiterAndComments(t *testing.T) {
	input := "# scrape drop v2\np1|post one\np2|post two\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		Delimiter: '|',
		Comment:   '#',
	})

	rows := collectRows(t, rowCh, errCh)
	assert.Len(t, rows, 2)
	assert.Equal(t, []string{"p1", "post one"}, rows[0])
}

func TestStreamCSV_MalformedQuoteReportsError(t *testing.T) {
	input := "p1,\"unterminated\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{})

	for range rowCh {
	}
	err := <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv: read row")
}

func TestStreamCSV_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rowCh, errCh := StreamCSV(ctx, strings.NewReader("a,b\nc,d\n"), CSVOptions{})
	for range rowCh {
	}
	err := <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}
