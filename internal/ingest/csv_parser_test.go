package ingest_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetchat-backend/internal/ingest"
)

func writeUpload(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseFile(t *testing.T) {
	content := "Invoice Date,Branch,GST Amount,Net Amount\n" +
		"2026-02-01,pune,\"1,234.55\",100\n" +
		"2026-02-03,delhi,10.449,200\n" +
		"2026-02-02,pune\n" + // ragged, skipped
		"2026-02-02,mumbai,5,50\n"

	parser := ingest.NewCSVParser()
	snapshot, rows, err := parser.ParseFile(writeUpload(t, "acme_corp__sales_feb.csv", content))
	require.NoError(t, err)

	assert.Equal(t, []string{"invoice_date", "branch", "gst_amount", "net_amount"}, snapshot.ColumnNames)
	assert.Equal(t, 4, snapshot.ColumnCount)
	assert.Equal(t, "acme_corp__sales_feb.csv", snapshot.Filename)
	assert.Equal(t, "acme corp", snapshot.EntityTag)
	assert.NotEmpty(t, snapshot.DatasetID)
	assert.Equal(t, int64(3), snapshot.RowCount)
	assert.Equal(t, "2026-02-01", snapshot.MinRowDate)
	assert.Equal(t, "2026-02-03", snapshot.MaxRowDate)

	require.Len(t, rows, 3)
	assert.Equal(t, "2026-02-01", rows[0].RowDate)
	assert.Equal(t, snapshot.DatasetID, rows[0].DatasetID)
	assert.Equal(t, "acme corp", rows[0].EntityTag)
	assert.Equal(t, 1234.55, rows[0].Fields["gst_amount"])
	assert.Equal(t, "pune", rows[0].Fields["branch"])
	assert.Equal(t, 10.449, rows[1].Fields["gst_amount"])
}

func TestParseFile_HeaderNormalization(t *testing.T) {
	content := "Bill Date, GST Amt (Rs.),GST Amt (Rs.),,Branch Name\n" +
		"01/02/2026,10,20,x,pune\n"

	parser := ingest.NewCSVParser()
	snapshot, rows, err := parser.ParseFile(writeUpload(t, "upload.csv", content))
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"bill_date", "gst_amt_rs", "gst_amt_rs_1", "column_4", "branch_name"},
		snapshot.ColumnNames)
	require.Len(t, rows, 1)
	assert.Equal(t, 10.0, rows[0].Fields["gst_amt_rs"])
	assert.Equal(t, 20.0, rows[0].Fields["gst_amt_rs_1"])
}

func TestParseFile_DateColumnNormalized(t *testing.T) {
	content := "transaction_date,amount\n" +
		"02 Feb 2026,10\n" +
		"2026/02/05,20\n" +
		"not-a-date,30\n"

	parser := ingest.NewCSVParser()
	_, rows, err := parser.ParseFile(writeUpload(t, "upload.csv", content))
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, "2026-02-02", rows[0].RowDate)
	assert.Equal(t, "2026-02-05", rows[1].RowDate)
	// Unparseable dates keep the raw value and leave RowDate empty.
	assert.Equal(t, "", rows[2].RowDate)
	assert.Equal(t, "not-a-date", rows[2].Fields["transaction_date"])
}

func TestParseFile_NoEntityTagWithoutMarker(t *testing.T) {
	content := "amount\n10\n"

	parser := ingest.NewCSVParser()
	snapshot, _, err := parser.ParseFile(writeUpload(t, "plain.csv", content))
	require.NoError(t, err)

	assert.Equal(t, "", snapshot.EntityTag)
}

func TestParseFile_MissingFile(t *testing.T) {
	parser := ingest.NewCSVParser()
	_, _, err := parser.ParseFile(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}
