package tickio

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, csvName, csvBody string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(csvName)
	require.NoError(t, err)
	_, err = w.Write([]byte(csvBody))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDecode_Success(t *testing.T) {
	csvBody := "Exness,Symbol,Timestamp,Bid,Ask\n" +
		"Exness,EURUSD,2024-08-01 00:00:00.100,1.0950,1.0951\n" +
		"Exness,EURUSD,2024-08-01 00:00:00.250,1.0951,1.0952\n"
	data := buildZip(t, "Exness_EURUSD_2024_08.csv", csvBody)

	batch, err := Decode(data, "EURUSD", "standard", 2024, 8)
	require.NoError(t, err)
	defer batch.Release()

	require.EqualValues(t, 2, batch.NumRows())
	require.Equal(t, "EURUSD", batch.Instrument)
}

func TestDecode_ColumnOrderIndependent(t *testing.T) {
	csvBody := "Bid,Timestamp,Ask\n1.10,2024-08-01 00:00:01.000,1.11\n"
	data := buildZip(t, "x.csv", csvBody)

	batch, err := Decode(data, "EURUSD", "standard", 2024, 8)
	require.NoError(t, err)
	defer batch.Release()
	require.EqualValues(t, 1, batch.NumRows())
}

func TestDecode_MissingColumn(t *testing.T) {
	csvBody := "Timestamp,Bid\n2024-08-01 00:00:00,1.10\n"
	data := buildZip(t, "x.csv", csvBody)

	_, err := Decode(data, "EURUSD", "standard", 2024, 8)
	var mae *MalformedArchiveError
	require.ErrorAs(t, err, &mae)
}

func TestDecode_NonNumericPrice(t *testing.T) {
	csvBody := "Timestamp,Bid,Ask\n2024-08-01 00:00:00,oops,1.10\n"
	data := buildZip(t, "x.csv", csvBody)

	_, err := Decode(data, "EURUSD", "standard", 2024, 8)
	require.Error(t, err)
}

func TestDecode_NegativePrice(t *testing.T) {
	csvBody := "Timestamp,Bid,Ask\n2024-08-01 00:00:00,-1.0,1.10\n"
	data := buildZip(t, "x.csv", csvBody)

	_, err := Decode(data, "EURUSD", "standard", 2024, 8)
	require.Error(t, err)
}

func TestDecode_UnparseableTimestamp(t *testing.T) {
	csvBody := "Timestamp,Bid,Ask\nnot-a-date,1.0,1.1\n"
	data := buildZip(t, "x.csv", csvBody)

	_, err := Decode(data, "EURUSD", "standard", 2024, 8)
	require.Error(t, err)
}

func TestDecode_MultipleCSVMembersRejected(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w1, _ := zw.Create("a.csv")
	w1.Write([]byte("Timestamp,Bid,Ask\n2024-08-01 00:00:00,1.0,1.1\n"))
	w2, _ := zw.Create("b.csv")
	w2.Write([]byte("Timestamp,Bid,Ask\n2024-08-01 00:00:00,1.0,1.1\n"))
	zw.Close()

	_, err := Decode(buf.Bytes(), "EURUSD", "standard", 2024, 8)
	require.Error(t, err)
}

func TestDecode_NotAZip(t *testing.T) {
	_, err := Decode([]byte("not a zip"), "EURUSD", "standard", 2024, 8)
	require.Error(t, err)
}
