package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/partner-settlement/export"
)

func writeInputs(t *testing.T) (dir string, args []string) {
	t.Helper()
	dir = t.TempDir()
	files := map[string]string{
		"prices.csv": "품목명,단가,카테고리\n박스,500,부자재\n택배,3000,택배\n",
		"stores.csv": "매장명,매장코드\n강남점,GN01\n서초점,SC01\n",
		"nov.csv":    "날짜,매장코드,품목명,수량\n2024-11-01,GN01,박스,10\n2024-11-02,SC01,택배,2\n",
		"dec.csv":    "날짜,매장코드,품목명,수량\n2024-12-01,GN01,택배,1\n2024-12-02,XX99,박스,1\n2024-12-03,SC01,보냉백,4\n",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	args = []string{
		"-prices", filepath.Join(dir, "prices.csv"),
		"-stores", filepath.Join(dir, "stores.csv"),
		"-usage", filepath.Join(dir, "nov.csv") + "," + filepath.Join(dir, "dec.csv"),
	}
	return dir, args
}

func TestRun_PrintsTotalsAndAnomalies(t *testing.T) {
	// GIVEN: Two usage logs, one with an unknown store and an unpriced item
	// WHEN: Running settle
	// THEN: Per-store totals, the grand total and both anomalies are printed

	_, args := writeInputs(t)
	var stdout, stderr bytes.Buffer

	code := run(args, &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	out := stdout.String()
	assert.Contains(t, out, "8,000원")  // 강남점: 5000 + 3000
	assert.Contains(t, out, "6,000원")  // 서초점
	assert.Contains(t, out, "14,000원") // grand total
	assert.Contains(t, out, "단가 미등록 품목: 보냉백")
	assert.Contains(t, out, `store "XX99" is not registered`)
}

func TestRun_FilterAndExport(t *testing.T) {
	dir, args := writeInputs(t)
	out := filepath.Join(dir, "result.xlsx")
	var stdout, stderr bytes.Buffer

	code := run(append(args, "-category", "택배", "-out", out), &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "9,000원")

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), export.SummarySheet)
}

func TestRun_RepeatedStoreFlags(t *testing.T) {
	// GIVEN: A store whose name contains a comma
	// WHEN: Selecting it and another store with repeated -store flags
	// THEN: Each value is taken whole

	dir, args := writeInputs(t)
	stores := filepath.Join(dir, "stores.csv")
	require.NoError(t, os.WriteFile(stores, []byte("매장명,매장코드\n\"강남점, 본관\",GN01\n서초점,SC01\n"), 0o644))
	var stdout, stderr bytes.Buffer

	code := run(append(args, "-store", "강남점, 본관", "-store", "서초점", "-category", "택배"), &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	out := stdout.String()
	assert.Contains(t, out, "강남점, 본관")
	assert.Contains(t, out, "9,000원") // 3000 + 6000
}

func TestRun_CSVExport(t *testing.T) {
	dir, args := writeInputs(t)
	out := filepath.Join(dir, "result.csv")
	var stdout, stderr bytes.Buffer

	require.Equal(t, 0, run(append(args, "-out", out), &stdout, &stderr), stderr.String())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}))
	assert.Contains(t, string(data), export.GrandTotalLabel)
}

func TestRun_Failures(t *testing.T) {
	dir, args := writeInputs(t)
	var stdout, stderr bytes.Buffer

	assert.Equal(t, 2, run([]string{"-prices", "p.csv"}, &stdout, &stderr), "missing required flags")

	bad := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("품목명\n박스\n"), 0o644))
	stderr.Reset()
	assert.Equal(t, 1, run([]string{"-prices", bad, "-stores", args[3], "-usage", args[5]}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "missing required columns")

	stderr.Reset()
	assert.Equal(t, 1, run(append(args, "-out", filepath.Join(dir, "result.pdf")), &stdout, &stderr))
}
