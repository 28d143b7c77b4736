package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamaroning/blockchain-sim/stats"
)

func testServer(t *testing.T, records int, summary *stats.Summary) *httptest.Server {
	t.Helper()
	archive, err := stats.OpenArchive(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { archive.Close() })

	for i := 0; i < records; i++ {
		require.NoError(t, archive.Record(&stats.Record{
			Round:      uint64(i * 10),
			Height:     uint64(i),
			Difficulty: big.NewInt(131072),
			Miner:      i % 3,
			Visibility: "public",
			BlockHash:  common.BigToHash(big.NewInt(int64(i + 1))),
		}))
	}
	if summary != nil {
		require.NoError(t, archive.PutSummary(summary))
	}

	ts := httptest.NewServer(NewServer(&Config{}, archive).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestSummaryEndpoint(t *testing.T) {
	ts := testServer(t, 0, &stats.Summary{Protocol: "ethereum", Seed: 7})

	var sum stats.Summary
	status := getJSON(t, ts.URL+"/summary", &sum)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ethereum", sum.Protocol)
	assert.Equal(t, int64(7), sum.Seed)
}

func TestSummaryEndpointMissing(t *testing.T) {
	ts := testServer(t, 0, nil)

	var body map[string]string
	status := getJSON(t, ts.URL+"/summary", &body)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, body, "error")
}

func TestBlocksEndpointPaging(t *testing.T) {
	ts := testServer(t, 10, nil)

	var page struct {
		Start   uint64          `json:"start"`
		Count   int             `json:"count"`
		Total   uint64          `json:"total"`
		Records []*stats.Record `json:"records"`
	}
	status := getJSON(t, ts.URL+"/blocks?start=4&limit=3", &page)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, uint64(4), page.Start)
	assert.Equal(t, 3, page.Count)
	assert.Equal(t, uint64(10), page.Total)
	require.Len(t, page.Records, 3)
	assert.Equal(t, uint64(4), page.Records[0].Height)
	assert.Equal(t, uint64(6), page.Records[2].Height)
}

func TestBlocksEndpointBadParams(t *testing.T) {
	ts := testServer(t, 1, nil)

	for _, q := range []string{"?start=x", "?limit=0", "?limit=99999", "?limit=x"} {
		var body map[string]string
		status := getJSON(t, ts.URL+"/blocks"+q, &body)
		assert.Equal(t, http.StatusBadRequest, status, q)
	}
}

func TestBlockByHashEndpoint(t *testing.T) {
	ts := testServer(t, 3, nil)
	hash := common.BigToHash(big.NewInt(2))

	var rec stats.Record
	status := getJSON(t, fmt.Sprintf("%s/blocks/%s", ts.URL, hash.Hex()), &rec)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, uint64(1), rec.Height)
	assert.Equal(t, hash, rec.BlockHash)

	var body map[string]string
	unknown := common.BigToHash(big.NewInt(999))
	status = getJSON(t, fmt.Sprintf("%s/blocks/%s", ts.URL, unknown.Hex()), &body)
	assert.Equal(t, http.StatusNotFound, status)

	status = getJSON(t, ts.URL+"/blocks/nothex", &body)
	assert.Equal(t, http.StatusBadRequest, status)
}
