package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Pythia/pkg/article"
)

func TestResultPath(t *testing.T) {
	ts := time.Date(2024, 5, 1, 23, 30, 0, 0, time.FixedZone("CST", 8*3600))
	assert.Equal(t, "results/2024-05-01/a-1.json", ResultPath("a-1", ts))
}

func TestArchiveRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	archive := NewArchive(store, nil)
	archive.now = func() time.Time { return time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC) }

	summary := "摘要"
	res := &article.Result{
		ID:      "a-1",
		Summary: &summary,
		Errors:  map[string]string{"event_llm": "model unavailable"},
	}

	ref, err := archive.Put(context.Background(), res)
	require.NoError(t, err)
	assert.Equal(t, "results/2024-05-02/a-1.json", ref)
	assert.Equal(t, "partial", store.Metadata(ref)["status"])

	got, err := archive.Get(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, res, got)
}

func TestArchiveRejectsMissingID(t *testing.T) {
	archive := NewArchive(NewMemoryStore(), nil)
	_, err := archive.Put(context.Background(), &article.Result{})
	assert.Error(t, err)
}

func TestArchiveGetMissing(t *testing.T) {
	archive := NewArchive(NewMemoryStore(), nil)
	_, err := archive.Get(context.Background(), "results/nope.json")
	assert.Error(t, err)
}

func TestNewAzureBlobStore(t *testing.T) {
	tests := []struct {
		name             string
		connectionString string
		containerName    string
		errContains      string
	}{
		{
			name:          "empty connection string",
			containerName: "results",
			errContains:   "connection string is required",
		},
		{
			name:             "empty container name",
			connectionString: "DefaultEndpointsProtocol=https;AccountName=test;AccountKey=dGVzdA==;EndpointSuffix=core.windows.net",
			errContains:      "container name is required",
		},
		{
			name:             "missing key",
			connectionString: "AccountName=test",
			containerName:    "results",
			errContains:      "account name and key are required",
		},
		{
			name:             "valid",
			connectionString: "DefaultEndpointsProtocol=https;AccountName=test;AccountKey=dGVzdA==;EndpointSuffix=core.windows.net",
			containerName:    "results",
		},
		{
			name:             "azurite",
			connectionString: "UseDevelopmentStorage=true",
			containerName:    "results",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewAzureBlobStore(tt.connectionString, tt.containerName, nil)
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Nil(t, store)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, store)
		})
	}
}

func TestParseConnectionString(t *testing.T) {
	account, key, endpoint, err := parseConnectionString("DefaultEndpointsProtocol=https;AccountName=news;AccountKey=a2V5;EndpointSuffix=core.chinacloudapi.cn")
	require.NoError(t, err)
	assert.Equal(t, "news", account)
	assert.Equal(t, "a2V5", key)
	assert.Equal(t, "https://news.blob.core.chinacloudapi.cn", endpoint)

	_, _, endpoint, err = parseConnectionString("AccountName=news;AccountKey=a2V5;BlobEndpoint=http://azurite:10000/news")
	require.NoError(t, err)
	assert.Equal(t, "http://azurite:10000/news", endpoint)

	account, _, endpoint, err = parseConnectionString("UseDevelopmentStorage=true")
	require.NoError(t, err)
	assert.Equal(t, devAccountName, account)
	assert.Equal(t, devBlobURL, endpoint)
}

func TestExtractBlobPath(t *testing.T) {
	svc := "https://news.blob.core.windows.net"
	tests := []struct {
		ref  string
		want string
	}{
		{ref: "results/2024-05-01/a.json", want: "results/2024-05-01/a.json"},
		{ref: svc + "/archive/results/2024-05-01/a.json", want: "results/2024-05-01/a.json"},
		{ref: svc + "/archive/results/2024-05-01/a.json?sig=abc", want: "results/2024-05-01/a.json"},
		{ref: "/archive/results/x%20y.json", want: "results/x y.json"},
	}
	for _, tt := range tests {
		got, err := extractBlobPath(svc, "archive", tt.ref)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.ref)
	}

	_, err := extractBlobPath(svc, "archive", "  ")
	assert.Error(t, err)
}
