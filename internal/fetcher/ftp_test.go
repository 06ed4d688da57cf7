package fetcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFTPURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantHost string
		wantPath string
		wantErr  bool
	}{
		{
			name:     "standard ftp url",
			url:      "ftp://ftp.example.org/pub/data/interviews.zip",
			wantHost: "ftp.example.org:21",
			wantPath: "/pub/data/interviews.zip",
		},
		{
			name:     "ftp url with port",
			url:      "ftp://ftp.example.org:2121/data/notes.txt",
			wantHost: "ftp.example.org:2121",
			wantPath: "/data/notes.txt",
		},
		{
			name:    "http scheme rejected",
			url:     "http://example.org/file.csv",
			wantErr: true,
		},
		{
			name:    "empty path",
			url:     "ftp://ftp.example.org",
			wantErr: true,
		},
		{
			name:    "invalid url",
			url:     "://bad",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, p, err := parseFTPURL(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPath, p)
		})
	}
}

func TestClientPull_DelegatesFTP(t *testing.T) {
	// Bad FTP URLs are rejected by the FTP client before any dial.
	_, err := newTestClient().Pull(context.Background(), "ftp://ftp.example.org", t.TempDir(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty path in ftp url")
}
