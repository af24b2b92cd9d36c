package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAssetURL(t *testing.T) {
	tests := []struct {
		name           string
		servingBaseURL string
		storageKey     string
		want           string
		wantErr        string
	}{
		{
			name:           "plain join",
			servingBaseURL: "https://assets.example.com",
			storageKey:     "gallery/a.png",
			want:           "https://assets.example.com/gallery/a.png",
		},
		{
			name:           "trailing slash on base",
			servingBaseURL: "https://assets.example.com/",
			storageKey:     "gallery/a.png",
			want:           "https://assets.example.com/gallery/a.png",
		},
		{
			name:           "leading slash on key",
			servingBaseURL: "https://assets.example.com",
			storageKey:     "/gallery/a.png",
			want:           "https://assets.example.com/gallery/a.png",
		},
		{
			name:       "empty base URL",
			storageKey: "gallery/a.png",
			wantErr:    "serving base URL is empty",
		},
		{
			name:           "empty key",
			servingBaseURL: "https://assets.example.com",
			wantErr:        "storage key is empty",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveAssetURL(tt.servingBaseURL, tt.storageKey)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
