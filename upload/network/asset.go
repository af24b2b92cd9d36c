package network

import (
	"context"
	"fmt"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/melbahja/got"
)

// AssetDownloadParams ...
type AssetDownloadParams struct {
	ServingBaseURL string
	StorageKey     string
	DownloadPath   string
}

// ResolveAssetURL resolves a storage key against the asset serving base URL.
func ResolveAssetURL(servingBaseURL, storageKey string) (string, error) {
	if servingBaseURL == "" {
		return "", fmt.Errorf("serving base URL is empty")
	}
	if storageKey == "" {
		return "", fmt.Errorf("storage key is empty")
	}

	normalizedKey := strings.TrimPrefix(storageKey, "/")
	return fmt.Sprintf("%s/%s", strings.TrimSuffix(servingBaseURL, "/"), normalizedKey), nil
}

// DownloadAsset fetches a stored object through the serving URL.
func DownloadAsset(ctx context.Context, params AssetDownloadParams, logger log.Logger) error {
	url, err := ResolveAssetURL(params.ServingBaseURL, params.StorageKey)
	if err != nil {
		return err
	}

	logger.Debugf("Downloading asset %s", url)
	retryableHTTPClient := retryhttp.NewClient(logger)

	downloader := got.New()
	downloader.Client = retryableHTTPClient.StandardClient()

	return downloader.Do(got.NewDownload(ctx, url, params.DownloadPath))
}
