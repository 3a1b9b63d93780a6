package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// HTTPProvider fetches the directory snapshot from the HR directory
// service.
type HTTPProvider struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewHTTPProvider creates an HR directory client.
func NewHTTPProvider(baseURL, apiKey string, logger *zap.Logger) *HTTPProvider {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetHeader("X-Api-Key", apiKey)
	}

	return &HTTPProvider{
		httpClient: client,
		logger:     logger,
	}
}

func (p *HTTPProvider) Snapshot(ctx context.Context) (*Snapshot, error) {
	var payload snapshotPayload
	resp, err := p.httpClient.R().
		SetContext(ctx).
		SetResult(&payload).
		Get("/api/v1/directory/snapshot")
	if err != nil {
		return nil, fmt.Errorf("directory snapshot request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("directory snapshot request failed: status=%d body=%s",
			resp.StatusCode(), resp.String())
	}

	p.logger.Debug("Fetched directory snapshot",
		zap.Int("departments", len(payload.DepartmentIDs)),
		zap.Int("ranks", len(payload.RankIDs)),
		zap.Int("positions", len(payload.PositionIDs)),
	)

	return payload.toSnapshot(), nil
}
