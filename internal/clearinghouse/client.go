// Package clearinghouse talks to the remote trip ticket clearinghouse API.
package clearinghouse

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/rpattn/tripsync/internal/domain"
)

// UpdatedSinceLayout is the timestamp format the sync endpoint expects.
const UpdatedSinceLayout = "2006-01-02 15:04:05.000000"

// Config describes how to reach the clearinghouse.
type Config struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	ProviderID string        `mapstructure:"provider_id"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryCount int           `mapstructure:"retry_count"`
}

// RemoteResult is the record returned by a create or update call.
type RemoteResult struct {
	ID   *int64
	Data *domain.Record
}

// Client is a resty-backed clearinghouse client.
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewClient creates a clearinghouse client.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("%w: api.base_url is required", domain.ErrConfiguration)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetQueryParam("api_key", cfg.APIKey)
	}
	if cfg.ProviderID != "" {
		client.SetHeader("X-Provider-Id", cfg.ProviderID)
	}

	return &Client{httpClient: client, logger: logger}, nil
}

// FetchUpdatedSince returns every trip updated after since, or all trips
// visible to the provider when since is nil.
func (c *Client) FetchUpdatedSince(ctx context.Context, since *time.Time) ([]domain.TripRecord, error) {
	req := c.httpClient.R().SetContext(ctx)
	if since != nil {
		req.SetQueryParam("updated_since", since.UTC().Format(UpdatedSinceLayout))
	}

	var payload []*domain.Record
	resp, err := req.SetResult(&payload).Get("/trip_tickets/sync")
	if err := checkResponse("GET trip_tickets/sync", resp, err); err != nil {
		c.logger.Error("clearinghouse sync request failed", zap.Error(err))
		return nil, err
	}

	trips := make([]domain.TripRecord, 0, len(payload))
	for _, rec := range payload {
		trips = append(trips, domain.NewTripRecord(rec))
	}
	c.logger.Info("retrieved updated trips from clearinghouse", zap.Int("trip_count", len(trips)))
	return trips, nil
}

// Create posts a new record of kind.
func (c *Client) Create(ctx context.Context, kind domain.EntityKind, rec *domain.Record) (RemoteResult, error) {
	payload := domain.NewRecord()
	op := "POST " + kind.Plural()
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(rec).
		SetResult(payload).
		Post("/" + kind.Plural())
	if err := checkResponse(op, resp, err); err != nil {
		return RemoteResult{}, err
	}
	return resultFrom(payload), nil
}

// Update puts changes to the record with remoteID.
func (c *Client) Update(ctx context.Context, kind domain.EntityKind, remoteID int64, rec *domain.Record) (RemoteResult, error) {
	payload := domain.NewRecord()
	op := "PUT " + kind.Plural()
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(rec).
		SetResult(payload).
		SetPathParam("id", strconv.FormatInt(remoteID, 10)).
		Put("/" + kind.Plural() + "/{id}")
	if err := checkResponse(op, resp, err); err != nil {
		return RemoteResult{}, err
	}
	return resultFrom(payload), nil
}

// clip shortens s to at most n bytes without splitting a UTF-8 sequence.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func checkResponse(op string, resp *resty.Response, err error) error {
	if err != nil {
		return &domain.TransportError{Op: op, Err: err}
	}
	if resp.IsError() {
		body := strings.TrimSpace(string(resp.Body()))
		body = clip(body, 200)
		return &domain.TransportError{
			Op:  op,
			Err: fmt.Errorf("unexpected status %d %s: %s", resp.StatusCode(), http.StatusText(resp.StatusCode()), body),
		}
	}
	return nil
}

func resultFrom(payload *domain.Record) RemoteResult {
	trip := domain.NewTripRecord(payload)
	result := RemoteResult{Data: trip.Data}
	if id, ok := trip.RemoteID(); ok {
		result.ID = &id
	}
	return result
}
