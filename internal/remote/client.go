// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package remote is the HTTP client for the hosted PostgREST store. It owns
// header construction, record batching, conflict-resolution directives, and
// the bounded retry/backoff executor wrapped around every call.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Resolution selects PostgREST duplicate handling for batch inserts.
type Resolution string

const (
	// ResolutionIgnoreDuplicates inserts rows and silently drops ones that
	// hit the table's unique constraint. Used for append-only kinds.
	ResolutionIgnoreDuplicates Resolution = "ignore-duplicates"

	// ResolutionMergeDuplicates upserts: conflicting rows are updated with
	// the incoming field values. Used for locally re-aggregated kinds.
	ResolutionMergeDuplicates Resolution = "merge-duplicates"
)

// MaxBatchSize is the fixed upper bound on records per POST.
const MaxBatchSize = 1000

// TokenSource yields the bearer access token for authenticated calls. An
// empty token means anonymous (apikey-only) operation, which is permitted.
type TokenSource func(ctx context.Context) (string, error)

// Client talks to the remote store. All calls run under the retry executor.
type Client struct {
	BaseURL string
	APIKey  string
	Token   TokenSource
	HTTP    *http.Client

	policy RetryPolicy
	logger *slog.Logger
}

// NewClient creates a remote client. token may be nil for anonymous use and
// a nil logger falls back to slog.Default().
func NewClient(baseURL, apiKey string, token TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Token:   token,
		HTTP:    &http.Client{Timeout: 120 * time.Second},
		policy:  DefaultRetryPolicy(),
		logger:  logger,
	}
}

// SetRetryPolicy overrides the default backoff schedule (tests shrink it).
func (c *Client) SetRetryPolicy(policy RetryPolicy) { c.policy = policy }

// do executes one HTTP exchange under the retry executor. The request is
// rebuilt per attempt so the body can be re-sent. prefer values become the
// PostgREST Prefer header.
func (c *Client) do(ctx context.Context, method, requestURL string, body []byte, prefer ...string) ([]byte, error) {
	var respBody []byte
	err := executeWithRetry(ctx, c.policy, func(ctx context.Context) error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
		if err != nil {
			return fmt.Errorf("failed to create HTTP request: %w", err)
		}

		req.Header.Set("apikey", c.APIKey)
		req.Header.Set("Content-Type", "application/json")
		for _, p := range prefer {
			req.Header.Add("Prefer", p)
		}
		if c.Token != nil {
			token, err := c.Token(ctx)
			if err != nil {
				return &tokenError{err: err}
			}
			if token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send HTTP request: %w", err)
		}
		defer resp.Body.Close()

		data, _ := io.ReadAll(resp.Body)
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &HTTPError{StatusCode: resp.StatusCode, Body: string(data)}
		}
		respBody = data
		return nil
	})
	return respBody, err
}

// FindPatient looks up the patient id for a device, returning "" when no
// record exists yet.
func (c *Client) FindPatient(ctx context.Context, deviceID string) (string, error) {
	query := url.Values{
		"device_id": {"eq." + deviceID},
		"select":    {"id"},
	}
	data, err := c.do(ctx, http.MethodGet, c.BaseURL+"/rest/v1/patients?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to query patient: %w", err)
	}

	var patients []patientRecord
	if err := json.Unmarshal(data, &patients); err != nil {
		return "", fmt.Errorf("failed to decode patients response: %w", err)
	}
	if len(patients) == 0 {
		return "", nil
	}
	return patients[0].ID, nil
}

// CreatePatient creates the patient record for a device and returns the
// remote-assigned id. A uniqueness conflict surfaces as an HTTP 409
// (IsConflict); callers re-query in that case.
func (c *Client) CreatePatient(ctx context.Context, deviceID string) (string, error) {
	body, err := json.Marshal(patientRecord{DeviceID: deviceID})
	if err != nil {
		return "", fmt.Errorf("failed to marshal patient: %w", err)
	}

	data, err := c.do(ctx, http.MethodPost, c.BaseURL+"/rest/v1/patients", body, "return=representation")
	if err != nil {
		return "", err
	}

	var patients []patientRecord
	if err := json.Unmarshal(data, &patients); err != nil {
		return "", fmt.Errorf("failed to decode created patient: %w", err)
	}
	if len(patients) == 0 || patients[0].ID == "" {
		return "", fmt.Errorf("patient creation returned no id")
	}
	return patients[0].ID, nil
}

// InsertRecords posts records to a table in batches of MaxBatchSize, with
// the given duplicate resolution. onConflict names the unique constraint
// columns for ignore-duplicates tables ("" lets the primary key apply).
func InsertRecords[T any](ctx context.Context, c *Client, table string, records []T, resolution Resolution, onConflict string) error {
	target := c.BaseURL + "/rest/v1/" + table
	if onConflict != "" {
		target += "?on_conflict=" + url.QueryEscape(onConflict)
	}

	for start := 0; start < len(records); start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > len(records) {
			end = len(records)
		}
		body, err := json.Marshal(records[start:end])
		if err != nil {
			return fmt.Errorf("failed to marshal %s batch: %w", table, err)
		}
		if _, err := c.do(ctx, http.MethodPost, target, body, "resolution="+string(resolution)); err != nil {
			return fmt.Errorf("failed to post %s batch: %w", table, err)
		}
		c.logger.Debug("posted batch", "table", table, "records", end-start, "resolution", resolution)
	}
	return nil
}

// BeginSyncAttempt creates the sync_history row for an attempt and returns
// its id.
func (c *Client) BeginSyncAttempt(ctx context.Context, start SyncAttemptStart) (string, error) {
	body, err := json.Marshal(start)
	if err != nil {
		return "", fmt.Errorf("failed to marshal sync attempt: %w", err)
	}

	data, err := c.do(ctx, http.MethodPost, c.BaseURL+"/rest/v1/sync_history", body, "return=representation")
	if err != nil {
		return "", err
	}

	var rows []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return "", fmt.Errorf("failed to decode sync history response: %w", err)
	}
	if len(rows) == 0 || rows[0].ID == "" {
		return "", fmt.Errorf("sync history creation returned no id")
	}
	return rows[0].ID, nil
}

// CompleteSyncAttempt finalizes a sync_history row as completed.
func (c *Client) CompleteSyncAttempt(ctx context.Context, attemptID string, completion SyncAttemptCompletion) error {
	return c.patchSyncAttempt(ctx, attemptID, completion)
}

// FailSyncAttempt finalizes a sync_history row as failed.
func (c *Client) FailSyncAttempt(ctx context.Context, attemptID string, failure SyncAttemptFailure) error {
	return c.patchSyncAttempt(ctx, attemptID, failure)
}

func (c *Client) patchSyncAttempt(ctx context.Context, attemptID string, update any) error {
	body, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("failed to marshal sync history update: %w", err)
	}
	target := c.BaseURL + "/rest/v1/sync_history?id=eq." + url.QueryEscape(attemptID)
	if _, err := c.do(ctx, http.MethodPatch, target, body); err != nil {
		return fmt.Errorf("failed to update sync history: %w", err)
	}
	return nil
}
