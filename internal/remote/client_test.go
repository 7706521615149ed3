// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, "test-anon-key", nil, nil)
	c.SetRetryPolicy(RetryPolicy{MaxAttempts: 4, BaseDelay: time.Millisecond})
	return c
}

func TestClientSendsAPIKeyAndContentType(t *testing.T) {
	var gotAPIKey, gotContentType, gotAuth string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAPIKey = r.Header.Get("apikey")
		gotContentType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `[]`)
	}))

	_, err := c.FindPatient(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "test-anon-key", gotAPIKey)
	assert.Equal(t, "application/json", gotContentType)
	assert.Empty(t, gotAuth, "anonymous client must not send a bearer token")
}

func TestClientSendsBearerTokenWhenProvided(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	token := func(ctx context.Context) (string, error) { return "jwt-token", nil }
	c := NewClient(srv.URL, "key", token, nil)

	_, err := c.FindPatient(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer jwt-token", gotAuth)
}

func TestTokenSourceFailureIsTerminal(t *testing.T) {
	var serverCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serverCalls.Add(1)
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	var tokenCalls atomic.Int32
	token := func(ctx context.Context) (string, error) {
		tokenCalls.Add(1)
		return "", errors.New("keychain unavailable")
	}
	c := NewClient(srv.URL, "key", token, nil)
	c.SetRetryPolicy(RetryPolicy{MaxAttempts: 4, BaseDelay: time.Millisecond})

	_, err := c.FindPatient(context.Background(), "dev-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access token")
	assert.Equal(t, int32(1), tokenCalls.Load(), "a broken token provider must not be retried")
	assert.Zero(t, serverCalls.Load(), "no request leaves the client without a token decision")
}

func TestFindPatient(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/v1/patients", r.URL.Path)
		assert.Equal(t, "eq.dev-1", r.URL.Query().Get("device_id"))
		assert.Equal(t, "id", r.URL.Query().Get("select"))
		fmt.Fprint(w, `[{"id":"patient-1","device_id":"dev-1"}]`)
	}))

	id, err := c.FindPatient(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "patient-1", id)
}

func TestFindPatientAbsent(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))

	id, err := c.FindPatient(context.Background(), "dev-unknown")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestCreatePatient(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/v1/patients", r.URL.Path)
		assert.Contains(t, r.Header.Values("Prefer"), "return=representation")

		var body patientRecord
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "dev-1", body.DeviceID)

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `[{"id":"patient-new","device_id":"dev-1"}]`)
	}))

	id, err := c.CreatePatient(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "patient-new", id)
}

func TestCreatePatientConflictIsTerminal(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"code":"23505"}`)
	}))

	_, err := c.CreatePatient(context.Background(), "dev-1")
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	assert.Equal(t, int32(1), calls.Load(), "409 must not be retried")
}

func TestCreatePatientEmptyResponse(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))

	_, err := c.CreatePatient(context.Background(), "dev-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no id")
}

func TestInsertRecordsResolutionAndConflictKey(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/locations", r.URL.Path)
		assert.Equal(t, LocationConflictKey, r.URL.Query().Get("on_conflict"))
		assert.Contains(t, r.Header.Values("Prefer"), "resolution=ignore-duplicates")
		w.WriteHeader(http.StatusCreated)
	}))

	records := []LocationRecord{{PatientID: "p1", Latitude: 47.6, Longitude: -122.3, VisitedAt: time.Now()}}
	err := InsertRecords(context.Background(), c, "locations", records, ResolutionIgnoreDuplicates, LocationConflictKey)
	require.NoError(t, err)
}

func TestInsertRecordsChunksAtMaxBatchSize(t *testing.T) {
	var batches []int
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rows []HealthSampleRecord
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rows))
		batches = append(batches, len(rows))
		w.WriteHeader(http.StatusCreated)
	}))

	records := make([]HealthSampleRecord, MaxBatchSize*2+5)
	for i := range records {
		records[i] = HealthSampleRecord{ID: fmt.Sprintf("id-%d", i), PatientID: "p1"}
	}
	err := InsertRecords(context.Background(), c, "health_samples", records, ResolutionMergeDuplicates, "")
	require.NoError(t, err)
	assert.Equal(t, []int{MaxBatchSize, MaxBatchSize, 5}, batches)
}

func TestInsertRecordsRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	records := []ClinicalEventRecord{{ID: "e1", PatientID: "p1", OccurredAt: time.Now()}}
	err := InsertRecords(context.Background(), c, "clinical_events", records, ResolutionIgnoreDuplicates, "id")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestInsertRecordsBadRequestIsTerminal(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"message":"malformed"}`)
	}))

	records := []ClinicalEventRecord{{ID: "e1", PatientID: "p1"}}
	err := InsertRecords(context.Background(), c, "clinical_events", records, ResolutionIgnoreDuplicates, "")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestInsertRecordsEmptySliceMakesNoCalls(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))

	err := InsertRecords(context.Background(), c, "health_samples", []HealthSampleRecord(nil), ResolutionMergeDuplicates, "")
	require.NoError(t, err)
	assert.Zero(t, calls.Load())
}

func TestBeginSyncAttempt(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/v1/sync_history", r.URL.Path)

		var body SyncAttemptStart
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "initial", body.SyncType)
		assert.Equal(t, "in_progress", body.Status)

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `[{"id":"attempt-7"}]`)
	}))

	id, err := c.BeginSyncAttempt(context.Background(), SyncAttemptStart{
		PatientID: "p1", SyncType: "initial", StartedAt: time.Now(), Status: "in_progress",
	})
	require.NoError(t, err)
	assert.Equal(t, "attempt-7", id)
}

func TestCompleteSyncAttemptPatchesByID(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/rest/v1/sync_history", r.URL.Path)
		assert.Equal(t, "eq.attempt-7", r.URL.Query().Get("id"))

		var body SyncAttemptCompletion
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "completed", body.Status)
		assert.Equal(t, 5, body.RecordsSynced)
		w.WriteHeader(http.StatusNoContent)
	}))

	err := c.CompleteSyncAttempt(context.Background(), "attempt-7", SyncAttemptCompletion{
		CompletedAt: time.Now(), Status: "completed", RecordsSynced: 5,
		HealthCount: 3, ScreenTimeCount: 2,
	})
	require.NoError(t, err)
}

func TestFailSyncAttempt(t *testing.T) {
	var body SyncAttemptFailure
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusNoContent)
	}))

	err := c.FailSyncAttempt(context.Background(), "attempt-7", SyncAttemptFailure{
		CompletedAt: time.Now(), Status: "failed", ErrorMessage: "upload failed",
	})
	require.NoError(t, err)
	assert.Equal(t, "failed", body.Status)
	assert.Equal(t, "upload failed", body.ErrorMessage)
}
