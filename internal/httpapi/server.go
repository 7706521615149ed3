// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package httpapi is the daemon's local admin surface: health probe, sync
// status, and the manual sync trigger. It is not the clinician dashboard;
// it exists so operators can trigger and observe sync without the CLI.
package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/omarrahmanbusiness/qolsync/internal/store"
	"github.com/omarrahmanbusiness/qolsync/internal/syncer"
)

// Server wires the admin routes.
type Server struct {
	orch   *syncer.Orchestrator
	store  *store.Store
	logger *slog.Logger
}

// New creates the admin server.
func New(orch *syncer.Orchestrator, st *store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{orch: orch, store: st, logger: logger}
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	{
		v1.GET("/status", s.status)
		v1.POST("/sync", s.triggerSync)
	}
	return r
}

type syncResponse struct {
	Type        string    `json:"type"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Records     int       `json:"records_synced"`
	Health      int       `json:"health_samples_count"`
	Locations   int       `json:"locations_count"`
	ScreenTime  int       `json:"screen_time_count"`
	Clinical    int       `json:"clinical_events_count"`
}

// triggerSync runs a manual sync and returns its result synchronously. A
// sync already in flight maps to 409.
func (s *Server) triggerSync(c *gin.Context) {
	result, err := s.orch.RunSync(c.Request.Context())
	if err != nil {
		if errors.Is(err, syncer.ErrSyncInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": "sync already in progress"})
			return
		}
		s.logger.Error("manual sync failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, syncResponse{
		Type:        string(result.Type),
		StartedAt:   result.StartedAt,
		CompletedAt: result.CompletedAt,
		Records:     result.Counts.Total(),
		Health:      result.Counts.HealthSamples,
		Locations:   result.Counts.Locations,
		ScreenTime:  result.Counts.ScreenTime,
		Clinical:    result.Counts.ClinicalEvents,
	})
}

func (s *Server) status(c *gin.Context) {
	ctx := c.Request.Context()

	lastSync, err := s.store.LastSyncAt(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	patientID, err := s.store.PatientID(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	deviceID, err := s.store.DeviceID(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	counts, err := s.store.RecordCounts(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{
		"device_id":     deviceID,
		"patient_id":    patientID,
		"sync_running":  s.orch.Running(),
		"record_counts": counts,
	}
	if lastSync != nil {
		resp["last_sync_at"] = lastSync
	}
	c.JSON(http.StatusOK, resp)
}
