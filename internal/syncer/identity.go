// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"fmt"

	"github.com/omarrahmanbusiness/qolsync/internal/remote"
)

// resolveIdentity maps the stable device id to the remote patient id.
// Check-then-create with race tolerance: a cached id is returned without a
// remote call; otherwise query, then create, and on a uniqueness conflict
// (another process created the patient concurrently) re-query for the
// winner's id. At most one patient exists per device id.
func (o *Orchestrator) resolveIdentity(ctx context.Context) (string, error) {
	if cached, err := o.store.PatientID(ctx); err != nil {
		return "", err
	} else if cached != "" {
		return cached, nil
	}

	deviceID, err := o.store.DeviceID(ctx)
	if err != nil {
		return "", err
	}

	patientID, err := o.remote.FindPatient(ctx, deviceID)
	if err != nil {
		return "", err
	}

	if patientID == "" {
		patientID, err = o.remote.CreatePatient(ctx, deviceID)
		if remote.IsConflict(err) {
			o.logger.Info("patient created concurrently elsewhere, re-querying", "device_id", deviceID)
			patientID, err = o.remote.FindPatient(ctx, deviceID)
			if err == nil && patientID == "" {
				err = fmt.Errorf("patient missing after uniqueness conflict for device %s", deviceID)
			}
		}
		if err != nil {
			return "", err
		}
	}

	if err := o.store.SetPatientID(ctx, patientID); err != nil {
		return "", err
	}
	return patientID, nil
}
