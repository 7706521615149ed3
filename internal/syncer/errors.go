// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"errors"
	"fmt"
)

// ErrSyncInProgress is returned when RunSync is invoked while another
// attempt is in flight. The caller should not queue; the next scheduled run
// picks up any delta.
var ErrSyncInProgress = errors.New("sync already in progress")

// IdentityError means remote identity resolution failed; no entity sync ran.
type IdentityError struct {
	Err error
}

func (e *IdentityError) Error() string { return fmt.Sprintf("identity resolution failed: %v", e.Err) }
func (e *IdentityError) Unwrap() error { return e.Err }

// StoreError means a local store read or write failed. Nothing was sent to
// the remote for the failing operation.
type StoreError struct {
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("local store access failed: %v", e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

// AttemptError means the remote sync_history record could not be created or
// finalized; the attempt aborts for traceability.
type AttemptError struct {
	Err error
}

func (e *AttemptError) Error() string { return fmt.Sprintf("sync attempt recording failed: %v", e.Err) }
func (e *AttemptError) Unwrap() error { return e.Err }

// EntityError means syncing one entity kind failed; the whole attempt is
// aborted and the cursor is not advanced.
type EntityError struct {
	Kind EntityKind
	Err  error
}

func (e *EntityError) Error() string { return fmt.Sprintf("sync of %s failed: %v", e.Kind, e.Err) }
func (e *EntityError) Unwrap() error { return e.Err }
