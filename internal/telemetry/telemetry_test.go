// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestRecordDecisionCountsMatches(t *testing.T) {
	tel := New()
	tel.RecordDecision(true)
	tel.RecordDecision(false)
	snap := tel.Snapshot()
	require.Equal(t, uint64(2), snap.Decisions)
	require.Equal(t, uint64(1), snap.Matches)
}

func TestRecordErrorSetsLastError(t *testing.T) {
	tel := New()
	tel.RecordError("boom")
	snap := tel.Snapshot()
	require.Equal(t, uint64(1), snap.Errors)
	require.NotNil(t, snap.LastError)
	require.Equal(t, "boom", *snap.LastError)
}

func TestRegisterAttachesAllCollectors(t *testing.T) {
	tel := New()
	reg := prometheus.NewRegistry()
	require.NoError(t, tel.Register(reg))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 6)
}
