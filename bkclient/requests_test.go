package bkclient

import (
	"testing"

	"github.com/quayledger/bkclient/internal/bkwire"
	"github.com/stretchr/testify/require"
)

func TestNextTxnIDIsMonotonicallyIncreasing(t *testing.T) {
	var a = nextTxnID()
	var b = nextTxnID()
	require.Greater(t, b, a)
}

func TestBuildAddRequestSetsRecoveryFlagOnlyWhenRequested(t *testing.T) {
	var plain = buildAddRequest(1, 7, 3, []byte("mk"), []byte("x"), 0)
	require.False(t, plain.Flag.Has(bkwire.FlagRecoveryAdd))

	var recovery = buildAddRequest(1, 7, 3, []byte("mk"), []byte("x"), RecoveryAdd)
	require.True(t, recovery.Flag.Has(bkwire.FlagRecoveryAdd))
	require.Equal(t, bkwire.OpAdd, recovery.Op)
	require.EqualValues(t, 7, recovery.LedgerID)
	require.EqualValues(t, 3, recovery.EntryID)
}

func TestBuildReadRequestCarriesNoMasterKeyOrFlag(t *testing.T) {
	var req = buildReadRequest(2, 1, 42)
	require.Equal(t, bkwire.OpRead, req.Op)
	require.Nil(t, req.MasterKey)
	require.Zero(t, req.Flag)
}

func TestBuildReadAndFenceRequestSetsFenceFlagAndMasterKey(t *testing.T) {
	var req = buildReadAndFenceRequest(3, 2, 0, []byte("mk"))
	require.True(t, req.Flag.Has(bkwire.FlagFenceLedger))
	require.Equal(t, []byte("mk"), req.MasterKey)
}
