package badger

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3-social/profile-keys-go/pkg/logger"
	"github.com/web3-social/profile-keys-go/pkg/persistence"
	"github.com/web3-social/profile-keys-go/pkg/persistence/persistenceTest"
)

func newTestPersistence(t *testing.T) persistence.IProtocolPersistence {
	bp, err := NewBadgerPersistence(t.TempDir(), logger.NewTestLogger())
	require.NoError(t, err)
	return bp
}

func TestBadgerPersistence(t *testing.T) {
	persistenceTest.Run(t, newTestPersistence)
}

func TestBadgerPersistence_InterfaceCompliance(t *testing.T) {
	var _ persistence.IProtocolPersistence = (*BadgerPersistence)(nil)
}

func TestBadgerPersistence_SurvivesRestart(t *testing.T) {
	tmpDir := t.TempDir()
	testLogger := logger.NewTestLogger()

	bp, err := NewBadgerPersistence(tmpDir, testLogger)
	require.NoError(t, err)

	contract := persistenceTest.RandomAddress()
	owner := persistenceTest.RandomAddress()
	actor := persistenceTest.RandomAddress()

	require.NoError(t, bp.CreateBinding(persistenceTest.NewBinding(contract, owner)))
	require.NoError(t, bp.AdvanceNonce(actor, uint256.NewInt(0), persistenceTest.NewRecord(actor, 0, "first")))
	require.NoError(t, bp.AdvanceNonce(actor, uint256.NewInt(1), persistenceTest.NewRecord(actor, 1, "second")))
	require.NoError(t, bp.Close())

	bp2, err := NewBadgerPersistence(tmpDir, testLogger)
	require.NoError(t, err)
	defer func() { _ = bp2.Close() }()

	loaded, err := bp2.LoadBinding(contract)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, owner, loaded.Owner)

	nonce, err := bp2.GetNonce(actor)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), nonce.Uint64())

	// a restart must not reopen a nonce that was already consumed
	err = bp2.AdvanceNonce(actor, uint256.NewInt(1), persistenceTest.NewRecord(actor, 1, "replay"))
	assert.ErrorIs(t, err, persistence.ErrNonceConflict)

	err = bp2.CreateBinding(persistenceTest.NewBinding(contract, persistenceTest.RandomAddress()))
	assert.ErrorIs(t, err, persistence.ErrBindingExists)

	actions, err := bp2.ListActions(actor)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, "first", actions[0].Content)
	assert.Equal(t, "second", actions[1].Content)
}

func TestBadgerPersistence_LargeNonceOrdering(t *testing.T) {
	bp, err := NewBadgerPersistence(t.TempDir(), logger.NewTestLogger())
	require.NoError(t, err)
	defer func() { _ = bp.Close() }()

	actor := persistenceTest.RandomAddress()
	for i := uint64(0); i < 20; i++ {
		require.NoError(t, bp.AdvanceNonce(actor, uint256.NewInt(i), persistenceTest.NewRecord(actor, i, "x")))
	}

	actions, err := bp.ListActions(actor)
	require.NoError(t, err)
	require.Len(t, actions, 20)
	assert.Equal(t, "9", actions[9].ActorNonce)
	assert.Equal(t, "19", actions[19].ActorNonce)
}
