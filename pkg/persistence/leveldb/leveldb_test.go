package leveldb

import (
	"path/filepath"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3-social/profile-keys-go/pkg/logger"
	"github.com/web3-social/profile-keys-go/pkg/persistence"
	"github.com/web3-social/profile-keys-go/pkg/persistence/persistenceTest"
)

func newTestPersistence(t *testing.T) persistence.IProtocolPersistence {
	lp, err := NewLevelDBPersistence(filepath.Join(t.TempDir(), "profile.db"), logger.NewTestLogger())
	require.NoError(t, err)
	return lp
}

func TestLevelDBPersistence(t *testing.T) {
	persistenceTest.Run(t, newTestPersistence)
}

func TestLevelDBPersistence_InterfaceCompliance(t *testing.T) {
	var _ persistence.IProtocolPersistence = (*LevelDBPersistence)(nil)
}

func TestLevelDBPersistence_SurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.db")
	testLogger := logger.NewTestLogger()

	lp, err := NewLevelDBPersistence(path, testLogger)
	require.NoError(t, err)

	contract := persistenceTest.RandomAddress()
	owner := persistenceTest.RandomAddress()
	actor := persistenceTest.RandomAddress()

	require.NoError(t, lp.CreateBinding(persistenceTest.NewBinding(contract, owner)))
	require.NoError(t, lp.AdvanceNonce(actor, uint256.NewInt(0), persistenceTest.NewRecord(actor, 0, "first")))
	require.NoError(t, lp.Close())

	lp2, err := NewLevelDBPersistence(path, testLogger)
	require.NoError(t, err)
	defer func() { _ = lp2.Close() }()

	loaded, err := lp2.LoadBinding(contract)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, owner, loaded.Owner)

	nonce, err := lp2.GetNonce(actor)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), nonce.Uint64())

	err = lp2.AdvanceNonce(actor, uint256.NewInt(0), persistenceTest.NewRecord(actor, 0, "replay"))
	assert.ErrorIs(t, err, persistence.ErrNonceConflict)

	record, err := lp2.LoadAction(actor, uint256.NewInt(0))
	require.NoError(t, err)
	assert.Equal(t, "first", record.Content)
}
