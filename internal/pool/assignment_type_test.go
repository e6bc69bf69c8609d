package pool

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wirevault/backend/internal/models"
)

func TestSetAssignmentType(t *testing.T) {
	db := setupTestDB(t)
	seeded := seedCredentials(t, db, 1, models.AssignmentTypeUserRequestable)

	mgr := NewTypeManager(db)
	require.NoError(t, mgr.SetAssignmentType(seeded[0].ID, models.AssignmentTypeReserved))

	var cred models.Credential
	require.NoError(t, db.First(&cred, seeded[0].ID).Error)
	assert.Equal(t, models.AssignmentTypeReserved, cred.AssignmentType)
}

func TestSetAssignmentTypeInvalid(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewTypeManager(db)

	assert.ErrorIs(t, mgr.SetAssignmentType(1, "bogus"), ErrInvalidAssignmentType)
}

func TestSetAssignmentTypeNotFound(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewTypeManager(db)

	assert.ErrorIs(t, mgr.SetAssignmentType(9999, models.AssignmentTypeReserved), ErrCredentialNotFound)
}

func TestSetAssignmentTypeStillAssigned(t *testing.T) {
	db := setupTestDB(t)
	seeded := seedCredentials(t, db, 1, models.AssignmentTypeUserRequestable)

	alloc := NewAllocator(db)
	user := &models.User{ID: 1, Username: "alice"}
	_, err := alloc.ClaimForUser(user, 1, models.AssignmentTypeUserRequestable)
	require.NoError(t, err)

	mgr := NewTypeManager(db)
	err = mgr.SetAssignmentType(seeded[0].ID, models.AssignmentTypeReserved)
	require.Error(t, err)

	var stillAssigned *StillAssignedError
	require.True(t, errors.As(err, &stillAssigned))
	assert.Equal(t, seeded[0].ID, stillAssigned.CredentialID)

	// The class must be untouched by the failed change
	var cred models.Credential
	require.NoError(t, db.First(&cred, seeded[0].ID).Error)
	assert.Equal(t, models.AssignmentTypeUserRequestable, cred.AssignmentType)
}

func TestBulkSetAssignmentType(t *testing.T) {
	db := setupTestDB(t)
	seeded := seedCredentials(t, db, 3, models.AssignmentTypeUserRequestable)

	// Claim one so the bulk change partially fails
	alloc := NewAllocator(db)
	user := &models.User{ID: 1, Username: "alice"}
	result, err := alloc.ClaimForUser(user, 1, models.AssignmentTypeUserRequestable)
	require.NoError(t, err)
	claimedID := result.Credentials[0].ID

	ids := []uint{seeded[0].ID, seeded[1].ID, seeded[2].ID, 9999}
	mgr := NewTypeManager(db)
	bulk, err := mgr.BulkSetAssignmentType(ids, models.AssignmentTypeInstanceAutoAssign)
	require.NoError(t, err)

	assert.Equal(t, 2, bulk.Updated)
	assert.Equal(t, 2, bulk.Failed)
	require.Len(t, bulk.Failures, 2)
	assert.Contains(t, bulk.Failures, "credential 9999: credential not found")

	var stillHeld models.Credential
	require.NoError(t, db.First(&stillHeld, claimedID).Error)
	assert.Equal(t, models.AssignmentTypeUserRequestable, stillHeld.AssignmentType)
}

func TestBulkSetAssignmentTypeInvalid(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewTypeManager(db)

	_, err := mgr.BulkSetAssignmentType([]uint{1, 2}, "bogus")
	assert.ErrorIs(t, err, ErrInvalidAssignmentType)
}
