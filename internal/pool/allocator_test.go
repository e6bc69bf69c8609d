package pool

import (
	"fmt"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wirevault/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection keeps the in-memory database shared between
	// goroutines and sidesteps SQLITE_BUSY under contention
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, models.AutoMigrate(db))
	return db
}

func seedCredentials(t *testing.T, db *gorm.DB, n int, at models.AssignmentType) []models.Credential {
	t.Helper()

	creds := make([]models.Credential, 0, n)
	for i := 0; i < n; i++ {
		cred := models.Credential{
			FileHash:       fmt.Sprintf("%064d", seedSeq()),
			PrivateKey:     fmt.Sprintf("key-%d", i),
			InterfaceIP:    fmt.Sprintf("10.8.0.%d/24", i+2),
			IPv4Address:    fmt.Sprintf("10.8.0.%d", i+2),
			Endpoint:       "vpn.example.com:51820",
			AssignmentType: at,
			IsAvailable:    true,
			IsActive:       true,
		}
		require.NoError(t, db.Create(&cred).Error)
		creds = append(creds, cred)
	}
	return creds
}

var seedCounter int

func seedSeq() int {
	seedCounter++
	return seedCounter
}

func TestClaimForUser(t *testing.T) {
	db := setupTestDB(t)
	seedCredentials(t, db, 5, models.AssignmentTypeUserRequestable)

	alloc := NewAllocator(db)
	user := &models.User{ID: 1, Username: "alice"}

	result, err := alloc.ClaimForUser(user, 3, models.AssignmentTypeUserRequestable)
	require.NoError(t, err)

	assert.Equal(t, 3, result.AssignedCount)
	assert.Len(t, result.Credentials, 3)
	assert.Equal(t, "Assigned 3 credential(s)", result.Message)
	assert.NotEmpty(t, result.BatchID)

	for _, cred := range result.Credentials {
		assert.False(t, cred.IsAvailable)
		require.NotNil(t, cred.AssignedToUserID)
		assert.Equal(t, uint(1), *cred.AssignedToUserID)
		assert.Equal(t, "alice", cred.AssignedToUsername)
		assert.NotNil(t, cred.AssignedAt)
		require.NotNil(t, cred.RequestBatchID)
		assert.Equal(t, result.BatchID, *cred.RequestBatchID)
	}

	var remaining int64
	db.Model(&models.Credential{}).Where("is_available = ?", true).Count(&remaining)
	assert.Equal(t, int64(2), remaining)
}

func TestClaimPartialSuccess(t *testing.T) {
	db := setupTestDB(t)
	seedCredentials(t, db, 2, models.AssignmentTypeUserRequestable)

	alloc := NewAllocator(db)
	user := &models.User{ID: 1, Username: "alice"}

	result, err := alloc.ClaimForUser(user, 5, models.AssignmentTypeUserRequestable)
	require.NoError(t, err)

	assert.Equal(t, 2, result.AssignedCount)
	assert.Equal(t, "Only 2 of 5 requested credentials were available", result.Message)
	assert.NotEmpty(t, result.BatchID)
}

func TestClaimEmptyPool(t *testing.T) {
	db := setupTestDB(t)
	// A populated pool of the wrong class must not satisfy the claim
	seedCredentials(t, db, 3, models.AssignmentTypeReserved)

	alloc := NewAllocator(db)
	user := &models.User{ID: 1, Username: "alice"}

	result, err := alloc.ClaimForUser(user, 2, models.AssignmentTypeUserRequestable)
	require.NoError(t, err)

	assert.Equal(t, 0, result.AssignedCount)
	assert.Empty(t, result.Credentials)
	assert.Empty(t, result.BatchID)
	assert.Equal(t, "No credentials available in the requested pool", result.Message)
}

func TestClaimTruncatesOversizedRequest(t *testing.T) {
	db := setupTestDB(t)
	seedCredentials(t, db, MaxCredentialsPerRequest+10, models.AssignmentTypeUserRequestable)

	alloc := NewAllocator(db)
	user := &models.User{ID: 1, Username: "alice"}

	result, err := alloc.ClaimForUser(user, 100, models.AssignmentTypeUserRequestable)
	require.NoError(t, err)
	assert.Equal(t, MaxCredentialsPerRequest, result.AssignedCount)
	assert.Equal(t, fmt.Sprintf("Assigned %d credential(s)", MaxCredentialsPerRequest), result.Message)
}

func TestClaimInvalidType(t *testing.T) {
	db := setupTestDB(t)
	alloc := NewAllocator(db)

	_, err := alloc.Claim(ClaimRequest{Count: 1, AssignmentType: "bogus"})
	assert.ErrorIs(t, err, ErrInvalidAssignmentType)
}

func TestClaimBatchIdentity(t *testing.T) {
	db := setupTestDB(t)
	seedCredentials(t, db, 6, models.AssignmentTypeUserRequestable)

	alloc := NewAllocator(db)
	user := &models.User{ID: 1, Username: "alice"}

	first, err := alloc.ClaimForUser(user, 2, models.AssignmentTypeUserRequestable)
	require.NoError(t, err)
	second, err := alloc.ClaimForUser(user, 2, models.AssignmentTypeUserRequestable)
	require.NoError(t, err)

	assert.NotEqual(t, first.BatchID, second.BatchID)
	for _, cred := range second.Credentials {
		assert.Equal(t, second.BatchID, *cred.RequestBatchID)
	}
}

func TestClaimConcurrentNoDoubleAllocation(t *testing.T) {
	db := setupTestDB(t)
	seedCredentials(t, db, 10, models.AssignmentTypeUserRequestable)

	alloc := NewAllocator(db)

	const workers = 5
	results := make([]*ClaimResult, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			uid := uint(w + 1)
			results[w], errs[w] = alloc.Claim(ClaimRequest{
				UserID:         &uid,
				Username:       fmt.Sprintf("user%d", uid),
				Count:          3,
				AssignmentType: models.AssignmentTypeUserRequestable,
			})
		}(w)
	}
	wg.Wait()

	seen := make(map[uint]int)
	total := 0
	for w, result := range results {
		require.NoError(t, errs[w])
		total += result.AssignedCount
		for _, cred := range result.Credentials {
			seen[cred.ID]++
		}
	}

	assert.Equal(t, 10, total, "every credential should be handed out exactly once")
	for id, n := range seen {
		assert.Equal(t, 1, n, "credential %d claimed more than once", id)
	}

	var available int64
	db.Model(&models.Credential{}).Where("is_available = ?", true).Count(&available)
	assert.Equal(t, int64(0), available)
}

func TestReserveForInstanceAndLink(t *testing.T) {
	db := setupTestDB(t)
	seedCredentials(t, db, 1, models.AssignmentTypeInstanceAutoAssign)

	alloc := NewAllocator(db)

	// Reserve without an instance id, then link once the instance exists
	cred, err := alloc.ReserveForInstance(nil)
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.False(t, cred.IsAvailable)
	assert.Nil(t, cred.AssignedToUserID)
	assert.Nil(t, cred.AssignedToInstanceID)

	require.NoError(t, alloc.LinkInstance(cred.ID, 7))

	var linked models.Credential
	require.NoError(t, db.First(&linked, cred.ID).Error)
	require.NotNil(t, linked.AssignedToInstanceID)
	assert.Equal(t, uint(7), *linked.AssignedToInstanceID)

	// Linking twice fails: the credential is no longer reserved
	assert.Error(t, alloc.LinkInstance(cred.ID, 8))
}

func TestLinkInstanceRejectsDeactivated(t *testing.T) {
	db := setupTestDB(t)
	seeded := seedCredentials(t, db, 1, models.AssignmentTypeUserRequestable)

	alloc := NewAllocator(db)
	user := &models.User{ID: 1, Username: "alice"}

	// Claim, revoke the user, then release. The release clears the
	// assignment but the row stays retired.
	_, err := alloc.ClaimForUser(user, 1, models.AssignmentTypeUserRequestable)
	require.NoError(t, err)

	revoked, err := alloc.DeactivateForUser(user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), revoked)

	require.NoError(t, alloc.Release(seeded[0].ID))

	// The retired row looks like a reservation (unavailable, no owner)
	// but must never be linkable to an instance
	assert.Error(t, alloc.LinkInstance(seeded[0].ID, 42))

	var cred models.Credential
	require.NoError(t, db.First(&cred, seeded[0].ID).Error)
	assert.Nil(t, cred.AssignedToInstanceID)
	assert.False(t, cred.IsActive)
	assert.False(t, cred.IsAvailable)
}

func TestReserveForInstanceDirect(t *testing.T) {
	db := setupTestDB(t)
	seedCredentials(t, db, 3, models.AssignmentTypeInstanceAutoAssign)

	alloc := NewAllocator(db)
	instanceID := uint(12)

	cred, err := alloc.ReserveForInstance(&instanceID)
	require.NoError(t, err)
	require.NotNil(t, cred)
	require.NotNil(t, cred.AssignedToInstanceID)
	assert.Equal(t, instanceID, *cred.AssignedToInstanceID)
}

func TestReserveForInstanceNoCapacity(t *testing.T) {
	db := setupTestDB(t)
	alloc := NewAllocator(db)

	cred, err := alloc.ReserveForInstance(nil)
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestRelease(t *testing.T) {
	db := setupTestDB(t)
	seedCredentials(t, db, 1, models.AssignmentTypeUserRequestable)

	alloc := NewAllocator(db)
	user := &models.User{ID: 1, Username: "alice"}

	result, err := alloc.ClaimForUser(user, 1, models.AssignmentTypeUserRequestable)
	require.NoError(t, err)
	credID := result.Credentials[0].ID

	require.NoError(t, alloc.Release(credID))

	var cred models.Credential
	require.NoError(t, db.First(&cred, credID).Error)
	assert.True(t, cred.IsAvailable)
	assert.Nil(t, cred.AssignedToUserID)
	assert.Nil(t, cred.AssignedToInstanceID)
	assert.Empty(t, cred.AssignedToUsername)
	assert.Nil(t, cred.AssignedAt)
	assert.Nil(t, cred.RequestBatchID)
}

func TestReleaseDeactivatedStaysUnavailable(t *testing.T) {
	db := setupTestDB(t)
	seeded := seedCredentials(t, db, 1, models.AssignmentTypeUserRequestable)

	alloc := NewAllocator(db)
	user := &models.User{ID: 1, Username: "alice"}

	_, err := alloc.ClaimForUser(user, 1, models.AssignmentTypeUserRequestable)
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Credential{}).
		Where("id = ?", seeded[0].ID).
		Update("is_active", false).Error)

	require.NoError(t, alloc.Release(seeded[0].ID))

	var cred models.Credential
	require.NoError(t, db.First(&cred, seeded[0].ID).Error)
	assert.False(t, cred.IsAvailable, "deactivated credentials never return to the pool")
	assert.Nil(t, cred.AssignedToUserID)
}

func TestReleaseNotFound(t *testing.T) {
	db := setupTestDB(t)
	alloc := NewAllocator(db)

	assert.ErrorIs(t, alloc.Release(9999), ErrCredentialNotFound)
}

func TestReleaseByInstance(t *testing.T) {
	db := setupTestDB(t)
	seedCredentials(t, db, 2, models.AssignmentTypeInstanceAutoAssign)

	alloc := NewAllocator(db)
	instanceID := uint(3)

	cred, err := alloc.ReserveForInstance(&instanceID)
	require.NoError(t, err)
	require.NotNil(t, cred)

	require.NoError(t, alloc.ReleaseByInstance(instanceID))

	var released models.Credential
	require.NoError(t, db.First(&released, cred.ID).Error)
	assert.True(t, released.IsAvailable)
	assert.Nil(t, released.AssignedToInstanceID)

	// Releasing an instance that holds nothing is a no-op
	require.NoError(t, alloc.ReleaseByInstance(999))
}

func TestDeactivateForUser(t *testing.T) {
	db := setupTestDB(t)
	seedCredentials(t, db, 3, models.AssignmentTypeUserRequestable)

	alloc := NewAllocator(db)
	user := &models.User{ID: 4, Username: "carol"}

	result, err := alloc.ClaimForUser(user, 2, models.AssignmentTypeUserRequestable)
	require.NoError(t, err)
	require.Equal(t, 2, result.AssignedCount)

	revoked, err := alloc.DeactivateForUser(user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), revoked)

	var inactive int64
	db.Model(&models.Credential{}).
		Where("is_active = ? AND is_available = ?", false, false).
		Count(&inactive)
	assert.Equal(t, int64(2), inactive)

	var available int64
	db.Model(&models.Credential{}).Where("is_available = ?", true).Count(&available)
	assert.Equal(t, int64(1), available)
}

func TestStats(t *testing.T) {
	db := setupTestDB(t)
	seedCredentials(t, db, 4, models.AssignmentTypeUserRequestable)
	seedCredentials(t, db, 2, models.AssignmentTypeInstanceAutoAssign)

	alloc := NewAllocator(db)
	user := &models.User{ID: 1, Username: "alice"}

	_, err := alloc.ClaimForUser(user, 1, models.AssignmentTypeUserRequestable)
	require.NoError(t, err)

	stats, err := alloc.Stats()
	require.NoError(t, err)
	require.Len(t, stats, 2)

	byType := make(map[models.AssignmentType]PoolStats)
	for _, s := range stats {
		byType[s.AssignmentType] = s
	}

	ur := byType[models.AssignmentTypeUserRequestable]
	assert.Equal(t, int64(4), ur.Total)
	assert.Equal(t, int64(3), ur.Available)
	assert.Equal(t, int64(1), ur.Assigned)
	assert.Equal(t, int64(0), ur.Inactive)

	ia := byType[models.AssignmentTypeInstanceAutoAssign]
	assert.Equal(t, int64(2), ia.Total)
	assert.Equal(t, int64(2), ia.Available)
}
