package pool

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/wirevault/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// MaxCredentialsPerRequest caps a single self-service claim. Requests
	// above the cap are truncated, not rejected - callers depend on that.
	MaxCredentialsPerRequest = 25

	// casRetryLimit bounds the compare-and-swap refill passes on backends
	// without row locks, preserving the never-block guarantee.
	casRetryLimit = 3
)

// Allocator claims credentials from the shared pool under concurrent
// contention. On PostgreSQL it locks candidate rows with FOR UPDATE SKIP
// LOCKED so concurrent claims never wait on each other; on other dialects
// it falls back to a bounded compare-and-swap loop on is_available.
type Allocator struct {
	db         *gorm.DB
	skipLocked bool
}

func NewAllocator(db *gorm.DB) *Allocator {
	return &Allocator{
		db:         db,
		skipLocked: db.Dialector.Name() == "postgres",
	}
}

// ClaimRequest describes one claim call. Exactly one of UserID and
// InstanceID is set for direct assignment; both nil reserves the row for
// an instance whose identifier is not known yet (see LinkInstance).
type ClaimRequest struct {
	UserID         *uint
	Username       string
	InstanceID     *uint
	Count          int
	AssignmentType models.AssignmentType
}

// ClaimResult reports the outcome of a claim. AssignedCount may be lower
// than requested (partial success) or zero (no capacity); neither is an
// error.
type ClaimResult struct {
	AssignedCount int                 `json:"assigned_count"`
	Message       string              `json:"message"`
	BatchID       string              `json:"batch_id,omitempty"`
	Credentials   []models.Credential `json:"credentials"`
}

// Claim atomically takes up to req.Count available credentials of the
// requested pool class and stamps them with the requester reference, the
// assignment time and a batch id shared by the whole claimed set. All
// claimed rows commit together or not at all. Rows locked by a concurrent
// claim are skipped, never waited on; zero matching rows reports no
// capacity immediately.
func (a *Allocator) Claim(req ClaimRequest) (*ClaimResult, error) {
	if !models.ValidAssignmentType(req.AssignmentType) {
		return nil, ErrInvalidAssignmentType
	}

	count := req.Count
	if count < 1 {
		count = 1
	}
	if req.UserID != nil && count > MaxCredentialsPerRequest {
		count = MaxCredentialsPerRequest
	}
	if req.InstanceID != nil {
		// Instances hold exactly one credential each
		count = 1
	}

	batchID := uuid.New().String()
	now := time.Now().UTC()

	var claimed []models.Credential
	err := a.db.Transaction(func(tx *gorm.DB) error {
		attempts := 1
		if !a.skipLocked {
			attempts = casRetryLimit
		}

		var claimedIDs []uint
		for attempt := 0; attempt < attempts && len(claimed) < count; attempt++ {
			candidates, err := a.selectCandidates(tx, req.AssignmentType, count-len(claimed), claimedIDs)
			if err != nil {
				return err
			}
			if len(candidates) == 0 {
				break
			}

			for i := range candidates {
				cred := candidates[i]

				// The availability guard makes the stamp a compare-and-swap:
				// a row taken by a concurrent claim affects zero rows here
				// and is simply dropped from this batch.
				res := tx.Model(&models.Credential{}).
					Where("id = ? AND is_available = ?", cred.ID, true).
					Updates(map[string]interface{}{
						"is_available":            false,
						"assigned_to_user_id":     req.UserID,
						"assigned_to_instance_id": req.InstanceID,
						"assigned_to_username":    req.Username,
						"assigned_at":             now,
						"request_batch_id":        batchID,
						"updated_at":              now,
					})
				if res.Error != nil {
					return res.Error
				}
				if res.RowsAffected == 0 {
					continue
				}

				cred.IsAvailable = false
				cred.AssignedToUserID = req.UserID
				cred.AssignedToInstanceID = req.InstanceID
				cred.AssignedToUsername = req.Username
				cred.AssignedAt = &now
				cred.RequestBatchID = &batchID
				claimed = append(claimed, cred)
				claimedIDs = append(claimedIDs, cred.ID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim credentials: %w", err)
	}

	result := &ClaimResult{
		AssignedCount: len(claimed),
		Credentials:   claimed,
	}

	switch {
	case len(claimed) == 0:
		result.Message = "No credentials available in the requested pool"
	case len(claimed) < count:
		result.BatchID = batchID
		result.Message = fmt.Sprintf("Only %d of %d requested credentials were available", len(claimed), count)
	default:
		result.BatchID = batchID
		result.Message = fmt.Sprintf("Assigned %d credential(s)", len(claimed))
	}

	log.Printf("Allocator: Claimed %d/%d credentials (type=%s, batch=%s)",
		len(claimed), count, req.AssignmentType, batchID[:8])
	return result, nil
}

func (a *Allocator) selectCandidates(tx *gorm.DB, at models.AssignmentType, limit int, exclude []uint) ([]models.Credential, error) {
	q := tx.Where("assignment_type = ? AND is_available = ? AND is_active = ?", at, true, true).
		Order("RANDOM()").
		Limit(limit)
	if len(exclude) > 0 {
		q = q.Where("id NOT IN ?", exclude)
	}
	if a.skipLocked {
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}

	var candidates []models.Credential
	if err := q.Find(&candidates).Error; err != nil {
		return nil, err
	}
	return candidates, nil
}

// ClaimForUser claims count self-service credentials for a user
func (a *Allocator) ClaimForUser(user *models.User, count int, at models.AssignmentType) (*ClaimResult, error) {
	return a.Claim(ClaimRequest{
		UserID:         &user.ID,
		Username:       user.Username,
		Count:          count,
		AssignmentType: at,
	})
}

// ReserveForInstance claims exactly one auto-assign credential for an
// instance. When instanceID is nil the row is reserved without the
// foreign key - the instance is created after the credential - and linked
// later via LinkInstance.
func (a *Allocator) ReserveForInstance(instanceID *uint) (*models.Credential, error) {
	result, err := a.Claim(ClaimRequest{
		InstanceID:     instanceID,
		Count:          1,
		AssignmentType: models.AssignmentTypeInstanceAutoAssign,
	})
	if err != nil {
		return nil, err
	}
	if result.AssignedCount == 0 {
		return nil, nil
	}
	return &result.Credentials[0], nil
}

// LinkInstance sets the instance foreign key on a previously reserved
// credential once the instance identifier exists. Only active rows
// qualify: a revoked credential whose assignment was cleared is not a
// reservation and must never re-enter circulation.
func (a *Allocator) LinkInstance(credentialID, instanceID uint) error {
	res := a.db.Model(&models.Credential{}).
		Where("id = ? AND is_available = ? AND is_active = ? AND assigned_to_user_id IS NULL AND assigned_to_instance_id IS NULL",
			credentialID, false, true).
		Updates(map[string]interface{}{
			"assigned_to_instance_id": instanceID,
			"updated_at":              time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to link instance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("credential %d is not reserved for linking", credentialID)
	}

	log.Printf("Allocator: Linked credential %d to instance %d", credentialID, instanceID)
	return nil
}

// Release returns a credential to the pool by explicit administrative
// action. A deactivated credential has its assignment cleared but never
// becomes available again - the downloaded config may still be usable
// offline, so deletion revokes rather than recycles.
func (a *Allocator) Release(credentialID uint) error {
	var cred models.Credential
	if err := a.db.First(&cred, credentialID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return ErrCredentialNotFound
		}
		return err
	}

	if err := a.db.Model(&models.Credential{}).
		Where("id = ?", credentialID).
		Updates(map[string]interface{}{
			"is_available":            cred.IsActive,
			"assigned_to_user_id":     nil,
			"assigned_to_instance_id": nil,
			"assigned_to_username":    "",
			"assigned_at":             nil,
			"request_batch_id":        nil,
			"updated_at":              time.Now().UTC(),
		}).Error; err != nil {
		return fmt.Errorf("failed to release credential: %w", err)
	}

	log.Printf("Allocator: Released credential %d (active=%v)", credentialID, cred.IsActive)
	return nil
}

// ReleaseByInstance releases the credential held by a torn-down instance
func (a *Allocator) ReleaseByInstance(instanceID uint) error {
	res := a.db.Model(&models.Credential{}).
		Where("assigned_to_instance_id = ?", instanceID).
		Updates(map[string]interface{}{
			"is_available":            gorm.Expr("is_active"),
			"assigned_to_user_id":     nil,
			"assigned_to_instance_id": nil,
			"assigned_to_username":    "",
			"assigned_at":             nil,
			"request_batch_id":        nil,
			"updated_at":              time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to release instance credentials: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		log.Printf("Allocator: Released %d credential(s) for instance %d", res.RowsAffected, instanceID)
	}
	return nil
}

// DeactivateForUser permanently revokes every credential ever assigned to
// a removed user. Deactivated credentials are never recycled.
func (a *Allocator) DeactivateForUser(userID uint) (int64, error) {
	res := a.db.Model(&models.Credential{}).
		Where("assigned_to_user_id = ?", userID).
		Updates(map[string]interface{}{
			"is_active":    false,
			"is_available": false,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to deactivate user credentials: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		log.Printf("Allocator: Permanently deactivated %d credential(s) for user %d", res.RowsAffected, userID)
	}
	return res.RowsAffected, nil
}

// PoolStats summarizes one pool class
type PoolStats struct {
	AssignmentType models.AssignmentType `json:"assignment_type"`
	Total          int64                 `json:"total"`
	Available      int64                 `json:"available"`
	Assigned       int64                 `json:"assigned"`
	Inactive       int64                 `json:"inactive"`
}

// Stats returns per-class pool statistics
func (a *Allocator) Stats() ([]PoolStats, error) {
	var stats []PoolStats
	err := a.db.Raw(`
		SELECT
			assignment_type,
			COUNT(*) as total,
			SUM(CASE WHEN is_available AND is_active THEN 1 ELSE 0 END) as available,
			SUM(CASE WHEN NOT is_available AND is_active THEN 1 ELSE 0 END) as assigned,
			SUM(CASE WHEN NOT is_active THEN 1 ELSE 0 END) as inactive
		FROM credentials
		GROUP BY assignment_type
		ORDER BY assignment_type
	`).Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get pool stats: %w", err)
	}
	return stats, nil
}
