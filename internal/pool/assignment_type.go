package pool

import (
	"fmt"
	"log"
	"time"

	"github.com/wirevault/backend/internal/models"
	"gorm.io/gorm"
)

// TypeManager moves unassigned credentials between pool classes. The
// availability guard mirrors the allocator's: a credential in use cannot
// change class.
type TypeManager struct {
	db *gorm.DB
}

func NewTypeManager(db *gorm.DB) *TypeManager {
	return &TypeManager{db: db}
}

// SetAssignmentType changes the pool class of one unassigned credential.
// Returns ErrInvalidAssignmentType for an unrecognized class,
// ErrCredentialNotFound for a missing id and StillAssignedError when the
// credential is currently held.
func (m *TypeManager) SetAssignmentType(credentialID uint, newType models.AssignmentType) error {
	if !models.ValidAssignmentType(newType) {
		return ErrInvalidAssignmentType
	}

	// Guarded update so the class can never change between a concurrent
	// claim's select and its stamp
	res := m.db.Model(&models.Credential{}).
		Where("id = ? AND is_available = ?", credentialID, true).
		Updates(map[string]interface{}{
			"assignment_type": newType,
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update assignment type: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		var cred models.Credential
		if err := m.db.First(&cred, credentialID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrCredentialNotFound
			}
			return err
		}
		return &StillAssignedError{CredentialID: credentialID}
	}

	log.Printf("TypeManager: Credential %d moved to pool class %s", credentialID, newType)
	return nil
}

// BulkTypeResult reports a bulk class change: every id is attempted and
// per-id failures are accumulated instead of aborting the batch.
type BulkTypeResult struct {
	Updated  int      `json:"updated"`
	Failed   int      `json:"failed"`
	Failures []string `json:"failures,omitempty"`
}

// BulkSetAssignmentType applies the single-credential rule independently
// to each id in the list
func (m *TypeManager) BulkSetAssignmentType(credentialIDs []uint, newType models.AssignmentType) (*BulkTypeResult, error) {
	if !models.ValidAssignmentType(newType) {
		return nil, ErrInvalidAssignmentType
	}

	result := &BulkTypeResult{}
	for _, id := range credentialIDs {
		if err := m.SetAssignmentType(id, newType); err != nil {
			result.Failed++
			result.Failures = append(result.Failures, fmt.Sprintf("credential %d: %v", id, err))
			continue
		}
		result.Updated++
	}
	return result, nil
}
