package importer

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/wirevault/backend/internal/models"
	"github.com/wirevault/backend/internal/wgconfig"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxReportedErrors bounds the per-entry failure list returned to the
// caller; failures beyond the cap are still counted.
const maxReportedErrors = 10

// Importer walks uploaded ZIP archives and inserts new credentials,
// deduplicating on the SHA-256 of each entry's raw text.
type Importer struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Importer {
	return &Importer{db: db}
}

// ImportResult reports one archive import. Duplicates are a silent skip,
// counted separately from both success and failure.
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// ImportArchive decodes a ZIP archive and imports every plausible config
// entry. Directory, hidden and binary entries are skipped silently;
// per-entry parse failures are accumulated without aborting the walk. A
// structurally invalid archive returns a single aggregate error and
// imports nothing.
func (im *Importer) ImportArchive(data []byte, endpointOverride string, at models.AssignmentType) (*ImportResult, error) {
	if !models.ValidAssignmentType(at) {
		return nil, fmt.Errorf("invalid assignment type %q", at)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid archive: %w", err)
	}

	result := &ImportResult{}
	for _, entry := range zr.File {
		if entry.FileInfo().IsDir() || hiddenEntry(entry.Name) {
			continue
		}

		raw, err := readEntry(entry)
		if err != nil {
			result.recordError(entry.Name, err)
			continue
		}
		if !decodableText(raw) {
			// Binary payloads are not candidate configs
			continue
		}

		cred, err := wgconfig.Parse(string(raw), endpointOverride)
		if err != nil {
			result.recordError(entry.Name, err)
			continue
		}

		sum := sha256.Sum256(raw)
		cred.FileHash = hex.EncodeToString(sum[:])
		cred.AssignmentType = at
		cred.IsAvailable = true
		cred.IsActive = true

		// The unique index on file_hash makes a re-import of identical
		// content a no-op even when two imports race
		res := im.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "file_hash"}},
			DoNothing: true,
		}).Create(cred)
		if res.Error != nil {
			result.recordError(entry.Name, res.Error)
			continue
		}
		if res.RowsAffected == 0 {
			result.Skipped++
			continue
		}
		result.Imported++
	}

	log.Printf("Importer: Archive processed (imported=%d skipped=%d failed=%d)",
		result.Imported, result.Skipped, result.Failed)
	return result, nil
}

func (r *ImportResult) recordError(name string, err error) {
	r.Failed++
	if len(r.Errors) < maxReportedErrors {
		r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", name, err))
	}
}

func readEntry(entry *zip.File) ([]byte, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// hiddenEntry skips dotfiles and system entries such as __MACOSX anywhere
// in the entry path
func hiddenEntry(name string) bool {
	for _, part := range strings.Split(name, "/") {
		if strings.HasPrefix(part, ".") || strings.HasPrefix(part, "__") {
			return true
		}
	}
	return false
}

func decodableText(raw []byte) bool {
	return utf8.Valid(raw) && !bytes.ContainsRune(raw, 0)
}
