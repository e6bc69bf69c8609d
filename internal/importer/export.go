package importer

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"

	"github.com/wirevault/backend/internal/models"
	"github.com/wirevault/backend/internal/wgconfig"
)

// Exporter renders credentials back into a downloadable ZIP, one .conf
// per credential named by the filename pattern, with a SHA256SUMS
// manifest when any credential carries a recorded file hash.
type Exporter struct {
	pattern  string
	defaults *wgconfig.ServerDefaults
}

func NewExporter(pattern string, defaults *wgconfig.ServerDefaults) *Exporter {
	return &Exporter{pattern: pattern, defaults: defaults}
}

// BuildArchive generates the export ZIP for the given credentials
func (e *Exporter) BuildArchive(creds []models.Credential, requester *models.User) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	var manifest strings.Builder
	seen := make(map[string]bool)

	for i := range creds {
		cred := &creds[i]

		name := wgconfig.FormatFilename(e.pattern, cred, requester, i+1)
		if seen[name] {
			name = fmt.Sprintf("%d_%s", i+1, name)
		}
		seen[name] = true

		w, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("failed to add %s to archive: %w", name, err)
		}
		if _, err := w.Write([]byte(wgconfig.Generate(cred, e.defaults))); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", name, err)
		}

		if cred.FileHash != "" {
			manifest.WriteString(cred.FileHash)
			manifest.WriteString("  ")
			manifest.WriteString(name)
			manifest.WriteString("\n")
		}
	}

	if manifest.Len() > 0 {
		w, err := zw.Create("SHA256SUMS")
		if err != nil {
			return nil, fmt.Errorf("failed to add manifest: %w", err)
		}
		if _, err := w.Write([]byte(manifest.String())); err != nil {
			return nil, fmt.Errorf("failed to write manifest: %w", err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}
