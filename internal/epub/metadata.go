package epub

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"golang.org/x/text/language"
)

// manifestJSON mirrors src/manifest.json. Both the short keys ("lang", "desc")
// and their long forms are accepted.
type manifestJSON struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Subtitle    string            `json:"subtitle"`
	Publisher   string            `json:"publisher"`
	Author      string            `json:"author"`
	Lang        string            `json:"lang"`
	Language    string            `json:"language"`
	Date        string            `json:"date"`
	Rights      string            `json:"rights"`
	Desc        []string          `json:"desc"`
	Description []string          `json:"description"`
	ISBN        string            `json:"isbn"`
	AssetsPath  map[string]string `json:"assetsPath"`
	TOC         []string          `json:"toc"`
	GitCommit   string            `json:"gitCommit"`
}

// ParseMetadata decodes a manifest.json document.
func ParseMetadata(data []byte) (*Metadata, error) {
	var raw manifestJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse manifest JSON: %w", err)
	}

	md := &Metadata{
		ID:          raw.ID,
		Title:       raw.Title,
		Subtitle:    raw.Subtitle,
		Publisher:   raw.Publisher,
		Author:      raw.Author,
		Language:    firstNonEmpty(raw.Lang, raw.Language),
		Date:        raw.Date,
		Rights:      raw.Rights,
		Description: raw.Desc,
		ISBN:        raw.ISBN,
		AssetsPath:  raw.AssetsPath,
		TOC:         raw.TOC,
		Revision:    raw.GitCommit,
	}
	if len(md.Description) == 0 {
		md.Description = raw.Description
	}
	if md.AssetsPath == nil {
		md.AssetsPath = map[string]string{}
	}

	if err := md.Validate(); err != nil {
		return nil, err
	}
	return md, nil
}

// LoadMetadata reads and parses a manifest.json file.
func LoadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return ParseMetadata(data)
}

// Validate checks the fields every generated document depends on.
func (m *Metadata) Validate() error {
	var errs []error
	if m.ID == "" {
		errs = append(errs, fmt.Errorf("%w: id is required", ErrInvalidMetadata))
	}
	if m.Title == "" {
		errs = append(errs, fmt.Errorf("%w: title is required", ErrInvalidMetadata))
	}
	if len(m.TOC) == 0 {
		errs = append(errs, fmt.Errorf("%w: toc must list at least one content id", ErrInvalidMetadata))
	}
	if _, ok := m.AssetsPath[CategoryText]; !ok {
		errs = append(errs, fmt.Errorf("%w: assetsPath.text is required", ErrInvalidMetadata))
	}
	return errors.Join(errs...)
}

// Warnings reports metadata problems that do not stop a build.
func (m *Metadata) Warnings() []string {
	var warnings []string
	if _, err := uuid.Parse(m.ID); err != nil {
		warnings = append(warnings, fmt.Sprintf("id %q is not a UUID but is published as urn:uuid", m.ID))
	}
	if m.Language == "" {
		warnings = append(warnings, "language is empty")
	} else if _, err := language.Parse(m.Language); err != nil {
		warnings = append(warnings, fmt.Sprintf("language %q is not a valid BCP 47 tag", m.Language))
	}
	return warnings
}

// WithRevision returns a copy of the metadata carrying the given revision marker.
func (m *Metadata) WithRevision(rev string) *Metadata {
	cp := *m
	cp.Revision = rev
	return &cp
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
