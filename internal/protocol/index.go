package protocol

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/treatment-compliance-server/internal/domain"
	"github.com/treatment-compliance-server/internal/drugs"
)

// Stats summarizes an index build.
type Stats struct {
	DocumentsLoaded  int            `json:"documents_loaded"`
	DocumentsSkipped int            `json:"documents_skipped"`
	CancerTypes      int            `json:"cancer_types"`
	Protocols        int            `json:"protocols"`
	PerType          map[string]int `json:"per_type"`
	SkippedFiles     []string       `json:"skipped_files,omitempty"`
}

// Index is the immutable protocol lookup built once at startup.
// All methods are safe for concurrent use.
type Index struct {
	byType map[string][]domain.ProtocolRecord
	types  []string
	stats  Stats
}

// BuildOptions configures Build.
type BuildOptions struct {
	Resolver   *drugs.Resolver
	Extractors []Extractor
	Logger     *logrus.Logger
}

// Build reads every document from source, extracts protocol records and freezes
// them into an Index. Documents that cannot be read or parsed are logged and skipped.
// A missing source directory yields an empty index; other source failures are returned.
func Build(ctx context.Context, source Source, opts BuildOptions) (*Index, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	extractors := opts.Extractors
	if len(extractors) == 0 {
		extractors = DefaultExtractors(opts.Resolver)
	}

	docs, err := source.Documents(ctx)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.WithError(err).Warn("Guideline source not found, protocol index is empty")
			return NewIndex(nil), nil
		}
		return nil, fmt.Errorf("reading guideline documents: %w", err)
	}

	byType := make(map[string][]domain.ProtocolRecord)
	var stats Stats

	for _, raw := range docs {
		entry := logger.WithField("document", raw.Name)
		if raw.Err != nil {
			entry.WithError(raw.Err).Warn("Skipping unreadable guideline document")
			stats.DocumentsSkipped++
			stats.SkippedFiles = append(stats.SkippedFiles, raw.Name)
			continue
		}
		doc, err := ParseDocument(raw.Body)
		if err != nil {
			entry.WithError(err).Warn("Skipping malformed guideline document")
			stats.DocumentsSkipped++
			stats.SkippedFiles = append(stats.SkippedFiles, raw.Name)
			continue
		}

		cancerType := normalizeKey(raw.Name)
		var records []domain.ProtocolRecord
		for _, ex := range extractors {
			records = append(records, ex.Extract(doc, cancerType)...)
		}
		stats.DocumentsLoaded++

		if len(records) == 0 {
			entry.WithField("cancer_type", cancerType).Debug("Guideline document has no usable protocols")
			continue
		}
		byType[cancerType] = append(byType[cancerType], records...)
		entry.WithFields(logrus.Fields{
			"cancer_type": cancerType,
			"protocols":   len(records),
		}).Debug("Loaded guideline protocols")
	}

	idx := NewIndex(byType)
	idx.stats.DocumentsLoaded = stats.DocumentsLoaded
	idx.stats.DocumentsSkipped = stats.DocumentsSkipped
	idx.stats.SkippedFiles = stats.SkippedFiles

	logger.WithFields(logrus.Fields{
		"documents_loaded":  idx.stats.DocumentsLoaded,
		"documents_skipped": idx.stats.DocumentsSkipped,
		"cancer_types":      idx.stats.CancerTypes,
		"protocols":         idx.stats.Protocols,
	}).Info("Protocol index built")

	return idx, nil
}

// NewIndex freezes a prepared map of protocols into an Index. Records with no
// medications are dropped. The input is deep-copied.
func NewIndex(protocols map[string][]domain.ProtocolRecord) *Index {
	idx := &Index{
		byType: make(map[string][]domain.ProtocolRecord, len(protocols)),
		stats:  Stats{PerType: make(map[string]int)},
	}
	for key, records := range protocols {
		cancerType := normalizeKey(key)
		for _, r := range records {
			if len(cleanList(r.Medications)) == 0 {
				continue
			}
			idx.byType[cancerType] = append(idx.byType[cancerType], copyRecord(r))
		}
	}
	for cancerType, records := range idx.byType {
		if len(records) == 0 {
			delete(idx.byType, cancerType)
			continue
		}
		idx.types = append(idx.types, cancerType)
		idx.stats.PerType[cancerType] = len(records)
		idx.stats.Protocols += len(records)
	}
	sort.Strings(idx.types)
	idx.stats.CancerTypes = len(idx.types)
	return idx
}

// ProtocolsFor returns a copy of the protocols for a cancer type, in load order.
// Unknown types yield an empty slice.
func (i *Index) ProtocolsFor(cancerType string) []domain.ProtocolRecord {
	records := i.byType[normalizeKey(cancerType)]
	out := make([]domain.ProtocolRecord, len(records))
	for n, r := range records {
		out[n] = copyRecord(r)
	}
	return out
}

// CancerTypes returns the sorted list of cancer types with at least one protocol.
func (i *Index) CancerTypes() []string {
	return append([]string(nil), i.types...)
}

// Stats returns build statistics.
func (i *Index) Stats() Stats {
	s := i.stats
	s.PerType = make(map[string]int, len(i.stats.PerType))
	for k, v := range i.stats.PerType {
		s.PerType[k] = v
	}
	s.SkippedFiles = append([]string(nil), i.stats.SkippedFiles...)
	return s
}

func normalizeKey(key string) string {
	return MapCancerType(strings.ToLower(strings.TrimSpace(key)))
}

func copyRecord(r domain.ProtocolRecord) domain.ProtocolRecord {
	r.Medications = append([]string(nil), r.Medications...)
	if r.TreatmentSteps != nil {
		r.TreatmentSteps = append([]string(nil), r.TreatmentSteps...)
	}
	return r
}
