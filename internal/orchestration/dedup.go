package orchestration

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/zeebo/xxh3"

	"github.com/bl4ck0w1/vulnlynx/pkg/models"
)

const DefaultBucketWidth = 3

// Deduplicator collapses findings that different scanners report for the same
// underlying vulnerability. Fingerprints bucket line numbers so that
// off-by-a-few-lines disagreement between scanners still collides.
type Deduplicator struct {
	bucketWidth int
	logger      *logrus.Logger
}

func NewDeduplicator(bucketWidth int, logger *logrus.Logger) *Deduplicator {
	if logger == nil {
		logger = logrus.New()
	}
	if bucketWidth < 1 {
		bucketWidth = DefaultBucketWidth
	}
	return &Deduplicator{bucketWidth: bucketWidth, logger: logger}
}

// Fingerprint derives the dedup key from the finding's vulnerability class
// (CWE when present, normalized title keywords otherwise), its file relative
// to the scan root, and its line bucket. Scanners never supply this value.
func (d *Deduplicator) Fingerprint(f *models.Finding, scanRoot string) string {
	key := f.CWEID
	if key == "" {
		key = titleKeywords(f.Title)
	}

	file := relativePath(f.Location.File, scanRoot)
	bucket := f.Location.LineStart / d.bucketWidth

	material := fmt.Sprintf("%s\x00%s\x00%d", strings.ToLower(key), file, bucket)
	return fmt.Sprintf("%016x", xxh3.HashString(material))
}

// Dedup groups findings by fingerprint and merges each group into one
// representative: the highest-severity member, ties broken by the
// alphabetically earliest scanner name, then by id. The representative's
// severity is the maximum across the group and its contributing_scanners is
// the union of every member's. Output ordering is deterministic: sorted by
// fingerprint, then id. Dedup is idempotent.
func (d *Deduplicator) Dedup(findings []models.Finding, scanRoot string) []models.Finding {
	groups := make(map[string][]models.Finding)
	order := make([]string, 0, len(findings))
	for i := range findings {
		f := findings[i]
		f.Fingerprint = d.Fingerprint(&f, scanRoot)
		if _, seen := groups[f.Fingerprint]; !seen {
			order = append(order, f.Fingerprint)
		}
		groups[f.Fingerprint] = append(groups[f.Fingerprint], f)
	}

	merged := make([]models.Finding, 0, len(groups))
	for _, fp := range order {
		group := groups[fp]
		rep := mergeGroup(group)
		if len(group) > 1 {
			d.logger.Debugf("Merged %d findings into %s (fingerprint %s)", len(group), rep.ID, fp)
		}
		merged = append(merged, rep)
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Fingerprint != merged[j].Fingerprint {
			return merged[i].Fingerprint < merged[j].Fingerprint
		}
		return merged[i].ID < merged[j].ID
	})

	return merged
}

func mergeGroup(group []models.Finding) models.Finding {
	best := 0
	for i := 1; i < len(group); i++ {
		a, b := &group[best], &group[i]
		switch {
		case b.Severity.Rank() > a.Severity.Rank():
			best = i
		case b.Severity.Rank() == a.Severity.Rank() && b.Scanner < a.Scanner:
			best = i
		case b.Severity.Rank() == a.Severity.Rank() && b.Scanner == a.Scanner && b.ID < a.ID:
			best = i
		}
	}

	rep := group[best]
	maxSev := rep.Severity
	for i := range group {
		maxSev = models.MaxSeverity(maxSev, group[i].Severity)
		rep.AddContributingScanner(group[i].Scanner)
		for _, s := range group[i].ContributingScanners {
			rep.AddContributingScanner(s)
		}
	}
	rep.Severity = maxSev
	return rep
}

// titleKeywords normalizes a title into its first four alphanumeric tokens,
// the fallback dedup key for findings without a CWE.
func titleKeywords(title string) string {
	fields := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	if len(fields) > 4 {
		fields = fields[:4]
	}
	return strings.Join(fields, "-")
}

func relativePath(file, scanRoot string) string {
	if scanRoot == "" {
		return filepath.Clean(file)
	}
	rel, err := filepath.Rel(scanRoot, file)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.Clean(file)
	}
	return rel
}
