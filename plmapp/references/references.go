// Package references allocates collision-avoided object references and
// computes successor revision tokens.
package references

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"openplm/plmapp/schema"

	"gorm.io/gorm"
)

var (
	ErrBadReference  = errors.New("bad reference: '#', '?', '/' and '..' are not allowed")
	ErrBadRevision   = errors.New("bad revision: '#', '?', '/' and '..' are not allowed")
	ErrEmptyRevision = errors.New("empty value not permitted for revision")
)

var badRef = regexp.MustCompile(`[?/#\n\t\r\f]|\.\.`)

// NamespaceEcr keys the ECR reference namespace; parts and documents use
// their schema kind.
const NamespaceEcr = "ecr"

// Reference patterns per namespace. Parts, documents and ECRs number their
// references independently.
var patterns = map[string]struct {
	format string
	parse  *regexp.Regexp
}{
	schema.KindPart:     {"PART_%05d", regexp.MustCompile(`^PART_(\d+)$`)},
	schema.KindDocument: {"DOC_%05d", regexp.MustCompile(`^DOC_(\d+)$`)},
	NamespaceEcr:        {"ECR_%05d", regexp.MustCompile(`^ECR_(\d+)$`)},
}

func ValidateReference(reference string) error {
	if reference == "" {
		return fmt.Errorf("empty value not permitted for reference")
	}
	if badRef.MatchString(reference) {
		return ErrBadReference
	}
	return nil
}

func ValidateRevision(revision string) error {
	if revision == "" {
		return ErrEmptyRevision
	}
	if badRef.MatchString(revision) {
		return ErrBadRevision
	}
	return nil
}

// ParseReferenceNumber extracts the numeric suffix of *reference* for the
// given namespace, 0 if the reference does not match the pattern. Overly
// large numbers are treated as unparseable so they never poison the
// allocator's max lookup.
func ParseReferenceNumber(reference, kind string) int {
	pattern, ok := patterns[kind]
	if !ok {
		return 0
	}
	m := pattern.parse.FindStringSubmatch(reference)
	if m == nil {
		return 0
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n > math.MaxInt32 {
		return 0
	}
	return int(n)
}

// NewReference suggests a reference for a new object of *kind*: the highest
// allocated reference number plus start plus 1, formatted per the namespace
// pattern. The suggestion can race a concurrent creation; callers retry with
// an incremented start on a uniqueness violation.
func NewReference(db *gorm.DB, kind string, start int) (string, error) {
	pattern, ok := patterns[kind]
	if !ok {
		return "", fmt.Errorf("unknown reference namespace %v", kind)
	}

	var maxRef int
	var query *gorm.DB
	if kind == NamespaceEcr {
		query = db.Model(&schema.Ecr{})
	} else {
		query = db.Model(&schema.PlmObject{}).Where("type = ?", kind)
	}
	result := query.Select("COALESCE(MAX(reference_number), 0)").Scan(&maxRef)
	if result.Error != nil {
		slog.Error("sql error finding max reference number", "kind", kind, "error", result.Error)
		return "", schema.ErrDbAccessFailed
	}

	return fmt.Sprintf(pattern.format, maxRef+start+1), nil
}

var trailingToken = regexp.MustCompile(`^(.*)([-.,])([^-.,]+)$`)
var leadingZeros = regexp.MustCompile(`^(0*).`)

// NextRevision computes the successor of a revision token by structural
// convention: "a" -> "b", "z" -> "aa", "Z" -> "AA", "0041" -> "0042",
// "a.b.1" -> "a.b.2". An empty result means the token cannot be incremented.
func NextRevision(revision string) string {
	if len(revision) == 1 {
		c := revision[0]
		switch {
		case c == 'z':
			return "aa"
		case c == 'Z':
			return "AA"
		case c >= 'a' && c < 'z', c >= 'A' && c < 'Z':
			return string(c + 1)
		}
	}
	if revision != "" && isDigits(revision) {
		zeros := leadingZeros.FindStringSubmatch(revision)[1]
		trimmed := strings.TrimLeft(revision, "0")
		if trimmed == "" {
			// all zeros
			return zeros + "1"
		}
		n, err := strconv.ParseUint(trimmed, 10, 64)
		if err != nil {
			return ""
		}
		return zeros + strconv.FormatUint(n+1, 10)
	}
	if m := trailingToken.FindStringSubmatch(revision); m != nil {
		last := NextRevision(m[3])
		if last == "" {
			return ""
		}
		return m[1] + m[2] + last
	}
	return ""
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
