// Package locationcodes describes NEMSIS incident location (ICD-10 Y92)
// codes and manages user-defined groupings of them.
package locationcodes

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/Jython1415/zolltools/pkg/fileutil"
)

// NEMSIS pertinent negatives that are not part of the Y92 listing.
const (
	NotApplicable = "7701001"
	NotRecorded   = "7701003"
)

// ErrUnknownCode is returned for a code that is neither a pertinent
// negative nor in the mapping.
var ErrUnknownCode = errors.New("unknown location code")

// Mapping resolves codes to descriptions from a JSON object file of the
// form {"code": "description"}. The file is read on first use.
type Mapping struct {
	path string

	once  sync.Once
	codes map[string]string
	err   error
}

// NewMapping returns a Mapping backed by the JSON file at path.
func NewMapping(path string) *Mapping {
	return &Mapping{path: path}
}

func (m *Mapping) load() (map[string]string, error) {
	m.once.Do(func() {
		data, err := os.ReadFile(m.path)
		if err != nil {
			m.err = fmt.Errorf("load location code mapping: %w", err)
			return
		}
		if err := json.Unmarshal(data, &m.codes); err != nil {
			m.err = fmt.Errorf("decode location code mapping %s: %w", m.path, err)
		}
	})
	return m.codes, m.err
}

// Len returns the number of codes in the mapping file.
func (m *Mapping) Len() (int, error) {
	codes, err := m.load()
	return len(codes), err
}

// Description returns the description of code.
func (m *Mapping) Description(code string) (string, error) {
	switch code {
	case NotApplicable:
		return "Not Applicable", nil
	case NotRecorded:
		return "Not Recorded", nil
	}
	codes, err := m.load()
	if err != nil {
		return "", err
	}
	desc, ok := codes[code]
	if !ok {
		return "", fmt.Errorf("%w: %s is not in the NEMSIS data dictionary or the Y92 listing", ErrUnknownCode, code)
	}
	return desc, nil
}

// DescriptionOr is Description with def in place of any error.
func (m *Mapping) DescriptionOr(code, def string) string {
	desc, err := m.Description(code)
	if err != nil {
		return def
	}
	return desc
}

// GroupingsDirName is the directory, under Groupings.Root, that holds
// grouping files.
const GroupingsDirName = "location-codes-groupings"

const groupingExt = ".json"

// Grouping maps a group label to the location codes it contains.
type Grouping map[string][]string

// Groupings manages grouping files stored as JSON under
// Root/location-codes-groupings.
type Groupings struct {
	Root string
}

// Dir returns the directory holding the grouping files.
func (g Groupings) Dir() string {
	return filepath.Join(g.Root, GroupingsDirName)
}

// Init creates the groupings directory if needed and returns its path.
func (g Groupings) Init() (string, error) {
	dir := g.Dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("init groupings: %w", err)
	}
	return dir, nil
}

// List returns the grouping names, sorted. A missing directory has no
// groupings.
func (g Groupings) List() ([]string, error) {
	if !fileutil.Exists(g.Dir()) {
		return nil, nil
	}
	paths, err := fileutil.ListExt(g.Dir(), groupingExt)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = strings.TrimSuffix(filepath.Base(p), groupingExt)
	}
	sort.Strings(names)
	return names, nil
}

// Load reads the grouping called name.
func (g Groupings) Load(name string) (Grouping, error) {
	data, err := os.ReadFile(filepath.Join(g.Dir(), name+groupingExt))
	if err != nil {
		return nil, fmt.Errorf("load grouping %q: %w", name, err)
	}
	var grp Grouping
	if err := json.Unmarshal(data, &grp); err != nil {
		return nil, fmt.Errorf("decode grouping %q: %w", name, err)
	}
	return grp, nil
}

// Unknown returns, sorted, the codes of grp that m cannot describe.
func (grp Grouping) Unknown(m *Mapping) ([]string, error) {
	var unknown []string
	for _, codes := range grp {
		for _, code := range codes {
			_, err := m.Description(code)
			if errors.Is(err, ErrUnknownCode) {
				unknown = append(unknown, code)
				continue
			}
			if err != nil {
				return nil, err
			}
		}
	}
	sort.Strings(unknown)
	return unknown, nil
}
