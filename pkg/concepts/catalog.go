// Package concepts loads the catalog of topics a student can explain.
package concepts

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/harun/companion/pkg/relay"
)

var ErrEmptyCatalog = errors.New("concepts: catalog has no entries")

// Catalog is an in-memory concept table, safe for concurrent use.
// Reload swaps the whole table so readers never see a partial file.
type Catalog struct {
	path string

	mu      sync.RWMutex
	byID    map[string]relay.Concept
	ordered []relay.Concept
}

// Load reads the catalog CSV at path
func Load(path string) (*Catalog, error) {
	c := &Catalog{path: path}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// FromConcepts builds a catalog without a backing file
func FromConcepts(list []relay.Concept) *Catalog {
	c := &Catalog{}
	c.swap(list)
	return c
}

// Reload re-reads the backing file. On error the current table is kept.
func (c *Catalog) Reload() error {
	f, err := os.Open(c.path)
	if err != nil {
		return fmt.Errorf("open concepts: %w", err)
	}
	defer f.Close()

	list, err := Parse(f)
	if err != nil {
		return fmt.Errorf("parse %s: %w", c.path, err)
	}

	c.swap(list)
	log.Info().Str("path", c.path).Int("concepts", len(list)).Msg("Concept catalog loaded")
	return nil
}

func (c *Catalog) swap(list []relay.Concept) {
	byID := make(map[string]relay.Concept, len(list))
	for _, concept := range list {
		byID[concept.ID] = concept
	}
	ordered := append([]relay.Concept(nil), list...)
	sort.SliceStable(ordered, func(i, j int) bool { return lessID(ordered[i].ID, ordered[j].ID) })

	c.mu.Lock()
	c.byID = byID
	c.ordered = ordered
	c.mu.Unlock()
}

// lessID orders numeric ids numerically and everything else lexically after them.
func lessID(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	switch {
	case aerr == nil && berr == nil:
		return ai < bi
	case aerr == nil:
		return true
	case berr == nil:
		return false
	default:
		return a < b
	}
}

// Lookup implements relay.ConceptResolver
func (c *Catalog) Lookup(id string) (relay.Concept, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	concept, ok := c.byID[strings.TrimSpace(id)]
	return concept, ok
}

// List returns every concept in id order
func (c *Catalog) List() []relay.Concept {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]relay.Concept(nil), c.ordered...)
}

// Len returns the number of concepts
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ordered)
}

// Path returns the backing file, empty for FromConcepts catalogs
func (c *Catalog) Path() string {
	return c.path
}

// Parse reads id,concept,explanation rows. A header row is detected by its
// first cell and skipped. Rows without an id are dropped; the last row for a
// duplicate id wins.
func Parse(r io.Reader) ([]relay.Concept, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var list []relay.Concept
	seen := map[string]int{}
	line := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++

		if line == 1 && isHeader(record) {
			continue
		}
		if len(record) < 3 {
			return nil, fmt.Errorf("line %d: want 3 fields (id,concept,explanation), got %d", line, len(record))
		}

		concept := relay.Concept{
			ID:          strings.TrimSpace(record[0]),
			Name:        strings.TrimSpace(record[1]),
			Explanation: strings.TrimSpace(record[2]),
		}
		if concept.ID == "" {
			continue
		}
		if i, dup := seen[concept.ID]; dup {
			list[i] = concept
			continue
		}
		seen[concept.ID] = len(list)
		list = append(list, concept)
	}

	if len(list) == 0 {
		return nil, ErrEmptyCatalog
	}
	return list, nil
}

func isHeader(record []string) bool {
	if len(record) == 0 {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(record[0]), "id")
}

var _ relay.ConceptResolver = (*Catalog)(nil)
