package frostengine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/frostlock/frostlock/pkg/frosttypes"
	"github.com/function61/gokit/atomicfilewrite"
	"github.com/function61/gokit/fileexists"
	"github.com/function61/gokit/jsonfile"
	"github.com/samber/lo"
)

const domainRegistryFilename = "domains.json"

// DomainRegistry is intentionally just bookkeeping and validation - the layers
// that act on the directories it describes carry the complexity.
type DomainRegistry struct {
	configPath string
	domains    []frosttypes.Domain
}

func NewDomainRegistry(baseDir string) *DomainRegistry {
	return &DomainRegistry{
		configPath: filepath.Join(baseDir, domainRegistryFilename),
		domains:    []frosttypes.Domain{},
	}
}

// Define validates and registers a domain. Ids must be unique and paths
// disjoint (no equality, no nesting either way).
func (r *DomainRegistry) Define(domain frosttypes.Domain) error {
	if err := domain.Validate(); err != nil {
		return err
	}

	for _, existing := range r.domains {
		if existing.ID == domain.ID {
			return fmt.Errorf("%w: domain id already defined: %s", frosttypes.ErrConflict, domain.ID)
		}

		if pathsOverlap(existing.Path, domain.Path) {
			return fmt.Errorf(
				"%w: domain %s path overlaps domain %s (%s)",
				frosttypes.ErrConflict,
				domain.ID,
				existing.ID,
				existing.Path)
		}
	}

	r.domains = append(r.domains, domain)

	return nil
}

// EnsureExists creates the domain's directory tree. Idempotent.
func (r *DomainRegistry) EnsureExists(domain frosttypes.Domain) error {
	return os.MkdirAll(domain.Path, 0755)
}

func (r *DomainRegistry) Resolve(id string) (*frosttypes.Domain, error) {
	for i, domain := range r.domains {
		if domain.ID == id {
			return &r.domains[i], nil
		}
	}

	return nil, fmt.Errorf("%w: domain: %s", frosttypes.ErrNotFound, id)
}

func (r *DomainRegistry) All() []frosttypes.Domain {
	result := make([]frosttypes.Domain, len(r.domains))
	copy(result, r.domains)

	return result
}

func (r *DomainRegistry) Frozen() []frosttypes.Domain {
	return lo.Filter(r.domains, func(domain frosttypes.Domain, _ int) bool {
		return domain.Frozen()
	})
}

func (r *DomainRegistry) Tracked() []frosttypes.Domain {
	return lo.Filter(r.domains, func(domain frosttypes.Domain, _ int) bool {
		return domain.Tracked
	})
}

func (r *DomainRegistry) Load() error {
	exists, err := fileexists.Exists(r.configPath)
	if err != nil {
		return err
	}

	if !exists {
		return fmt.Errorf("%w: domain registry: %s", frosttypes.ErrNotFound, r.configPath)
	}

	return jsonfile.Read(r.configPath, &r.domains, true)
}

func (r *DomainRegistry) Save() error {
	return atomicfilewrite.Write(r.configPath, func(writer io.Writer) error {
		return jsonfile.Marshal(writer, r.domains)
	})
}

func pathsOverlap(a string, b string) bool {
	a = filepath.Clean(a)
	b = filepath.Clean(b)

	if a == b {
		return true
	}

	separator := string(filepath.Separator)

	return strings.HasPrefix(a, b+separator) || strings.HasPrefix(b, a+separator)
}

// the four stock domains, rooted under the base storage root
func defaultDomains(baseDir string) []frosttypes.Domain {
	domainPath := func(id string) string {
		return filepath.Join(baseDir, "domains", id)
	}

	return []frosttypes.Domain{
		{
			ID:          "sys",
			Kind:        frosttypes.FrozenSystem,
			Path:        domainPath("sys"),
			ResetPolicy: frosttypes.DiscardOnBoot,
		},
		{
			ID:          "cfg",
			Kind:        frosttypes.FrozenConfig,
			Path:        domainPath("cfg"),
			ResetPolicy: frosttypes.OptionalCommit,
			Tracked:     true,
		},
		{
			ID:          "user",
			Kind:        frosttypes.Persistent,
			Path:        domainPath("user"),
			ResetPolicy: frosttypes.NeverReset,
		},
		{
			ID:          "cache",
			Kind:        frosttypes.Volatile,
			Path:        domainPath("cache"),
			ResetPolicy: frosttypes.AlwaysReset,
		},
	}
}
