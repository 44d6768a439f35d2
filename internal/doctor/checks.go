package doctor

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/gofrs/flock"

	"github.com/copycat-emu/copycat/internal/config"
	"github.com/copycat-emu/copycat/internal/fsys"
	"github.com/copycat-emu/copycat/internal/kvstore"
	"github.com/copycat-emu/copycat/internal/persist"
)

// --- Config ---

// ConfigCheck verifies the config file parses and validates. A missing
// file is a warning, fixed by writing the default config.
type ConfigCheck struct {
	FS   fsys.FS
	Path string
}

// Name returns the check identifier.
func (c *ConfigCheck) Name() string { return "config" }

// Run loads and validates the config file.
func (c *ConfigCheck) Run(_ *CheckContext) *CheckResult {
	r := &CheckResult{Name: c.Name()}
	cfg, err := config.Load(c.FS, c.Path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		r.Status = StatusWarning
		r.Message = fmt.Sprintf("%s not found, using defaults", c.Path)
		r.FixHint = `run "copycat config init"`
		return r
	case err != nil:
		r.Status = StatusError
		r.Message = err.Error()
		return r
	}
	if err := cfg.Validate(); err != nil {
		r.Status = StatusError
		r.Message = "invalid config"
		r.Details = strings.Split(err.Error(), "\n")
		return r
	}
	r.Status = StatusOK
	r.Message = fmt.Sprintf("%s valid (%s storage)", c.Path, cfg.Storage.Backend)
	return r
}

// CanFix returns true; only a missing file is fixed.
func (c *ConfigCheck) CanFix() bool { return true }

// Fix writes the default config when the file is missing.
func (c *ConfigCheck) Fix(_ *CheckContext) error {
	if _, err := c.FS.Stat(c.Path); err == nil {
		return errors.New("config exists; edit it by hand")
	}
	data, err := config.Default().Marshal()
	if err != nil {
		return err
	}
	return c.FS.WriteFile(c.Path, data, 0o644)
}

// --- Store lock ---

// StoreLockCheck verifies no other process holds the file store lock.
type StoreLockCheck struct {
	Backend string
	Path    string
	// Held is true when the caller already holds the lock.
	Held bool
}

// Name returns the check identifier.
func (c *StoreLockCheck) Name() string { return "store-lock" }

// Run probes the lock next to the store file.
func (c *StoreLockCheck) Run(_ *CheckContext) *CheckResult {
	r := &CheckResult{Name: c.Name()}
	switch {
	case c.Backend != config.BackendFile:
		r.Status = StatusOK
		r.Message = fmt.Sprintf("%s storage takes no lock", c.Backend)
		return r
	case c.Held:
		r.Status = StatusOK
		r.Message = "lock held by this process"
		return r
	}

	lock := flock.New(c.Path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		r.Status = StatusError
		r.Message = fmt.Sprintf("probing lock: %v", err)
		return r
	}
	if !locked {
		r.Status = StatusError
		r.Message = "store is locked by another process"
		r.FixHint = "stop the other copycat process using " + c.Path
		return r
	}
	lock.Unlock() //nolint:errcheck // probe only
	r.Status = StatusOK
	r.Message = "store is not locked"
	return r
}

// CanFix returns false; the lock belongs to another process.
func (c *StoreLockCheck) CanFix() bool { return false }

// Fix is a no-op.
func (c *StoreLockCheck) Fix(_ *CheckContext) error { return nil }

// --- Tree scanning ---

// problem is one bad record or link found in a computer's tree.
type problem struct {
	computer int
	path     string
	key      string
	reason   string
}

func (p problem) String() string {
	return fmt.Sprintf("computer %d: %q: %s", p.computer, p.path, p.reason)
}

// tree is the raw persisted state of one computer.
type tree struct {
	id       int
	storage  *persist.Storage
	records  []persist.Record
	corrupt  []problem
	listings map[string][]string // parsed children records
	paths    map[string]bool     // paths with at least one record
}

func scanTree(store kvstore.Store, id int) (*tree, error) {
	s := persist.NewStorage(store, id)
	records, err := s.Records()
	if err != nil {
		return nil, err
	}
	t := &tree{
		id:       id,
		storage:  s,
		records:  records,
		listings: make(map[string][]string),
		paths:    make(map[string]bool),
	}
	for _, rec := range records {
		raw, ok, err := store.Get(rec.Key)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", rec.Key, err)
		}
		if !ok {
			continue
		}
		t.paths[rec.Path] = true
		if err := parseRecord(rec.Kind, raw, t.listings, rec.Path); err != nil {
			t.corrupt = append(t.corrupt, problem{
				computer: id, path: rec.Path, key: rec.Key,
				reason: fmt.Sprintf("corrupt %s record: %v", rec.Kind, err),
			})
		}
	}
	return t, nil
}

func parseRecord(kind, raw string, listings map[string][]string, path string) error {
	switch kind {
	case "children":
		var names []string
		if err := json.Unmarshal([]byte(raw), &names); err != nil {
			return err
		}
		listings[path] = names
	case "attributes":
		var a persist.Attributes
		return json.Unmarshal([]byte(raw), &a)
	case "b64":
		_, err := base64.StdEncoding.DecodeString(raw)
		return err
	}
	return nil
}

// links walks the tree from the root the way the filesystem hydrates it.
// It returns the listing names that point nowhere, keyed by directory,
// and the records unreachable from the root.
func (t *tree) links() (dangling map[string][]string, orphans []persist.Record) {
	dangling = make(map[string][]string)
	reachable := map[string]bool{"": true}
	queue := []string{""}
	for len(queue) > 0 {
		dir := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		seen := make(map[string]bool)
		for _, name := range t.listings[dir] {
			child := joinName(dir, name)
			if !validName(name) || seen[name] || !t.paths[child] {
				dangling[dir] = append(dangling[dir], name)
				continue
			}
			seen[name] = true
			reachable[child] = true
			if _, ok := t.listings[child]; ok {
				queue = append(queue, child)
			}
		}
	}
	for _, rec := range t.records {
		if !reachable[rec.Path] {
			orphans = append(orphans, rec)
		}
	}
	return dangling, orphans
}

func joinName(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "/" + child
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsRune(name, '/')
}

func scanAll(store kvstore.Store) ([]*tree, error) {
	ids, err := persist.Computers(store)
	if err != nil {
		return nil, err
	}
	trees := make([]*tree, 0, len(ids))
	for _, id := range ids {
		t, err := scanTree(store, id)
		if err != nil {
			return nil, err
		}
		trees = append(trees, t)
	}
	return trees, nil
}

// --- Tree listings ---

// TreeListingsCheck verifies every stored record of every computer
// decodes: listings and attributes as JSON, contents as base64.
type TreeListingsCheck struct {
	Store kvstore.Store
}

// Name returns the check identifier.
func (c *TreeListingsCheck) Name() string { return "tree-listings" }

// Run decodes every record.
func (c *TreeListingsCheck) Run(_ *CheckContext) *CheckResult {
	r := &CheckResult{Name: c.Name()}
	trees, err := scanAll(c.Store)
	if err != nil {
		r.Status = StatusError
		r.Message = err.Error()
		return r
	}
	records := 0
	for _, t := range trees {
		records += len(t.records)
		for _, p := range t.corrupt {
			r.Details = append(r.Details, p.String())
		}
	}
	if len(r.Details) > 0 {
		r.Status = StatusError
		r.Message = fmt.Sprintf("%d corrupt records", len(r.Details))
		r.FixHint = `run "copycat doctor --fix" to remove them`
		return r
	}
	r.Status = StatusOK
	r.Message = fmt.Sprintf("%d records across %d computers decode", records, len(trees))
	return r
}

// CanFix returns true.
func (c *TreeListingsCheck) CanFix() bool { return true }

// Fix removes every corrupt record.
func (c *TreeListingsCheck) Fix(_ *CheckContext) error {
	trees, err := scanAll(c.Store)
	if err != nil {
		return err
	}
	for _, t := range trees {
		for _, p := range t.corrupt {
			if err := c.Store.Remove(p.key); err != nil {
				return fmt.Errorf("removing %s: %w", p.key, err)
			}
		}
	}
	return nil
}

// --- Tree links ---

// TreeLinksCheck verifies every listed child has a record and every
// record is reachable from the root.
type TreeLinksCheck struct {
	Store kvstore.Store
}

// Name returns the check identifier.
func (c *TreeLinksCheck) Name() string { return "tree-links" }

// Run walks every computer's tree.
func (c *TreeLinksCheck) Run(_ *CheckContext) *CheckResult {
	r := &CheckResult{Name: c.Name()}
	trees, err := scanAll(c.Store)
	if err != nil {
		r.Status = StatusError
		r.Message = err.Error()
		return r
	}
	var nDangling, nOrphans int
	for _, t := range trees {
		dangling, orphans := t.links()
		dirs := make([]string, 0, len(dangling))
		for dir := range dangling {
			dirs = append(dirs, dir)
		}
		sort.Strings(dirs)
		for _, dir := range dirs {
			for _, name := range dangling[dir] {
				nDangling++
				r.Details = append(r.Details, problem{computer: t.id, path: dir, reason: fmt.Sprintf("dangling child %q", name)}.String())
			}
		}
		for _, rec := range orphans {
			nOrphans++
			r.Details = append(r.Details, problem{computer: t.id, path: rec.Path, reason: "orphan " + rec.Kind + " record"}.String())
		}
	}
	if nDangling+nOrphans > 0 {
		r.Status = StatusWarning
		r.Message = fmt.Sprintf("%d dangling children, %d orphan records", nDangling, nOrphans)
		r.FixHint = `run "copycat doctor --fix" to unlink and delete them`
		return r
	}
	r.Status = StatusOK
	r.Message = fmt.Sprintf("%d computers linked", len(trees))
	return r
}

// CanFix returns true.
func (c *TreeLinksCheck) CanFix() bool { return true }

// Fix drops dangling children from their listings and deletes orphan
// records.
func (c *TreeLinksCheck) Fix(_ *CheckContext) error {
	trees, err := scanAll(c.Store)
	if err != nil {
		return err
	}
	for _, t := range trees {
		dangling, orphans := t.links()
		for dir, bad := range dangling {
			t.storage.SetChildren(dir, dropNames(t.listings[dir], bad))
		}
		for _, rec := range orphans {
			if err := c.Store.Remove(rec.Key); err != nil {
				return fmt.Errorf("removing %s: %w", rec.Key, err)
			}
		}
	}
	return nil
}

// dropNames returns names without the first occurrence of each entry in
// bad, keeping order.
func dropNames(names, bad []string) []string {
	drop := make(map[string]int, len(bad))
	for _, b := range bad {
		drop[b]++
	}
	kept := make([]string, 0, len(names))
	for _, n := range names {
		if drop[n] > 0 {
			drop[n]--
			continue
		}
		kept = append(kept, n)
	}
	return kept
}
