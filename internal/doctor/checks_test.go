package doctor

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"github.com/copycat-emu/copycat/internal/config"
	"github.com/copycat-emu/copycat/internal/fsys"
	"github.com/copycat-emu/copycat/internal/kvstore"
	"github.com/copycat-emu/copycat/internal/persist"
	"github.com/copycat-emu/copycat/internal/vfs"
)

// --- config ---

func TestConfigCheckMissingIsFixed(t *testing.T) {
	f := fsys.NewFake()
	c := &ConfigCheck{FS: f, Path: "/w/copycat.toml"}

	r := c.Run(&CheckContext{})
	if r.Status != StatusWarning {
		t.Fatalf("Status = %d, want StatusWarning: %s", r.Status, r.Message)
	}
	if err := c.Fix(&CheckContext{}); err != nil {
		t.Fatalf("Fix: %v", err)
	}
	if _, ok := f.Files["/w/copycat.toml"]; !ok {
		t.Fatal("Fix did not write the config")
	}
	if r := c.Run(&CheckContext{}); r.Status != StatusOK {
		t.Errorf("after fix: Status = %d, want StatusOK: %s", r.Status, r.Message)
	}
}

func TestConfigCheckInvalid(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		detail string
	}{
		{"syntax", "[storage\n", ""},
		{"unknown backend", "[storage]\nbackend = \"redis\"\n", "storage.backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := fsys.NewFake()
			f.Files["copycat.toml"] = []byte(tt.data)
			c := &ConfigCheck{FS: f, Path: "copycat.toml"}
			r := c.Run(&CheckContext{})
			if r.Status != StatusError {
				t.Fatalf("Status = %d, want StatusError", r.Status)
			}
			if tt.detail != "" && !strings.Contains(strings.Join(r.Details, "\n"), tt.detail) {
				t.Errorf("Details = %q, want mention of %q", r.Details, tt.detail)
			}
			if err := c.Fix(&CheckContext{}); err == nil {
				t.Error("Fix overwrote an existing config, want error")
			}
		})
	}
}

// --- store lock ---

func TestStoreLockCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")

	if r := (&StoreLockCheck{Backend: config.BackendMemory}).Run(&CheckContext{}); r.Status != StatusOK {
		t.Errorf("memory backend: Status = %d, want StatusOK", r.Status)
	}
	if r := (&StoreLockCheck{Backend: config.BackendFile, Path: path, Held: true}).Run(&CheckContext{}); r.Status != StatusOK {
		t.Errorf("held: Status = %d, want StatusOK", r.Status)
	}

	c := &StoreLockCheck{Backend: config.BackendFile, Path: path}
	if r := c.Run(&CheckContext{}); r.Status != StatusOK {
		t.Fatalf("free: Status = %d, want StatusOK: %s", r.Status, r.Message)
	}

	other := flock.New(path + ".lock")
	locked, err := other.TryLock()
	if err != nil || !locked {
		t.Fatalf("TryLock = %v, %v", locked, err)
	}
	defer other.Unlock() //nolint:errcheck // test cleanup

	r := c.Run(&CheckContext{})
	if r.Status != StatusError {
		t.Errorf("locked: Status = %d, want StatusError", r.Status)
	}
	if !strings.Contains(r.Message, "locked by another process") {
		t.Errorf("Message = %q", r.Message)
	}
}

// --- tree ---

// newTree persists a small tree for computer id and returns its storage.
func newTree(t *testing.T, store kvstore.Store, id int) *persist.Storage {
	t.Helper()
	s := persist.NewStorage(store, id)
	fs := vfs.Open(s)
	if _, err := fs.CreateDirectory("rom/programs"); err != nil {
		t.Fatal(err)
	}
	f, err := fs.CreateFile("rom/startup.lua")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.SetStringContents("print('hi')"); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestTreeChecksHealthy(t *testing.T) {
	store := kvstore.NewMemStore()
	newTree(t, store, 0)
	newTree(t, store, 3)

	for _, c := range []Check{&TreeListingsCheck{Store: store}, &TreeLinksCheck{Store: store}} {
		r := c.Run(&CheckContext{})
		if r.Status != StatusOK {
			t.Errorf("%s: Status = %d, want StatusOK: %s %v", c.Name(), r.Status, r.Message, r.Details)
		}
	}
}

func TestTreeChecksEmptyStore(t *testing.T) {
	store := kvstore.NewMemStore()
	r := (&TreeLinksCheck{Store: store}).Run(&CheckContext{})
	if r.Status != StatusOK || r.Message != "0 computers linked" {
		t.Errorf("Run = %d %q, want OK 0 computers linked", r.Status, r.Message)
	}
}

func TestTreeListingsCorrupt(t *testing.T) {
	store := kvstore.NewMemStore()
	s := newTree(t, store, 0)
	store.Set(s.FileKey("rom/programs", "children"), "{not json") //nolint:errcheck // MemStore
	store.Set(s.FileKey("rom/startup.lua", "b64"), "!!!")         //nolint:errcheck // MemStore
	store.Set(s.FileKey("rom", "attributes"), `"yesterday"`)      //nolint:errcheck // MemStore

	c := &TreeListingsCheck{Store: store}
	r := c.Run(&CheckContext{})
	if r.Status != StatusError {
		t.Fatalf("Status = %d, want StatusError", r.Status)
	}
	if r.Message != "3 corrupt records" {
		t.Errorf("Message = %q, want %q", r.Message, "3 corrupt records")
	}

	if err := c.Fix(&CheckContext{}); err != nil {
		t.Fatalf("Fix: %v", err)
	}
	if r := c.Run(&CheckContext{}); r.Status != StatusOK {
		t.Errorf("after fix: Status = %d: %v", r.Status, r.Details)
	}
	if _, ok, _ := store.Get(s.FileKey("rom/startup.lua", "attributes")); !ok {
		t.Error("Fix removed a healthy record")
	}
}

func TestTreeLinksDanglingAndOrphans(t *testing.T) {
	store := kvstore.NewMemStore()
	s := newTree(t, store, 0)
	s.SetChildren("", []string{"rom", "ghost", "rom", ".."})
	orphan := s.FileKey("lost/notes.txt", "b64")
	store.Set(orphan, "aGk=") //nolint:errcheck // MemStore

	c := &TreeLinksCheck{Store: store}
	r := c.Run(&CheckContext{Verbose: true})
	if r.Status != StatusWarning {
		t.Fatalf("Status = %d, want StatusWarning", r.Status)
	}
	if r.Message != "3 dangling children, 1 orphan records" {
		t.Errorf("Message = %q", r.Message)
	}

	if err := c.Fix(&CheckContext{}); err != nil {
		t.Fatalf("Fix: %v", err)
	}
	if r := c.Run(&CheckContext{}); r.Status != StatusOK {
		t.Errorf("after fix: Status = %d: %v", r.Status, r.Details)
	}
	names, _ := s.Children("")
	if strings.Join(names, ",") != "rom" {
		t.Errorf("root listing = %q, want [rom]", names)
	}
	if _, ok, _ := store.Get(orphan); ok {
		t.Error("orphan record survived Fix")
	}

	fs := vfs.Open(s)
	if got := fs.Entry("rom/startup.lua").StringContents(); got != "print('hi')" {
		t.Errorf("contents after repair = %q", got)
	}
}

func TestTreeFixesCompose(t *testing.T) {
	store := kvstore.NewMemStore()
	s := newTree(t, store, 0)
	store.Set(s.FileKey("rom", "children"), "[") //nolint:errcheck // MemStore

	d := &Doctor{}
	d.Register(&TreeListingsCheck{Store: store})
	d.Register(&TreeLinksCheck{Store: store})
	var out strings.Builder
	r := d.Run(&CheckContext{}, &out, true)
	if r.Fixed != 2 || !r.Healthy() {
		t.Fatalf("report = %+v, want both checks fixed\n%s", r, out.String())
	}

	keys, _ := store.Keys(persist.Prefix(0) + ".files[rom/")
	if len(keys) != 0 {
		t.Errorf("records under unreachable rom/ survived: %q", keys)
	}
}

type brokenStore struct{ kvstore.Store }

func (brokenStore) Keys(string) ([]string, error) { return nil, errors.New("connection refused") }

func TestTreeChecksStoreError(t *testing.T) {
	store := brokenStore{kvstore.NewMemStore()}
	for _, c := range []Check{&TreeListingsCheck{Store: store}, &TreeLinksCheck{Store: store}} {
		r := c.Run(&CheckContext{})
		if r.Status != StatusError || !strings.Contains(r.Message, "connection refused") {
			t.Errorf("%s: Run = %d %q, want store error", c.Name(), r.Status, r.Message)
		}
		if err := c.Fix(&CheckContext{}); err == nil {
			t.Errorf("%s: Fix succeeded on a broken store", c.Name())
		}
	}
}

func TestDropNames(t *testing.T) {
	got := dropNames([]string{"a", "b", "a", "c"}, []string{"a", "c"})
	if strings.Join(got, ",") != "b,a" {
		t.Errorf("dropNames = %q, want [b a]", got)
	}
}
