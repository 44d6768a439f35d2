package kvstore_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/copycat-emu/copycat/internal/fsys"
	"github.com/copycat-emu/copycat/internal/kvstore"
	"github.com/copycat-emu/copycat/internal/kvstore/kvstoretest"
)

func TestFileStore(t *testing.T) {
	kvstoretest.RunStoreTests(t, func() kvstore.Store {
		path := filepath.Join(t.TempDir(), "store.json")
		s, err := kvstore.OpenFileStore(fsys.OSFS{}, path)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { s.Close() }) //nolint:errcheck // test cleanup
		return s
	})
}

func TestFileStorePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")

	s1, err := kvstore.OpenFileStore(fsys.OSFS{}, path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s1.Set("computer[0].label", "turtle"); err != nil {
		t.Fatal(err)
	}
	if err := s1.Set("computer[0].files[].children", `["rom"]`); err != nil {
		t.Fatal(err)
	}
	if err := s1.Remove("computer[0].files[].children"); err != nil {
		t.Fatal(err)
	}
	if err := s1.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := kvstore.OpenFileStore(fsys.OSFS{}, path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close() //nolint:errcheck // test cleanup

	v, ok, err := s2.Get("computer[0].label")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || v != "turtle" {
		t.Errorf("Get after reopen = (%q, %v), want (%q, true)", v, ok, "turtle")
	}
	if _, ok, _ := s2.Get("computer[0].files[].children"); ok {
		t.Error("removed key came back after reopen")
	}
}

func TestFileStoreConcurrentWritesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	s1, err := kvstore.OpenFileStore(fsys.OSFS{}, path)
	if err != nil {
		t.Fatal(err)
	}
	g := kvstore.NewGuard(s1)
	kvstoretest.RunConcurrentWrites(t, g)
	if g.Disabled() {
		t.Fatal("guard disabled by concurrent writes")
	}
	if err := s1.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := kvstore.OpenFileStore(fsys.OSFS{}, path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close() //nolint:errcheck // test cleanup

	for w := range kvstoretest.ConcurrentWriters {
		for i := range kvstoretest.ConcurrentKeys {
			key := fmt.Sprintf("computer[%d].files[f%d].b64", w, i)
			v, ok, err := s2.Get(key)
			if err != nil {
				t.Fatal(err)
			}
			if !ok || v != fmt.Sprint(i) {
				t.Errorf("Get(%q) after reopen = (%q, %v), want (%q, true)", key, v, ok, fmt.Sprint(i))
			}
		}
	}
	scratch, err := s2.Keys("scratch[")
	if err != nil {
		t.Fatal(err)
	}
	if len(scratch) != 0 {
		t.Errorf("removed keys came back after reopen: %v", scratch)
	}
}

func TestFileStoreOpenCreatesParents(t *testing.T) {
	f := fsys.NewFake()
	s, err := kvstore.OpenFileStore(f, "/home/.copycat/store.json")
	if err != nil {
		t.Fatal(err)
	}
	if !f.Dirs["/home/.copycat"] {
		t.Error("parent directory not created")
	}
	keys, err := s.Keys("")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 0 {
		t.Errorf("Keys = %v, want empty store", keys)
	}
}

func TestFileStoreSaveIsAtomic(t *testing.T) {
	f := fsys.NewFake()
	s, err := kvstore.OpenFileStore(f, "/data/store.json")
	if err != nil {
		t.Fatal(err)
	}
	f.Calls = nil
	if err := s.Set("k", "v"); err != nil {
		t.Fatal(err)
	}

	var methods []string
	for _, c := range f.Calls {
		methods = append(methods, c.Method+" "+c.Path)
	}
	want := []string{"WriteFile /data/store.json.tmp", "Rename /data/store.json.tmp"}
	if fmt.Sprint(methods) != fmt.Sprint(want) {
		t.Errorf("calls = %v, want %v", methods, want)
	}

	var fd struct {
		Version int               `json:"version"`
		Data    map[string]string `json:"data"`
	}
	if err := json.Unmarshal(f.Files["/data/store.json"], &fd); err != nil {
		t.Fatalf("store file is not JSON: %v", err)
	}
	if fd.Version != 1 || fd.Data["k"] != "v" {
		t.Errorf("store file = %+v, want version 1 with k=v", fd)
	}
}

func TestFileStoreWriteError(t *testing.T) {
	f := fsys.NewFake()
	s, err := kvstore.OpenFileStore(f, "/data/store.json")
	if err != nil {
		t.Fatal(err)
	}
	f.Errors["/data/store.json.tmp"] = errors.New("disk full")
	if err := s.Set("k", "v"); err == nil {
		t.Fatal("Set succeeded despite write error")
	}
}

func TestFileStoreOpenCorrupt(t *testing.T) {
	f := fsys.NewFake()
	f.Files["/data/store.json"] = []byte("{not json")
	if _, err := kvstore.OpenFileStore(f, "/data/store.json"); err == nil {
		t.Fatal("OpenFileStore accepted corrupt file")
	}
}

func TestFileStoreOpenFutureVersion(t *testing.T) {
	f := fsys.NewFake()
	f.Files["/data/store.json"] = []byte(`{"version":99,"data":{}}`)
	if _, err := kvstore.OpenFileStore(f, "/data/store.json"); err == nil {
		t.Fatal("OpenFileStore accepted a newer format version")
	}
}

func TestFileStoreLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")

	s1, err := kvstore.OpenFileStore(fsys.OSFS{}, path, kvstore.WithLock())
	if err != nil {
		t.Fatal(err)
	}

	_, err = kvstore.OpenFileStore(fsys.OSFS{}, path, kvstore.WithLock())
	if !errors.Is(err, kvstore.ErrLocked) {
		t.Fatalf("second open = %v, want ErrLocked", err)
	}

	if err := s1.Close(); err != nil {
		t.Fatal(err)
	}
	s2, err := kvstore.OpenFileStore(fsys.OSFS{}, path, kvstore.WithLock())
	if err != nil {
		t.Fatalf("open after Close: %v", err)
	}
	s2.Close() //nolint:errcheck // test cleanup
}
