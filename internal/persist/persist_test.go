package persist_test

import (
	"reflect"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/copycat-emu/copycat/internal/kvstore"
	"github.com/copycat-emu/copycat/internal/persist"
	"github.com/copycat-emu/copycat/internal/persist/persisttest"
)

func TestStorage(t *testing.T) {
	persisttest.RunBackendTests(t, func(t *testing.T) func(int) persist.Backend {
		store := kvstore.NewMemStore()
		return func(id int) persist.Backend { return persist.NewStorage(store, id) }
	})
}

func TestStorageKeyLayout(t *testing.T) {
	store := kvstore.NewMemStore()
	s := persist.NewStorage(store, 3)
	s.SetLabel("turtle")
	s.SetContents("rom/a.lua", []byte("hi"))
	s.SetChildren("rom", []string{"a.lua"})
	s.SetAttributes("rom/a.lua", persist.Attributes{Creation: 5, Modification: 6})

	want := map[string]string{
		"computer[3].label":                       "turtle",
		"computer[3].files[rom/a.lua].b64":        "aGk=",
		"computer[3].files[rom].children":         `["a.lua"]`,
		"computer[3].files[rom/a.lua].attributes": `{"creation":5,"modification":6}`,
	}
	for k, v := range want {
		got, ok, err := store.Get(k)
		if err != nil {
			t.Fatal(err)
		}
		if !ok || got != v {
			t.Errorf("store[%q] = (%q, %v), want %q", k, got, ok, v)
		}
	}
}

func TestStorageCorruptRecordsAreAbsent(t *testing.T) {
	store := kvstore.NewMemStoreFrom(map[string]string{
		"computer[0].files[].children":       "[not json",
		"computer[0].files[a].attributes":    "{",
		"computer[0].files[b].b64":           "!!!not base64",
		"computer[0].files[ok].children":     `["x"]`,
		"computer[0].files[ok/x].attributes": `{"creation":1,"modification":2}`,
	})
	core, logs := observer.New(zapcore.WarnLevel)
	s := persist.NewStorage(store, 0, persist.WithLogger(zap.New(core)))

	if _, ok := s.Children(""); ok {
		t.Error("corrupt listing reported present")
	}
	if _, ok := s.Attributes("a"); ok {
		t.Error("corrupt attributes reported present")
	}
	if got := s.Contents("b"); len(got) != 0 {
		t.Errorf("corrupt contents = %q, want empty", got)
	}
	if got, ok := s.Children("ok"); !ok || !reflect.DeepEqual(got, []string{"x"}) {
		t.Errorf("Children(ok) = (%v, %v), want ([x], true)", got, ok)
	}
	if n := logs.Len(); n != 3 {
		t.Errorf("logged %d warnings, want 3", n)
	}
	if e := logs.All()[0]; e.ContextMap()["computer"] != int64(0) {
		t.Errorf("log context = %v, want computer=0", e.ContextMap())
	}
}

func TestStorageRecords(t *testing.T) {
	store := kvstore.NewMemStore()
	s := persist.NewStorage(store, 1)
	s.SetChildren("", []string{"a"})
	s.SetContents("a", []byte("x"))
	s.SetLabel("ignored by Records")
	store.Set("computer[1].files[weird", "x")  //nolint:errcheck // MemStore
	store.Set("computer[10].files[b].b64", "") //nolint:errcheck // MemStore

	recs, err := s.Records()
	if err != nil {
		t.Fatal(err)
	}
	want := []persist.Record{
		{Key: "computer[1].files[].children", Path: "", Kind: "children"},
		{Key: "computer[1].files[a].b64", Path: "a", Kind: "b64"},
	}
	if !reflect.DeepEqual(recs, want) {
		t.Errorf("Records = %+v, want %+v", recs, want)
	}
}

func TestComputers(t *testing.T) {
	store := kvstore.NewMemStoreFrom(map[string]string{
		"computer[2].label":            "b",
		"computer[0].files[].children": "[]",
		"computer[0].label":            "a",
		"computer[10].label":           "c",
		"settings":                     "{}",
	})
	ids, err := persist.Computers(store)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids, []int{0, 2, 10}) {
		t.Errorf("Computers = %v, want [0 2 10]", ids)
	}
}

func TestVoid(t *testing.T) {
	var v persist.Void
	v.SetLabel("x")
	v.SetContents("a", []byte("x"))
	v.SetChildren("", []string{"a"})
	v.SetAttributes("a", persist.Attributes{Creation: 1})

	if v.Label() != "" {
		t.Error("Void kept a label")
	}
	if len(v.Contents("a")) != 0 {
		t.Error("Void kept contents")
	}
	if _, ok := v.Children(""); ok {
		t.Error("Void kept a listing")
	}
	if _, ok := v.Attributes("a"); ok {
		t.Error("Void kept attributes")
	}
}
