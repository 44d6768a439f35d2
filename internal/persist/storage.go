package persist

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/copycat-emu/copycat/internal/kvstore"
)

// Storage is a Backend that saves one computer into a key-value store.
// Every key is namespaced under "computer[<id>]" so several computers can
// share a store:
//
//	computer[<id>].label
//	computer[<id>].files[<path>].b64         base64 contents
//	computer[<id>].files[<path>].children    JSON array of names
//	computer[<id>].files[<path>].attributes  JSON {"creation","modification"}
type Storage struct {
	store  kvstore.Store
	id     int
	prefix string
	log    *zap.Logger
}

// StorageOption configures NewStorage.
type StorageOption func(*Storage)

// WithLogger sets the logger used to report corrupt records and store
// failures.
func WithLogger(l *zap.Logger) StorageOption {
	return func(s *Storage) { s.log = l }
}

// NewStorage returns the Backend for computer id inside store.
func NewStorage(store kvstore.Store, id int, opts ...StorageOption) *Storage {
	s := &Storage{
		store:  store,
		id:     id,
		prefix: Prefix(id),
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(zap.Int("computer", id))
	return s
}

// Prefix returns the key prefix owned by computer id.
func Prefix(id int) string {
	return fmt.Sprintf("computer[%d]", id)
}

// ID returns the computer id this backend is bound to.
func (s *Storage) ID() int { return s.id }

// Store returns the underlying key-value store.
func (s *Storage) Store() kvstore.Store { return s.store }

// LabelKey returns the key the label is stored under.
func (s *Storage) LabelKey() string { return s.prefix + ".label" }

// FileKey returns the key of one record of path. kind is "b64",
// "children" or "attributes".
func (s *Storage) FileKey(path, kind string) string {
	return s.prefix + ".files[" + path + "]." + kind
}

func (s *Storage) get(key string) (string, bool) {
	v, ok, err := s.store.Get(key)
	if err != nil {
		s.log.Error("reading from storage", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return v, ok
}

func (s *Storage) set(key, value string) {
	if err := s.store.Set(key, value); err != nil {
		s.log.Error("writing to storage", zap.String("key", key), zap.Error(err))
	}
}

func (s *Storage) remove(key string) {
	if err := s.store.Remove(key); err != nil {
		s.log.Error("removing from storage", zap.String("key", key), zap.Error(err))
	}
}

// Label returns the stored label.
func (s *Storage) Label() string {
	v, _ := s.get(s.LabelKey())
	return v
}

// SetLabel stores label, removing the record when it is empty.
func (s *Storage) SetLabel(label string) {
	if label == "" {
		s.remove(s.LabelKey())
		return
	}
	s.set(s.LabelKey(), label)
}

// Contents decodes the stored contents of path.
func (s *Storage) Contents(path string) []byte {
	key := s.FileKey(path, "b64")
	v, ok := s.get(key)
	if !ok || v == "" {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		s.log.Warn("corrupt file contents, treating as empty",
			zap.String("path", path), zap.Error(err))
		return nil
	}
	return data
}

func (s *Storage) SetContents(path string, data []byte) {
	s.set(s.FileKey(path, "b64"), base64.StdEncoding.EncodeToString(data))
}

func (s *Storage) RemoveContents(path string) {
	s.remove(s.FileKey(path, "b64"))
}

// Children decodes the stored listing of path.
func (s *Storage) Children(path string) ([]string, bool) {
	v, ok := s.get(s.FileKey(path, "children"))
	if !ok {
		return nil, false
	}
	var names []string
	if err := json.Unmarshal([]byte(v), &names); err != nil {
		s.log.Warn("corrupt directory listing, treating as absent",
			zap.String("path", path), zap.Error(err))
		return nil, false
	}
	if names == nil {
		names = []string{}
	}
	return names, true
}

func (s *Storage) SetChildren(path string, names []string) {
	if names == nil {
		names = []string{}
	}
	data, err := json.Marshal(names)
	if err != nil {
		s.log.Error("encoding directory listing", zap.String("path", path), zap.Error(err))
		return
	}
	s.set(s.FileKey(path, "children"), string(data))
}

func (s *Storage) RemoveChildren(path string) {
	s.remove(s.FileKey(path, "children"))
}

// Attributes decodes the stored attributes of path.
func (s *Storage) Attributes(path string) (Attributes, bool) {
	v, ok := s.get(s.FileKey(path, "attributes"))
	if !ok {
		return Attributes{}, false
	}
	var a Attributes
	if err := json.Unmarshal([]byte(v), &a); err != nil {
		s.log.Warn("corrupt attributes, treating as absent",
			zap.String("path", path), zap.Error(err))
		return Attributes{}, false
	}
	return a, true
}

func (s *Storage) SetAttributes(path string, attrs Attributes) {
	data, err := json.Marshal(attrs)
	if err != nil {
		s.log.Error("encoding attributes", zap.String("path", path), zap.Error(err))
		return
	}
	s.set(s.FileKey(path, "attributes"), string(data))
}

func (s *Storage) RemoveAttributes(path string) {
	s.remove(s.FileKey(path, "attributes"))
}

// Record is one persisted file record of a computer, as returned by
// Records.
type Record struct {
	Key  string
	Path string
	Kind string // "b64", "children" or "attributes"
}

var recordKey = regexp.MustCompile(`^\.files\[(.*)\]\.(b64|children|attributes)$`)

// Records lists every file record stored for this computer. Keys under
// the prefix that do not parse as file records are skipped.
func (s *Storage) Records() ([]Record, error) {
	keys, err := s.store.Keys(s.prefix + ".files[")
	if err != nil {
		return nil, fmt.Errorf("listing records of computer %d: %w", s.id, err)
	}
	var out []Record
	for _, k := range keys {
		m := recordKey.FindStringSubmatch(k[len(s.prefix):])
		if m == nil {
			continue
		}
		out = append(out, Record{Key: k, Path: m[1], Kind: m[2]})
	}
	return out, nil
}

var computerKey = regexp.MustCompile(`^computer\[(\d+)\]\.`)

// Computers returns the ids of every computer with data in store, sorted.
func Computers(store kvstore.Store) ([]int, error) {
	keys, err := store.Keys("computer[")
	if err != nil {
		return nil, fmt.Errorf("listing computers: %w", err)
	}
	seen := make(map[int]bool)
	var ids []int
	for _, k := range keys {
		m := computerKey.FindStringSubmatch(k)
		if m == nil {
			continue
		}
		id, err := strconv.Atoi(m[1])
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}
