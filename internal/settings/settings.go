// Package settings persists the engine's user-tunable properties.
//
// The engine registers properties through config groups obtained from
// [Store.Factory]. Stored values live as one JSON object under the
// "settings" key of a kvstore, keyed by property id. Values for
// properties the engine has not (yet) registered are kept verbatim.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/copycat-emu/copycat/internal/engine"
	"github.com/copycat-emu/copycat/internal/kvstore"
)

// Key is the kvstore key holding the settings object.
const Key = "settings"

// ErrInvalidValue is returned by Set for a value the property rejects.
var ErrInvalidValue = errors.New("invalid setting value")

// Kind is the type of a property.
type Kind string

// Property kinds.
const (
	KindString  Kind = "string"
	KindBoolean Kind = "boolean"
	KindInt     Kind = "int"
	KindOption  Kind = "option"
)

// Property is one registered engine property.
type Property struct {
	Kind        Kind
	ID          string
	Name        string
	Description string
	Default     any
	// Min and Max bound KindInt values.
	Min, Max int
	// Choices lists the allowed KindOption values.
	Choices []engine.Choice

	changed func(any)
}

// Group is a named set of properties.
type Group struct {
	Name        string
	Description string

	store *Store
}

// Properties returns the group's properties in registration order.
func (g *Group) Properties() []*Property {
	g.store.mu.Lock()
	defer g.store.mu.Unlock()
	var out []*Property
	for _, p := range g.store.props {
		if p.group == g {
			out = append(out, p.Property)
		}
	}
	return out
}

type registered struct {
	*Property
	group *Group
}

// Store holds setting values and the properties registered against them.
// Safe for concurrent use.
type Store struct {
	kv  kvstore.Store
	log *zap.Logger

	mu     sync.Mutex
	data   map[string]any
	groups []*Group
	props  []registered
	byID   map[string]*Property
}

// Option configures Open.
type Option func(*Store)

// WithLogger sets the logger corrupt settings are reported to.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = l }
}

// Open loads the settings held in kv. Unreadable settings are logged and
// treated as empty.
func Open(kv kvstore.Store, opts ...Option) *Store {
	s := &Store{
		kv:   kv,
		log:  zap.NewNop(),
		data: map[string]any{},
		byID: map[string]*Property{},
	}
	for _, opt := range opts {
		opt(s)
	}

	raw, ok, err := kv.Get(Key)
	switch {
	case err != nil:
		s.log.Error("cannot read settings", zap.Error(err))
	case ok:
		var data map[string]any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			s.log.Warn("cannot read settings", zap.String("key", Key), zap.Error(err))
		} else if data != nil {
			s.data = data
		}
	}
	return s
}

// Factory returns the engine ConfigFactory backed by this store.
func (s *Store) Factory() engine.ConfigFactory {
	return func(name, description string) engine.ConfigGroup {
		return s.Group(name, description)
	}
}

// Group returns the group called name, creating it if needed.
func (s *Store) Group(name, description string) *Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.groups {
		if g.Name == name {
			return g
		}
	}
	g := &Group{Name: name, Description: description, store: s}
	s.groups = append(s.groups, g)
	return g
}

// Groups returns the groups in creation order.
func (s *Store) Groups() []*Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.groups)
}

// Property returns the registered property id.
func (s *Store) Property(id string) (*Property, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	return p, ok
}

// Values returns a copy of every stored value, registered or not.
func (s *Store) Values() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.data)
}

// Value returns the current value of a registered property: the stored
// value when present and valid, otherwise its default.
func (s *Store) Value(p *Property) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value(p)
}

func (s *Store) value(p *Property) any {
	if v, ok := s.data[p.ID]; ok {
		if c, err := coerce(p, v); err == nil {
			return c
		}
	}
	return p.Default
}

// Set stores value for property id. For a registered property the value
// is validated and, when it differs from the current value, persisted and
// reported to the property's change callback. Values for unregistered ids
// are stored as given.
func (s *Store) Set(id string, value any) error {
	s.mu.Lock()
	p, ok := s.byID[id]
	if ok {
		c, err := coerce(p, value)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("setting %q: %w", id, err)
		}
		if c == s.value(p) {
			s.mu.Unlock()
			return nil
		}
		value = c
	}
	prev, had := s.data[id]
	s.data[id] = value
	err := s.save()
	if err != nil {
		if had {
			s.data[id] = prev
		} else {
			delete(s.data, id)
		}
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if ok && p.changed != nil {
		p.changed(value)
	}
	return nil
}

// save writes the settings object. Caller must hold mu.
func (s *Store) save() error {
	b, err := json.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if err := s.kv.Set(Key, string(b)); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}

// add registers p in g and reports a stored non-default value.
func (s *Store) add(g *Group, p *Property) {
	s.mu.Lock()
	s.props = append(s.props, registered{Property: p, group: g})
	s.byID[p.ID] = p
	v := s.value(p)
	s.mu.Unlock()

	if v != p.Default && p.changed != nil {
		p.changed(v)
	}
}

// coerce converts a decoded or user-supplied value to p's Go type and
// validates it.
func coerce(p *Property, v any) (any, error) {
	switch p.Kind {
	case KindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case KindBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case KindInt:
		var n int
		switch x := v.(type) {
		case int:
			n = x
		case int64:
			n = int(x)
		case float64:
			if x != float64(int(x)) {
				return nil, fmt.Errorf("%w: %v is not an integer", ErrInvalidValue, x)
			}
			n = int(x)
		default:
			return nil, fmt.Errorf("%w: want int, got %T", ErrInvalidValue, v)
		}
		if n < p.Min || n > p.Max {
			return nil, fmt.Errorf("%w: %d outside [%d, %d]", ErrInvalidValue, n, p.Min, p.Max)
		}
		return n, nil
	case KindOption:
		if s, ok := v.(string); ok {
			for _, c := range p.Choices {
				if c.Key == s {
					return s, nil
				}
			}
			return nil, fmt.Errorf("%w: %q is not a choice", ErrInvalidValue, s)
		}
	}
	return nil, fmt.Errorf("%w: want %s, got %T", ErrInvalidValue, p.Kind, v)
}

func (g *Group) AddString(id, name, def, description string, changed func(string)) {
	g.store.add(g, &Property{
		Kind: KindString, ID: id, Name: name, Description: description, Default: def,
		changed: func(v any) { call(changed, v) },
	})
}

func (g *Group) AddBoolean(id, name string, def bool, description string, changed func(bool)) {
	g.store.add(g, &Property{
		Kind: KindBoolean, ID: id, Name: name, Description: description, Default: def,
		changed: func(v any) { call(changed, v) },
	})
}

func (g *Group) AddInt(id, name string, def, min, max int, description string, changed func(int)) {
	g.store.add(g, &Property{
		Kind: KindInt, ID: id, Name: name, Description: description, Default: def,
		Min: min, Max: max,
		changed: func(v any) { call(changed, v) },
	})
}

func (g *Group) AddOption(id, name, def string, choices []engine.Choice, description string, changed func(string)) {
	g.store.add(g, &Property{
		Kind: KindOption, ID: id, Name: name, Description: description, Default: def,
		Choices: slices.Clone(choices),
		changed: func(v any) { call(changed, v) },
	})
}

// ParseValue interprets a command-line value: JSON when it parses as
// JSON, otherwise the raw string.
func ParseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

func call[T any](fn func(T), v any) {
	if fn == nil {
		return
	}
	if t, ok := v.(T); ok {
		fn(t)
	}
}

var _ engine.ConfigGroup = (*Group)(nil)
