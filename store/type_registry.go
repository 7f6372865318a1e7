package store

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
)

// TypeRegistry maps snapshot type names (the OT type a document uses, e.g.
// "json0" or "http://sharejs.org/types/JSONv0") to Go types, so the generic
// Data returned by backends can be decoded into something typed.
type TypeRegistry struct {
	mu       sync.RWMutex
	types    map[string]reflect.Type
	decoders map[string]DecodeFunc
}

// DecodeFunc converts the raw Data of a snapshot into a typed value.
type DecodeFunc func(data any) (any, error)

// NewTypeRegistry creates an empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		types:    make(map[string]reflect.Type),
		decoders: make(map[string]DecodeFunc),
	}
}

var globalTypeRegistry = NewTypeRegistry()

// GlobalTypeRegistry returns the process-wide registry.
func GlobalTypeRegistry() *TypeRegistry {
	return globalTypeRegistry
}

// RegisterType registers the type of prototype for typeName in the global
// registry.
//
//	store.RegisterType("rich-text", Delta{})
func RegisterType(typeName string, prototype any) error {
	return globalTypeRegistry.Register(typeName, prototype)
}

// Register binds typeName to the dynamic type of prototype. Registering the
// same name twice with different types fails.
func (r *TypeRegistry) Register(typeName string, prototype any) error {
	if typeName == "" {
		return fmt.Errorf("type name is required")
	}
	if prototype == nil {
		return fmt.Errorf("type %s: prototype is nil", typeName)
	}
	t := reflect.TypeOf(prototype)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.types[typeName]; ok && existing != t {
		return fmt.Errorf("type %s already registered as %v", typeName, existing)
	}
	r.types[typeName] = t
	return nil
}

// RegisterDecoder binds typeName to a custom decode function.
func (r *TypeRegistry) RegisterDecoder(typeName string, decode DecodeFunc) error {
	if typeName == "" || decode == nil {
		return fmt.Errorf("type name and decoder are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[typeName] = decode
	return nil
}

// Lookup returns the Go type registered for typeName.
func (r *TypeRegistry) Lookup(typeName string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[typeName]
	return t, ok
}

// Decode returns snap.Data converted to the type registered for snap.Type.
// Unregistered types, and snapshots whose Data already has the registered
// type, are returned unchanged.
func (r *TypeRegistry) Decode(snap *Snapshot) (any, error) {
	if snap == nil || snap.Data == nil {
		return nil, nil
	}

	r.mu.RLock()
	decode, hasDecoder := r.decoders[snap.Type]
	t, hasType := r.types[snap.Type]
	r.mu.RUnlock()

	if hasDecoder {
		return decode(snap.Data)
	}
	if !hasType || reflect.TypeOf(snap.Data) == t {
		return snap.Data, nil
	}

	raw, err := json.Marshal(snap.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal data of %s: %w", snap.ID, err)
	}

	target := t
	if t.Kind() == reflect.Ptr {
		target = t.Elem()
	}
	ptr := reflect.New(target)
	if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("failed to decode data of %s as %s: %w", snap.ID, snap.Type, err)
	}
	if t.Kind() == reflect.Ptr {
		return ptr.Interface(), nil
	}
	return ptr.Elem().Interface(), nil
}

// DecodeData decodes snap.Data into T, whatever snap.Type says.
func DecodeData[T any](snap *Snapshot) (T, error) {
	var out T
	if snap == nil || snap.Data == nil {
		return out, nil
	}
	if v, ok := snap.Data.(T); ok {
		return v, nil
	}

	raw, err := json.Marshal(snap.Data)
	if err != nil {
		return out, fmt.Errorf("failed to marshal data of %s: %w", snap.ID, err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("failed to decode data of %s: %w", snap.ID, err)
	}
	return out, nil
}
