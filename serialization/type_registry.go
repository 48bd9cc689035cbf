package serialization

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/YouDoCom/rabbit-link/contracts"
)

// TypeRegistry maps a wire type name to the concrete Go type a
// dispatcher should decode a delivery's body into.
type TypeRegistry interface {
	Register(typeName string, msgType interface{}) error
	RegisterType(msgType interface{}) error
	Get(typeName string) (reflect.Type, error)
	CreateInstance(typeName string) (interface{}, error)
	GetTypeName(msg interface{}) (string, error)
	IsRegistered(typeName string) bool
	ListTypes() []string
	GetFactory(typeName string) (func() contracts.Message, error)
}

// DefaultTypeRegistry is the concurrency-safe TypeRegistry every
// Serializer defaults to.
type DefaultTypeRegistry struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
	names map[reflect.Type]string
}

// NewTypeRegistry creates an empty registry.
func NewTypeRegistry() *DefaultTypeRegistry {
	return &DefaultTypeRegistry{
		types: make(map[string]reflect.Type),
		names: make(map[reflect.Type]string),
	}
}

func (r *DefaultTypeRegistry) Register(typeName string, msgType interface{}) error {
	if typeName == "" {
		return fmt.Errorf("serialization: type name cannot be empty")
	}
	if msgType == nil {
		return fmt.Errorf("serialization: message type cannot be nil")
	}

	t := reflect.TypeOf(msgType)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return fmt.Errorf("serialization: message type must be a struct, got %v", t.Kind())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, exists := r.types[typeName]; exists {
		if existing == t {
			return nil
		}
		return fmt.Errorf("serialization: type name %s already registered to %v", typeName, existing)
	}
	r.types[typeName] = t
	r.names[t] = typeName
	return nil
}

func (r *DefaultTypeRegistry) RegisterType(msgType interface{}) error {
	if msgType == nil {
		return fmt.Errorf("serialization: message type cannot be nil")
	}
	t := reflect.TypeOf(msgType)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	typeName := t.Name()
	if typeName == "" {
		return fmt.Errorf("serialization: cannot determine type name for %v", t)
	}
	if t.PkgPath() != "" {
		typeName = t.PkgPath() + "." + typeName
	}
	return r.Register(typeName, msgType)
}

func (r *DefaultTypeRegistry) Get(typeName string) (reflect.Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, exists := r.types[typeName]
	if !exists {
		return nil, fmt.Errorf("serialization: type %s not registered", typeName)
	}
	return t, nil
}

func (r *DefaultTypeRegistry) CreateInstance(typeName string) (interface{}, error) {
	t, err := r.Get(typeName)
	if err != nil {
		return nil, err
	}
	return reflect.New(t).Interface(), nil
}

func (r *DefaultTypeRegistry) GetTypeName(msg interface{}) (string, error) {
	if msg == nil {
		return "", fmt.Errorf("serialization: message cannot be nil")
	}
	t := reflect.TypeOf(msg)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, exists := r.names[t]
	if !exists {
		return "", fmt.Errorf("serialization: type %v not registered", t)
	}
	return name, nil
}

func (r *DefaultTypeRegistry) IsRegistered(typeName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.types[typeName]
	return exists
}

func (r *DefaultTypeRegistry) ListTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.types))
	for typeName := range r.types {
		types = append(types, typeName)
	}
	return types
}

func (r *DefaultTypeRegistry) GetFactory(typeName string) (func() contracts.Message, error) {
	t, err := r.Get(typeName)
	if err != nil {
		return nil, err
	}
	return func() contracts.Message {
		instance := reflect.New(t).Interface()
		msg, _ := instance.(contracts.Message)
		return msg
	}, nil
}
