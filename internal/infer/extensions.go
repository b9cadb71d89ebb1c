package infer

import (
	"strings"

	"github.com/shopware/php-infer/internal/php"
	"github.com/tliron/commonlog"
)

// MethodCallEvent describes an instance method call offered to extensions.
type MethodCallEvent struct {
	Instance  php.ObjectLike
	Name      string
	Scope     *Scope
	Arguments []php.Argument
}

// StaticMethodCallEvent describes a static method call offered to extensions.
type StaticMethodCallEvent struct {
	Callee    string
	Name      string
	Scope     *Scope
	Arguments []php.Argument
}

// MethodReturnTypeExtension provides return types of instance method calls.
// Returning nil means the extension has no opinion.
type MethodReturnTypeExtension interface {
	MethodReturnType(event MethodCallEvent) php.Type
}

// StaticMethodReturnTypeExtension provides return types of static method calls.
type StaticMethodReturnTypeExtension interface {
	StaticMethodReturnType(event StaticMethodCallEvent) php.Type
}

// ExtensionBroker is consulted before the index for every method call.
type ExtensionBroker interface {
	MethodReturnTypeExtension
	StaticMethodReturnTypeExtension
}

// Broker asks its extensions in registration order; the first answer wins.
type Broker struct {
	methods []MethodReturnTypeExtension
	statics []StaticMethodReturnTypeExtension
}

// NewBroker registers each extension for the call kinds it implements.
func NewBroker(extensions ...any) *Broker {
	b := &Broker{}
	for _, ext := range extensions {
		b.Register(ext)
	}
	return b
}

func (b *Broker) Register(ext any) {
	if m, ok := ext.(MethodReturnTypeExtension); ok {
		b.methods = append(b.methods, m)
	}
	if s, ok := ext.(StaticMethodReturnTypeExtension); ok {
		b.statics = append(b.statics, s)
	}
}

func (b *Broker) MethodReturnType(event MethodCallEvent) php.Type {
	for _, ext := range b.methods {
		if t := ext.MethodReturnType(event); t != nil {
			return t
		}
	}
	return nil
}

func (b *Broker) StaticMethodReturnType(event StaticMethodCallEvent) php.Type {
	for _, ext := range b.statics {
		if t := ext.StaticMethodReturnType(event); t != nil {
			return t
		}
	}
	return nil
}

// StubExtension answers calls from a table of declared return types keyed
// by "Class::method", for library code that is never analyzed.
type StubExtension struct {
	returns map[string]php.Type
	log     commonlog.Logger
}

// NewStubExtension parses the stub table. Keys without "::" are ignored.
func NewStubExtension(stubs map[string]string) *StubExtension {
	e := &StubExtension{
		returns: make(map[string]php.Type, len(stubs)),
		log:     commonlog.GetLogger("phpinfer.extensions"),
	}
	for key, typ := range stubs {
		class, method, ok := strings.Cut(key, "::")
		if !ok || method == "" {
			e.log.Warningf("ignoring stub %q: expected Class::method", key)
			continue
		}
		e.returns[stubKey(class, method)] = php.ParseType(typ)
	}
	return e
}

func stubKey(class, method string) string {
	return strings.ToLower(php.NormalizeClassName(class) + "::" + method)
}

func (e *StubExtension) lookup(class, method string) php.Type {
	t, ok := e.returns[stubKey(class, method)]
	if !ok {
		return nil
	}
	e.log.Debugf("stubbed return type for %s::%s: %s", class, method, t.String())
	return t
}

func (e *StubExtension) MethodReturnType(event MethodCallEvent) php.Type {
	return e.lookup(event.Instance.ClassName(), event.Name)
}

func (e *StubExtension) StaticMethodReturnType(event StaticMethodCallEvent) php.Type {
	return e.lookup(event.Callee, event.Name)
}
