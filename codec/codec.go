// Package codec converts events to broker payloads and derives their wire names.
package codec

import (
	"encoding/json"
	"reflect"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
)

// JSON is the default codec. Every exported field is written, the event
// timestamp included.
type JSON struct{}

var _ cbus.Codec = JSON{}

func (JSON) Name(v any) string { return Name(v) }

func (JSON) Encode(v any) ([]byte, error) { return json.Marshal(v) }

func (JSON) Decode(data []byte, v any) error { return json.Unmarshal(data, v) }

func (JSON) ContentType() string { return "application/json" }

// Name returns the wire name for an event value: EventName() when the value
// or a pointer to it implements cbus.Named, otherwise the Go type name with
// pointers stripped. E and *E always resolve to the same name.
func Name(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return ""
	}

	rv := reflect.ValueOf(v)

	if t.Kind() == reflect.Ptr {
		if rv.IsNil() {
			rv = reflect.New(t.Elem())
		}

		if n, ok := rv.Interface().(cbus.Named); ok {
			return n.EventName()
		}

		return typeName(t)
	}

	// Addressable copy so pointer-receiver EventName methods are found.
	p := reflect.New(t)
	p.Elem().Set(rv)

	if n, ok := p.Interface().(cbus.Named); ok {
		return n.EventName()
	}

	return typeName(t)
}

// NameOf is Name for a type parameter, without needing a value.
func NameOf[E any]() string { return Name(Sample[E]()) }

// Sample returns a usable zero value of E. Pointer types get a pointer to a
// fresh zero value so value-receiver methods such as EventName can be called.
func Sample[E any]() any {
	t := reflect.TypeFor[E]()
	if t.Kind() == reflect.Ptr {
		return reflect.New(t.Elem()).Interface()
	}

	return reflect.New(t).Elem().Interface()
}

func typeName(t reflect.Type) string {
	if t == nil {
		return ""
	}

	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	name := t.Name()
	if name == "" { // unnamed (e.g., map/struct literal)
		name = t.String()
	}

	return name
}
