package domain

import (
	"context"
	"fmt"
	"reflect"
)

// Enumerated marks a parameter type as having a closed set of legal values.
// Declare it on the type itself, e.g.:
//
//	type Subregion string
//
//	func (Subregion) DiscreteValues() []string {
//		return []string{"EMEA", "APAC", "AMER"}
//	}
//
// The extractor calls DiscreteValues once per handler at registration time.
type Enumerated interface {
	DiscreteValues() []string
}

// Param is one formal parameter of a handler: its name plus its Go type.
type Param struct {
	Name string
	Type reflect.Type
}

// Signature describes a handler's declared parameter list in declaration
// order. That order is authoritative for key derivation downstream.
type Signature struct {
	Params []Param
}

// ExtractionError reports a parameter whose declared discrete type cannot be
// enumerated. It is fatal to registering the handler.
type ExtractionError struct {
	Param  string
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting discrete domain for parameter %q: %s", e.Param, e.Reason)
}

var (
	enumeratedType = reflect.TypeOf((*Enumerated)(nil)).Elem()
	contextType    = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// SignatureOf builds a Signature from a handler function and the names of
// its parameters. Go reflection exposes parameter types but not names, so
// callers supply the names; a leading context.Context parameter is skipped
// and needs no name.
func SignatureOf(fn any, names ...string) (Signature, error) {
	t := reflect.TypeOf(fn)
	if t == nil || t.Kind() != reflect.Func {
		return Signature{}, fmt.Errorf("handler is %T, not a function", fn)
	}

	start := 0
	if t.NumIn() > 0 && t.In(0).Implements(contextType) {
		start = 1
	}

	if got, want := len(names), t.NumIn()-start; got != want {
		return Signature{}, fmt.Errorf("handler takes %d named parameters, got %d names", want, got)
	}

	sig := Signature{Params: make([]Param, 0, t.NumIn()-start)}
	for i := start; i < t.NumIn(); i++ {
		sig.Params = append(sig.Params, Param{
			Name: names[i-start],
			Type: t.In(i),
		})
	}

	return sig, nil
}

// Extract identifies the discrete parameters of a signature and returns
// their specs in declaration order, plus the parameters that carry no
// enumerable type (the caller decides what to do with those).
//
// A parameter is discrete iff its type implements Enumerated. An Enumerated
// type that yields zero or duplicate values is a registration-time error.
func Extract(sig Signature) ([]ParameterSpec, []Param, error) {
	var (
		specs []ParameterSpec
		rest  []Param
	)

	for _, p := range sig.Params {
		if p.Type == nil || !p.Type.Implements(enumeratedType) {
			rest = append(rest, p)
			continue
		}

		enum, err := enumInstance(p)
		if err != nil {
			return nil, nil, err
		}

		spec := ParameterSpec{Name: p.Name, Values: enum.DiscreteValues()}
		if err := spec.Validate(); err != nil {
			return nil, nil, &ExtractionError{Param: p.Name, Reason: err.Error()}
		}

		specs = append(specs, spec)
	}

	return specs, rest, nil
}

// enumInstance builds a callable Enumerated value for a parameter type that
// implements the interface. The zero value is not always usable: a nil *T
// would blow up inside a promoted value-receiver method, and an interface
// type has no concrete value to enumerate at all. Both cases surface as an
// ExtractionError instead of a panic.
func enumInstance(p Param) (Enumerated, error) {
	switch p.Type.Kind() {
	case reflect.Interface:
		return nil, &ExtractionError{
			Param:  p.Name,
			Reason: "interface type carries no concrete value set",
		}
	case reflect.Pointer:
		enum, ok := reflect.New(p.Type.Elem()).Interface().(Enumerated)
		if !ok {
			return nil, &ExtractionError{
				Param:  p.Name,
				Reason: "cannot instantiate pointer type " + p.Type.String(),
			}
		}
		return enum, nil
	default:
		return reflect.Zero(p.Type).Interface().(Enumerated), nil
	}
}
