package registry

import (
	"reflect"

	"cryptoservices/internal/params"
)

// Property describes a configurable value. Properties are identified by name;
// the type constrains what may be stored under that name.
type Property struct {
	name string
	typ  reflect.Type
}

// NewProperty declares a property holding values assignable to typ.
func NewProperty(name string, typ reflect.Type) Property {
	return Property{name: name, typ: typ}
}

// PropertyOf declares a property holding values of type T.
func PropertyOf[T any](name string) Property {
	return Property{name: name, typ: reflect.TypeOf((*T)(nil)).Elem()}
}

// Name returns the property name.
func (p Property) Name() string { return p.name }

// Type returns the declared value type.
func (p Property) Type() reflect.Type { return p.typ }

// String implements fmt.Stringer.
func (p Property) String() string { return p.name }

// accepts reports whether v may be stored under p.
func (p Property) accepts(v any) bool {
	if v == nil || p.typ == nil {
		return false
	}
	return reflect.TypeOf(v).AssignableTo(p.typ)
}

// sized reports whether values of p carry a modulus size.
func (p Property) sized() bool {
	return p.typ != nil && p.typ.Implements(sizedType)
}

// Sized is implemented by parameter sets selectable by modulus size.
type Sized interface {
	ModulusBitLen() int
}

var sizedType = reflect.TypeOf((*Sized)(nil)).Elem()

// Well-known properties.
var (
	// ECImplicitlyCA holds the parameters used for implicitlyCA X9.62 keys.
	ECImplicitlyCA = PropertyOf[*params.ECParameters]("ecImplicitlyCA")
	// DHDefaultParams holds default Diffie-Hellman parameters. Sized.
	DHDefaultParams = PropertyOf[*params.DHParameters]("dhDefaultParams")
	// DSADefaultParams holds default DSA parameters. Sized.
	DSADefaultParams = PropertyOf[*params.DSAParameters]("dsaDefaultParams")
)
