package mailvault

// ValueType is the semantic type of an entity field.
type ValueType int

const (
	ValueTypeString ValueType = iota
	ValueTypeNumber
	ValueTypeBoolean
	ValueTypeDate
	ValueTypeBytes
	ValueTypeCompressedString
)

// Cardinality declares whether a field or association may be absent.
type Cardinality int

const (
	// CardinalityOne marks a required field. A null value for a required
	// encrypted field is a model violation.
	CardinalityOne Cardinality = iota
	// CardinalityZeroOrOne marks an optional field; null passes through
	// encryption and decryption unchanged.
	CardinalityZeroOrOne
	// CardinalityAny marks a repeated aggregate association.
	CardinalityAny
)

// TypeRef identifies an entity type by application and type name.
type TypeRef struct {
	App  string
	Type string
}

// ModelValue describes one scalar field of a type model.
type ModelValue struct {
	Name        string
	Type        ValueType
	Cardinality Cardinality
	Encrypted   bool
	Final       bool
}

// ModelAssociation describes one aggregate field of a type model. Aggregates
// recurse through the instance mapper with the parent's session key.
type ModelAssociation struct {
	Name        string
	Cardinality Cardinality
	RefModel    *TypeModel
}

// TypeModel is the descriptor driving field-by-field conversion between the
// encrypted wire literal and the decrypted in-memory instance.
type TypeModel struct {
	Ref       TypeRef
	Name      string
	Encrypted bool
	Values    []ModelValue
	// Associations are aggregate sub-structures, not list references; list
	// references stay plain id strings in the literal.
	Associations []ModelAssociation
}

// Literal is the encrypted wire form of an entity: field name to wire value
// (string, nested literal, []any for repeated aggregates, or nil).
type Literal = map[string]any

// Instance is the decrypted in-memory form of an entity. Scalar fields carry
// Go-native values (string, int64, bool, time.Time, []byte). The ErrorsKey
// entry, when present, maps field names to decryption failure messages.
type Instance = map[string]any

// Well-known system attribute names shared by all entity types.
const (
	IDAttr                 = "_id"
	PermissionsAttr        = "_permissions"
	FormatAttr             = "_format"
	OwnerGroupAttr         = "_ownerGroup"
	OwnerEncSessionKeyAttr = "_ownerEncSessionKey"
	// ErrorsKey is the per-instance error sidecar: a map[string]string of
	// field name to failure message for fields that could not be decrypted.
	// Consumers must check it before trusting a zero-valued field.
	ErrorsKey = "_errors"
)

// IDTuple is a list-element id: list id plus element id.
type IDTuple struct {
	ListID    string
	ElementID string
}
