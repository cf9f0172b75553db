package store

// Transform is a field-update sentinel applied by the store on write.
type Transform struct {
	Kind   TransformKind
	Values []any
}

type TransformKind int

const (
	TransformArrayUnion TransformKind = iota + 1
	TransformArrayRemove
)

// ArrayUnion appends each value not already present in the array field.
func ArrayUnion(vals ...any) Transform {
	return Transform{Kind: TransformArrayUnion, Values: vals}
}

// ArrayRemove removes every occurrence of each value. Absent values are a no-op.
func ArrayRemove(vals ...any) Transform {
	return Transform{Kind: TransformArrayRemove, Values: vals}
}
