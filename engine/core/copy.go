package core

import (
	"fmt"

	"github.com/mohae/deepcopy"
)

// DeepCopy returns a deep copy of v. Decoded JSON values (maps, slices,
// scalars) are copied structurally; nil stays nil.
func DeepCopy[T any](v T) (T, error) {
	var zero T
	if any(v) == nil {
		return zero, nil
	}
	copied, ok := deepcopy.Copy(v).(T)
	if !ok {
		return zero, fmt.Errorf("failed to cast copied value to type %T", zero)
	}
	return copied, nil
}

// CopyJSONObject deep-copies a decoded JSON object.
func CopyJSONObject(m map[string]any) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	return DeepCopy(m)
}
