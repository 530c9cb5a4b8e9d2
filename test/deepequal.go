// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package test

import "reflect"

// comparer types have an equality-testing method.
type comparer interface {
	// Equal returns true if this object is equal to the other one.
	Equal(other interface{}) bool
}

// DeepEqual compares two values, giving types the ability to define
// their own comparison by implementing Equal(other interface{}) bool.
// Slices and maps are compared element by element under the same rules;
// everything else falls through to reflect.DeepEqual.
func DeepEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == b
	}
	if ac, ok := a.(comparer); ok {
		return ac.Equal(b)
	}
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Type() != rb.Type() {
		return false
	}
	switch ra.Kind() {
	case reflect.Slice:
		if ra.Len() != rb.Len() {
			return false
		}
		for i := 0; i < ra.Len(); i++ {
			if !DeepEqual(ra.Index(i).Interface(), rb.Index(i).Interface()) {
				return false
			}
		}
		return true
	case reflect.Map:
		if ra.Len() != rb.Len() {
			return false
		}
		iter := ra.MapRange()
		for iter.Next() {
			ov := rb.MapIndex(iter.Key())
			if !ov.IsValid() {
				return false
			}
			if !DeepEqual(iter.Value().Interface(), ov.Interface()) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}
