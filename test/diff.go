// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package test holds the test helpers shared by the hashkit packages.
package test

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Diff returns the difference of two objects in a human readable
// format. An empty string is returned when there is no difference.
func Diff(expected, actual interface{}) string {
	if DeepEqual(expected, actual) {
		return ""
	}
	return diffImpl(expected, actual)
}

func diffImpl(expected, actual interface{}) string {
	if expected == nil || actual == nil {
		return fmt.Sprintf("expected %#v but got %#v", expected, actual)
	}
	re, ra := reflect.ValueOf(expected), reflect.ValueOf(actual)
	if re.Type() != ra.Type() {
		return fmt.Sprintf("types differ: expected %T but got %T", expected, actual)
	}
	switch re.Kind() {
	case reflect.Slice:
		if re.Len() != ra.Len() {
			return fmt.Sprintf("length differs: expected %d elements %v but got %d elements %v",
				re.Len(), expected, ra.Len(), actual)
		}
		for i := 0; i < re.Len(); i++ {
			ev, av := re.Index(i).Interface(), ra.Index(i).Interface()
			if !DeepEqual(ev, av) {
				return fmt.Sprintf("at index %d: expected %#v but got %#v", i, ev, av)
			}
		}
	case reflect.Map:
		var missing, extra, wrong []string
		iter := re.MapRange()
		for iter.Next() {
			av := ra.MapIndex(iter.Key())
			if !av.IsValid() {
				missing = append(missing, fmt.Sprintf("%v", iter.Key().Interface()))
			} else if !DeepEqual(iter.Value().Interface(), av.Interface()) {
				wrong = append(wrong, fmt.Sprintf("key %v: expected %#v but got %#v",
					iter.Key().Interface(), iter.Value().Interface(), av.Interface()))
			}
		}
		iter = ra.MapRange()
		for iter.Next() {
			if !re.MapIndex(iter.Key()).IsValid() {
				extra = append(extra, fmt.Sprintf("%v", iter.Key().Interface()))
			}
		}
		var parts []string
		if len(missing) > 0 {
			sort.Strings(missing)
			parts = append(parts, "missing keys: "+strings.Join(missing, ", "))
		}
		if len(extra) > 0 {
			sort.Strings(extra)
			parts = append(parts, "extra keys: "+strings.Join(extra, ", "))
		}
		if len(wrong) > 0 {
			sort.Strings(wrong)
			parts = append(parts, strings.Join(wrong, "; "))
		}
		if len(parts) > 0 {
			return strings.Join(parts, "; ")
		}
	}
	return fmt.Sprintf("expected %#v but got %#v", expected, actual)
}
