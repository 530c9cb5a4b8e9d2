// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package test

import "testing"

// ShouldPanic fails the test unless fn panics.
func ShouldPanic(t *testing.T, fn func()) {
	t.Helper()
	if _, panicked := capturePanic(fn); !panicked {
		t.Error("expected a panic, but the function returned")
	}
}

// ShouldPanicWithStr fails the test unless fn panics with msg. A panic
// value that is an error is matched against its message.
func ShouldPanicWithStr(t *testing.T, msg string, fn func()) {
	t.Helper()
	v, panicked := capturePanic(fn)
	if !panicked {
		t.Errorf("expected a panic with %q, but the function returned", msg)
		return
	}
	got, ok := panicString(v)
	if !ok {
		t.Errorf("panic value %#v is neither string nor error", v)
		return
	}
	if got != msg {
		t.Errorf("panicked with %q, expected %q", got, msg)
	}
}

// capturePanic runs fn, swallowing and returning its panic value.
func capturePanic(fn func()) (v interface{}, panicked bool) {
	returned := false
	defer func() {
		if !returned {
			v = recover()
			panicked = true
		}
	}()
	fn()
	returned = true
	return
}

func panicString(v interface{}) (string, bool) {
	switch p := v.(type) {
	case string:
		return p, true
	case error:
		return p.Error(), true
	}
	return "", false
}
