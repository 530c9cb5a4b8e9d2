// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package logger

import "github.com/aristanetworks/glog"

// Glog routes Logger output to aristanetworks/glog. Progress lines go
// through glog's verbosity gate at InfoLevel, so -v controls how
// chatty a tool is without touching its failure reporting.
type Glog struct {
	InfoLevel glog.Level
}

var _ Logger = (*Glog)(nil)

func (g *Glog) Infof(format string, args ...interface{}) {
	glog.V(g.InfoLevel).Infof(format, args...)
}

func (g *Glog) Fatalf(format string, args ...interface{}) {
	glog.Fatalf(format, args...)
}
