// Package nlog is the storage node's thin wrapper around glog, matching the
// way the teacher repo calls its vendored 3rdparty/glog from every package.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"github.com/golang/glog"
)

func Infof(format string, args ...interface{})    { glog.Infof(format, args...) }
func Warningf(format string, args ...interface{}) { glog.Warningf(format, args...) }
func Errorf(format string, args ...interface{})    { glog.Errorf(format, args...) }
func Fatalf(format string, args ...interface{})    { glog.Fatalf(format, args...) }

func Infoln(args ...interface{})  { glog.Infoln(args...) }
func Errorln(args ...interface{}) { glog.Errorln(args...) }

// V gates expensive log sites behind a verbosity level, same call shape as
// glog.V(n) / the teacher's glog.FastV(n, module).
func V(level glog.Level) glog.Verbose { return glog.V(level) }

// Flush drains buffered log lines; call on shutdown.
func Flush() { glog.Flush() }
