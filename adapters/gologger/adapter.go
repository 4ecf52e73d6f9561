// Package gologger resolves the glog logger/provider pair used across the
// relay, with deterministic precedence provider > logger > nop.
package gologger

import (
	glog "github.com/goliatone/go-logger/glog"
)

func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// Named returns a child logger for a component, falling back to the parent
// when no provider is configured.
func Named(provider glog.LoggerProvider, parent glog.Logger, name string) glog.Logger {
	if provider != nil {
		if logger := provider.GetLogger(name); logger != nil {
			return logger
		}
	}
	if parent != nil {
		return parent
	}
	return glog.Nop()
}
