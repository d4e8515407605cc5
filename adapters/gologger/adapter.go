// Package gologger resolves the go-logger loggers used across the runtime and
// bridges them to go-job.
package gologger

import (
	"strings"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// Component logger names.
const (
	LoggerIntegrations = "integrations"
	LoggerFollowUp     = "integrations.followup"
	LoggerHTTP         = "integrations.http"
)

// Set is a resolved provider and root logger. Neither is nil.
type Set struct {
	Provider glog.LoggerProvider
	Root     glog.Logger
}

// NewSet resolves the root logger. A provider wins over a bare logger; with
// neither, everything is a nop.
func NewSet(provider glog.LoggerProvider, logger glog.Logger) Set {
	resolvedProvider, root := Resolve(LoggerIntegrations, provider, logger)
	return Set{Provider: resolvedProvider, Root: root}
}

// Named returns the logger for a component, or the root when name is blank.
func (s Set) Named(name string) glog.Logger {
	name = strings.TrimSpace(name)
	if name == "" || s.Provider == nil {
		return glog.Ensure(s.Root)
	}
	return glog.Ensure(s.Provider.GetLogger(name))
}

// Job bridges the named logger to go-job.
func (s Set) Job(name string) job.Logger {
	return job.GoLogger(s.Named(name))
}

// JobProvider bridges the provider to go-job.
func (s Set) JobProvider() job.LoggerProvider {
	if s.Provider == nil {
		return nil
	}
	return job.GoLoggerProvider(s.Provider)
}

// Resolve applies provider > logger > nop for name, defaulting to the
// integrations logger.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	if name = strings.TrimSpace(name); name == "" {
		name = LoggerIntegrations
	}
	resolvedProvider, resolved := glog.Resolve(name, provider, logger)
	return resolvedProvider, glog.Ensure(resolved)
}

// ResolveForJob is Resolve plus the go-job bridges of its results.
func ResolveForJob(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolved := Resolve(name, provider, logger)
	set := Set{Provider: resolvedProvider, Root: resolved}
	return resolvedProvider, resolved, set.JobProvider(), job.GoLogger(resolved)
}

// ForFollowUp returns the follow-up worker's handler logger and the go-job
// logger for its queue runner. Both write to the same sink.
func ForFollowUp(provider glog.LoggerProvider, logger glog.Logger) (glog.Logger, job.Logger) {
	_, resolved, _, jobLogger := ResolveForJob(LoggerFollowUp, provider, logger)
	return resolved, jobLogger
}
