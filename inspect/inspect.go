// Copyright 2017 Microsoft. All rights reserved.
// MIT License

// Package inspect runs the namespace walk: enter each namespace, list its
// links, restore, then correlate everything with the known containers.
package inspect

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Azure/azure-netns-inspect/containers"
	"github.com/Azure/azure-netns-inspect/correlate"
	"github.com/Azure/azure-netns-inspect/netlink"
	"github.com/Azure/azure-netns-inspect/netns"
)

// ErrWorkerPanic is returned when enumeration panics on the worker thread.
var ErrWorkerPanic = errors.New("namespace worker panicked")

// namespaces switches the calling thread into registered namespaces.
type namespaces interface {
	Names() ([]string, error)
	Do(name string, fn func() error) error
}

type containerLister interface {
	List() []containers.Container
}

// Options control a run.
type Options struct {
	EnumerateTimeout      time.Duration
	IncludeDefault        bool
	AbortOnRestoreFailure bool
}

// Diagnostic records a namespace that was skipped or left the worker thread
// in an unknown state.
type Diagnostic struct {
	Namespace string
	Err       error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("namespace %s: %v", d.Namespace, d.Err)
}

// RestoreFailed reports whether the diagnostic is a failed namespace restore.
func (d Diagnostic) RestoreFailed() bool {
	return errors.Is(d.Err, netns.ErrRestoreFailed)
}

// Report is the result of a run. Namespaces are in the order they were
// inspected, devices carry their owning container.
type Report struct {
	Namespaces  []netlink.Links
	Containers  []containers.Container
	Diagnostics []Diagnostic
}

type Inspector struct {
	namespaces namespaces
	enumerator netlink.Enumerator
	containers containerLister
	opts       Options
	logger     *zap.Logger
}

func New(ns namespaces, enumerator netlink.Enumerator, cl containerLister, opts Options, logger *zap.Logger) *Inspector {
	return &Inspector{
		namespaces: ns,
		enumerator: enumerator,
		containers: cl,
		opts:       opts,
		logger:     logger,
	}
}

// job is one namespace to inspect. The host namespace is listed in place,
// without a switch.
type job struct {
	name string
	host bool
}

// outcome is what one worker thread got through before it stopped.
type outcome struct {
	processed int
	links     []netlink.Links
	diags     []Diagnostic
	err       error
}

// Run inspects every namespace and returns the correlated report. Namespace
// failures become diagnostics; the run itself fails only when the namespace
// list cannot be read, the context ends, or a restore fails and
// AbortOnRestoreFailure is set.
func (i *Inspector) Run(ctx context.Context) (*Report, error) {
	names, err := i.namespaces.Names()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list namespaces")
	}

	jobs := make([]job, 0, len(names)+1)
	if i.opts.IncludeDefault {
		jobs = append(jobs, job{name: correlate.DefaultNamespace, host: true})
	}
	for _, name := range names {
		jobs = append(jobs, job{name: name})
	}
	i.logger.Info("Inspecting namespaces", zap.Int("count", len(jobs)))

	report := &Report{}
	for len(jobs) > 0 {
		out := i.spawn(ctx, jobs)
		report.Namespaces = append(report.Namespaces, out.links...)
		report.Diagnostics = append(report.Diagnostics, out.diags...)
		if out.err != nil {
			return nil, out.err
		}
		jobs = jobs[out.processed:]
	}

	report.Containers = i.containers.List()
	correlate.Correlate(report.Namespaces, report.Containers)

	i.logger.Info("Inspection complete",
		zap.Int("namespaces", len(report.Namespaces)),
		zap.Int("containers", len(report.Containers)),
		zap.Int("diagnostics", len(report.Diagnostics)))
	return report, nil
}

// spawn runs jobs on a fresh goroutine locked to its own OS thread and waits
// for it. The worker stops early after a failed restore; its goroutine then
// exits still locked, so the runtime destroys the thread instead of handing
// it to other goroutines.
func (i *Inspector) spawn(ctx context.Context, jobs []job) outcome {
	var out outcome
	done := make(chan struct{})

	go func() {
		defer close(done)
		runtime.LockOSThread()
		defer func() {
			if r := recover(); r != nil {
				i.logger.Error("Recovered from panic", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				out.err = errors.Wrapf(ErrWorkerPanic, "%v", r)
			}
		}()

		if i.work(ctx, jobs, &out) {
			runtime.UnlockOSThread()
		}
	}()

	<-done
	return out
}

// work processes jobs in order. It returns false when the thread must not be
// reused.
func (i *Inspector) work(ctx context.Context, jobs []job, out *outcome) bool {
	for n, j := range jobs {
		if err := ctx.Err(); err != nil {
			out.err = errors.Wrap(err, "inspection cancelled")
			return true
		}

		links, ok, err := i.inspect(ctx, j)
		out.processed = n + 1
		if ok {
			out.links = append(out.links, links)
		}
		if err == nil {
			continue
		}

		d := Diagnostic{Namespace: j.name, Err: err}
		out.diags = append(out.diags, d)

		if !d.RestoreFailed() {
			i.logger.Warn("Skipping namespace", zap.String("namespace", j.name), zap.Error(err))
			continue
		}

		i.logger.Error("Namespace restore failed, retiring worker thread", zap.String("namespace", j.name), zap.Error(err))
		if i.opts.AbortOnRestoreFailure {
			out.err = err
		}
		return false
	}
	return true
}

// inspect lists the links of one namespace. ok is set when the links are
// complete, which they can be even if the restore afterwards failed.
func (i *Inspector) inspect(ctx context.Context, j job) (netlink.Links, bool, error) {
	if j.host {
		links, err := i.enumerate(ctx, j.name)
		return links, err == nil, err
	}

	var (
		links netlink.Links
		ok    bool
	)
	err := i.namespaces.Do(j.name, func() error {
		l, err := i.enumerate(ctx, j.name)
		if err != nil {
			return err
		}
		links, ok = l, true
		return nil
	})
	return links, ok, err
}

func (i *Inspector) enumerate(ctx context.Context, name string) (netlink.Links, error) {
	ctx, cancel := context.WithTimeout(ctx, i.opts.EnumerateTimeout)
	defer cancel()

	start := time.Now()
	links, err := i.enumerator.Links(ctx, name)
	if err != nil {
		return netlink.Links{}, errors.Wrapf(err, "failed to enumerate links")
	}

	i.logger.Debug("Enumerated namespace",
		zap.String("namespace", name),
		zap.Int("links", len(links.Devices)),
		zap.Duration("took", time.Since(start)))
	return links, nil
}
