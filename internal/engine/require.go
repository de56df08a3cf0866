package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/leapstack-labs/starload/internal/canon"
	"github.com/leapstack-labs/starload/internal/loadpath"
	"github.com/leapstack-labs/starload/internal/namespace"
)

// Require loads feature unless its canonical identity was loaded before. A
// unit that fails is not recorded and may be required again.
func (e *Engine) Require(ctx context.Context, feature string) (Result, error) {
	ctx, release := e.enter(ctx)
	defer release()

	start := time.Now()
	res, err := e.Resolve(feature)
	if err != nil {
		e.notify(OpRequire, feature, "", Failed, err, start)
		return Result{}, err
	}
	result, err := e.require(ctx, OpRequire, res)
	e.notify(OpRequire, feature, res.Identity, result.Status, err, start)
	return result, err
}

// RequireRelative requires name relative to the real directory of the unit
// currently loading. The load path is never searched.
func (e *Engine) RequireRelative(ctx context.Context, name string) (Result, error) {
	ctx, release := e.enter(ctx)
	defer release()

	start := time.Now()
	res, err := e.resolveRelative(name)
	if err != nil {
		e.notify(OpRequireRelative, name, "", Failed, err, start)
		return Result{}, err
	}
	result, err := e.require(ctx, OpRequireRelative, res)
	e.notify(OpRequireRelative, name, res.Identity, result.Status, err, start)
	return result, err
}

func (e *Engine) resolveRelative(name string) (Resolution, error) {
	frame, ok := e.Current()
	if !ok || frame.Dir == "" {
		return Resolution{}, &LoadError{Feature: name, Message: "cannot infer basepath"}
	}
	if err := canon.CheckLength(name); err != nil {
		return Resolution{}, notFound(name, err)
	}
	base := name
	if !filepath.IsAbs(name) {
		base = filepath.Join(frame.Dir, name)
	}
	res, err := e.resolveExplicit(base, base)
	if err != nil {
		return Resolution{}, err
	}
	return res, nil
}

func (e *Engine) require(ctx context.Context, op Op, res Resolution) (Result, error) {
	if err := e.checkTrust(res); err != nil {
		e.logger.Warn("refusing untrusted load path entry", "feature", res.Feature, "entry", res.Entry.Dir)
		return Result{}, err
	}
	if e.features.Contains(res.Identity) {
		e.logger.Debug("feature already loaded", "feature", res.Feature, "identity", res.Identity)
		return Result{Status: AlreadyLoaded, Identity: res.Identity}, nil
	}
	if e.loading(res.Identity) {
		e.logger.Debug("feature is currently loading", "feature", res.Feature, "identity", res.Identity)
		return Result{Status: AlreadyLoaded, Identity: res.Identity}, nil
	}

	if err := e.execute(ctx, op, res, e.ns, false); err != nil {
		return Result{}, err
	}

	request := res.Feature
	if op == OpRequireRelative {
		request = res.Path
	}
	e.features.Record(res.Identity, request)
	e.logger.Debug("feature loaded", "feature", res.Feature, "identity", res.Identity)
	return Result{Status: Loaded, Identity: res.Identity}, nil
}

// Load executes the file at path every time it is called, without consulting
// or updating the loaded features. With wrap, top-level definitions go into
// an anonymous namespace that is discarded afterwards.
func (e *Engine) Load(ctx context.Context, path string, wrap bool) error {
	return e.loadFile(ctx, OpLoad, path, wrap)
}

// Run executes a main script.
func (e *Engine) Run(ctx context.Context, path string) error {
	return e.loadFile(ctx, OpRun, path, false)
}

// RunSearch executes name, looking it up in scriptPath (home-expanded) first
// when it has no directory component. Entries too long to use are skipped.
func (e *Engine) RunSearch(ctx context.Context, name string, scriptPath []string) error {
	if filepath.Base(name) != name || len(scriptPath) == 0 {
		return e.Run(ctx, name)
	}
	search := loadpath.New(e.lp.Home(), e.logger)
	for _, dir := range scriptPath {
		search.Append(dir, loadpath.Trusted)
	}
	exts := append([]string{""}, e.scriptExts...)
	c, err := search.Find(name, exts)
	if err != nil {
		if !errors.Is(err, loadpath.ErrNotFound) {
			return notFound(name, err)
		}
		e.logger.Debug("script not found on script path", "script", name)
		return e.Run(ctx, name)
	}
	return e.Run(ctx, c.Path)
}

func (e *Engine) loadFile(ctx context.Context, op Op, path string, wrap bool) error {
	ctx, release := e.enter(ctx)
	defer release()

	start := time.Now()
	res, err := e.resolveFile(path)
	if err == nil {
		err = e.checkTrust(res)
	}
	if err != nil {
		e.notify(op, path, res.Identity, Failed, err, start)
		return err
	}

	ns := e.ns
	if wrap {
		ns = namespace.NewWrapped(e.ns, "wrap:"+res.Identity)
	}
	err = e.execute(ctx, op, res, ns, wrap)
	e.notify(op, path, res.Identity, Loaded, err, start)
	return err
}

// execute runs one unit with a frame on the load stack. The frame is popped
// on every exit path.
func (e *Engine) execute(ctx context.Context, op Op, res Resolution, ns *namespace.Namespace, wrapped bool) (err error) {
	depth := e.push(Frame{
		Op:       op,
		Feature:  res.Feature,
		Identity: res.Identity,
		Dir:      res.Dir(),
		Wrapped:  wrapped,
	})
	defer e.pop(depth)

	e.logger.Debug("executing unit",
		"op", string(op),
		"identity", res.Identity,
		"native", res.Native,
		"wrapped", wrapped,
		"depth", depth)

	if res.Native {
		return e.loadExtension(res, ns)
	}
	if e.evaluator == nil {
		return fmt.Errorf("no evaluator configured for %s", res.Path)
	}
	unit := &Unit{
		Feature:  res.Feature,
		Path:     res.Path,
		Identity: res.Identity,
		Dir:      res.Dir(),
		Wrapped:  wrapped,
	}
	return e.evaluator.Execute(WithContext(ctx, e), unit, ns)
}

// loadExtension opens a native unit and validates every constant it declares
// before any of them is defined.
func (e *Engine) loadExtension(res Resolution, ns *namespace.Namespace) error {
	ext, err := e.loader.Open(res.Path)
	if err != nil {
		return &LoadError{Feature: res.Feature, Path: res.Path, Message: "cannot load native extension", Err: err}
	}
	plan, err := namespace.Check(ns, ext.Definitions())
	if err != nil {
		e.logger.Debug("extension definitions conflict", "identity", res.Identity, "error", err)
		return err
	}
	if _, err := plan.Apply(); err != nil {
		return err
	}
	return ext.Init(ns)
}
