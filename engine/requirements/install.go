package requirements

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/agentforge-io/agentforge/pkg/logger"
)

// InstallError reports the failure of one package's install without
// affecting the others.
type InstallError struct {
	Package string
	Stderr  string
	Err     error
}

func (e *InstallError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("install of %s failed: %v: %s", e.Package, e.Err, e.Stderr)
	}
	return fmt.Sprintf("install of %s failed: %v", e.Package, e.Err)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}

// Installer installs runtime dependencies with the configured package
// manager. Installs are mutually independent, so they run in parallel up
// to Parallelism; every failure stays attributable to its package.
type Installer struct {
	Command     string
	Dir         string
	Parallelism int
}

// NewInstaller returns an installer running command in dir.
func NewInstaller(command, dir string, parallelism int) *Installer {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Installer{Command: command, Dir: dir, Parallelism: parallelism}
}

// Install installs every package in reqs. It never aborts independent
// installs on failure; the returned error joins one InstallError per
// failed package.
func (i *Installer) Install(ctx context.Context, reqs Requirements) error {
	if len(reqs) == 0 {
		return nil
	}
	log := logger.FromContext(ctx)
	var mu sync.Mutex
	failures := make([]error, 0)
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(i.Parallelism)
	for _, name := range reqs.Names() {
		spec := reqs[name]
		group.Go(func() error {
			if err := i.installOne(ctx, name, spec); err != nil {
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	if len(failures) > 0 {
		return errors.Join(failures...)
	}
	log.Info("Installed runtime dependencies", "count", len(reqs))
	return nil
}

func (i *Installer) installOne(ctx context.Context, name string, spec SpecifierSet) error {
	arg := name
	if s := spec.String(); s != "" {
		arg = fmt.Sprintf("%s@%s", name, s)
	}
	log := logger.FromContext(ctx)
	log.Debug("Installing runtime dependency", "package", arg)
	cmd := exec.CommandContext(ctx, i.Command, "install", arg)
	cmd.Dir = i.Dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &InstallError{Package: name, Stderr: stderr.String(), Err: err}
	}
	return nil
}
