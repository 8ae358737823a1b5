// Package optimizer shells out to an external geometry optimizer (vpype by
// default) to rewrite a job's source artifact into an optimized one.
package optimizer

import (
	"context"
	"os"
	"os/exec"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Optimizer interface {
	// Optimize reads srcPath, applies the named preset and writes the result
	// to dstPath. dstPath must not be written on failure.
	Optimize(ctx context.Context, srcPath, dstPath, preset string) error
}

type ExecOptimizer struct {
	bin string
}

func NewExecOptimizer(bin string) *ExecOptimizer {
	return &ExecOptimizer{bin: bin}
}

func (o *ExecOptimizer) Optimize(ctx context.Context, srcPath, dstPath, preset string) error {
	args := []string{"read", srcPath}
	switch preset {
	case "linemerge":
		args = append(args, "linemerge", "linesort")
	case "linesort":
		args = append(args, "linesort")
	case "reloop":
		args = append(args, "reloop", "linesort")
	default:
		return errors.Errorf("unknown optimizer preset %q", preset)
	}
	args = append(args, "write", dstPath)

	cmd := exec.CommandContext(ctx, o.bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		zap.S().Named("optimizer").Errorw("optimizer run failed",
			"bin", o.bin, "preset", preset, "output", string(out))
		return errors.Wrapf(err, "running %s with preset %s", o.bin, preset)
	}
	return nil
}

// NoopOptimizer passes the artifact through unchanged. Used when no external
// optimizer binary is configured and in tests.
type NoopOptimizer struct{}

func (NoopOptimizer) Optimize(ctx context.Context, srcPath, dstPath, preset string) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return errors.Wrap(err, "reading source artifact")
	}
	return errors.Wrap(os.WriteFile(dstPath, data, 0o600), "writing artifact")
}
