package lightcurve

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gaiacurves/gaiacurves/internal/telemetry"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/gaiacurves/gaiacurves/internal/lightcurve"

func tracer() trace.Tracer {
	return telemetry.GetTracer(tracerName)
}

// PathFor is where the light curve of id from release lives under dir:
// {dir}/{id}_data_{dr2|dr1}.csv.
func PathFor(dir, id string, release Release) string {
	return filepath.Join(dir, fmt.Sprintf("%s_data_%s.csv", id, release.Tag()))
}

// writeFile persists the output of fill at path. Content goes to a temporary
// file in the same directory which is renamed over path only when fill
// succeeds, so an existing file is either replaced whole or left alone. The
// directory is created when missing.
func writeFile(path string, fill func(io.Writer) (int64, error)) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create output directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	n, err := fill(tmp)
	if err != nil {
		_ = tmp.Close()
		return n, err
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return n, fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return n, fmt.Errorf("rename into %s: %w", path, err)
	}
	return n, nil
}

// writeBytes persists data at path through writeFile.
func writeBytes(path string, data []byte) (int64, error) {
	return writeFile(path, func(w io.Writer) (int64, error) {
		n, err := w.Write(data)
		return int64(n), err
	})
}
