package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writePDF writes a minimal, structurally valid PDF with the given number of blank pages.
func writePDF(t *testing.T, pages int) string {
	t.Helper()
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	kids := ""
	for i := 0; i < pages; i++ {
		kids += fmt.Sprintf("%d 0 R ", i+3)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, pages))
	for i := 0; i < pages; i++ {
		obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)

	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

type fakeRunner struct {
	calls  [][]string
	prefix string
	pages  int
	err    error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	f.prefix = args[len(args)-1]
	if f.err != nil {
		return nil, []byte("Syntax Error: broken xref"), f.err
	}
	last := f.pages
	if i := slices.Index(args, "-l"); i >= 0 {
		n, err := strconv.Atoi(args[i+1])
		if err != nil {
			return nil, nil, err
		}
		last = min(last, n)
	}
	for i := 1; i <= last; i++ {
		if err := os.WriteFile(fmt.Sprintf("%s-%02d.jpg", f.prefix, i), []byte("jpg"), 0o600); err != nil {
			return nil, nil, err
		}
	}
	return nil, nil, nil
}

func newTestRasterizer(t *testing.T, cfg Config, runner Runner) *PDFRasterizer {
	t.Helper()
	r, err := New(cfg, nil)
	require.NoError(t, err)
	return r.WithRunner(runner)
}

func TestRasterize_Pdftoppm(t *testing.T) {
	runner := &fakeRunner{pages: 11}
	r := newTestRasterizer(t, Config{}, runner)

	pages, err := r.Rasterize(context.Background(), writePDF(t, 11))
	require.NoError(t, err)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{"pdftoppm", "-r", "300", "-jpeg", "-f", "1", "-l", "11"}, runner.calls[0][:8])
	require.Len(t, pages.Paths, 11)
	assert.Equal(t, filepath.Join(pages.Dir, "page-01.jpg"), pages.Paths[0])
	assert.Equal(t, filepath.Join(pages.Dir, "page-10.jpg"), pages.Paths[9])
	assert.Equal(t, filepath.Join(pages.Dir, "page-11.jpg"), pages.Paths[10])

	require.NoError(t, pages.Cleanup())
	_, err = os.Stat(pages.Dir)
	assert.True(t, os.IsNotExist(err))
}

func TestRasterize_MaxPages(t *testing.T) {
	runner := &fakeRunner{pages: 3}
	r := newTestRasterizer(t, Config{MaxPages: 2, DPI: 150}, runner)

	pages, err := r.Rasterize(context.Background(), writePDF(t, 3))
	require.NoError(t, err)
	defer pages.Cleanup()

	assert.Len(t, pages.Paths, 2)
	assert.Equal(t, "150", runner.calls[0][2])
	assert.Equal(t, []string{"-f", "1", "-l", "2"}, runner.calls[0][4:8], "pdftoppm stops at the limit")
}

func TestPageLimit(t *testing.T) {
	assert.Equal(t, 5, pageLimit(5, 0))
	assert.Equal(t, 2, pageLimit(5, 2))
	assert.Equal(t, 3, pageLimit(3, 10))
}

func TestRasterize_NoPagesRendered(t *testing.T) {
	runner := &fakeRunner{pages: 0}
	r := newTestRasterizer(t, Config{}, runner)

	_, err := r.Rasterize(context.Background(), writePDF(t, 1))
	assert.ErrorIs(t, err, ErrNoPagesRendered)

	_, statErr := os.Stat(filepath.Dir(runner.prefix))
	assert.True(t, os.IsNotExist(statErr), "temp dir is removed when nothing was rendered")
}

func TestRasterize_RunnerError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("exit status 1")}
	r := newTestRasterizer(t, Config{}, runner)

	_, err := r.Rasterize(context.Background(), writePDF(t, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken xref")

	_, statErr := os.Stat(filepath.Dir(runner.prefix))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRasterize_NotAPDF(t *testing.T) {
	runner := &fakeRunner{pages: 1}
	r := newTestRasterizer(t, Config{}, runner)

	path := filepath.Join(t.TempDir(), "fake.pdf")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a pdf"), 0o600))

	_, err := r.Rasterize(context.Background(), path)
	assert.ErrorIs(t, err, ErrNoPagesRendered)
	assert.Empty(t, runner.calls)
}

func TestNew_Backends(t *testing.T) {
	r, err := New(Config{Backend: BackendFitz}, nil)
	require.NoError(t, err)
	assert.Equal(t, BackendFitz, r.backendName())

	_, err = New(Config{Backend: "ghostscript"}, nil)
	assert.Error(t, err)
}

func TestPagesCleanup_Empty(t *testing.T) {
	assert.NoError(t, Pages{}.Cleanup())
}
