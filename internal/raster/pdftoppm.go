package raster

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

type pdftoppm struct {
	bin    string
	dpi    int
	runner Runner
}

func (p *pdftoppm) render(ctx context.Context, pdfPath, dir string, pages int) ([]string, error) {
	prefix := filepath.Join(dir, "page")
	// pdftoppm -r 300 -jpeg -f 1 -l <pages> <in.pdf> <tmp/page>
	args := []string{"-r", strconv.Itoa(p.dpi), "-jpeg"}
	if pages > 0 {
		args = append(args, "-f", "1", "-l", strconv.Itoa(pages))
	}
	args = append(args, pdfPath, prefix)
	_, errb, err := p.runner.Run(ctx, p.bin, args...)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, strings.TrimSpace(string(errb)))
	}

	// collect generated pages (page-1.jpg, ...); pdftoppm zero-pads numbers so a lexical sort is page order
	matches, _ := filepath.Glob(prefix + "-*.jpg")
	sort.Strings(matches)
	return matches, nil
}
