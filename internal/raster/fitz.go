package raster

import (
	"context"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"
)

type fitzRenderer struct {
	dpi int
}

func (f *fitzRenderer) render(ctx context.Context, pdfPath, dir string, pages int) ([]string, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	last := pageLimit(doc.NumPage(), pages)
	paths := make([]string, 0, last)
	for n := 0; n < last; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.ImageDPI(n, float64(f.dpi))
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", n+1, err)
		}

		out := filepath.Join(dir, fmt.Sprintf("page-%03d.jpg", n+1))
		fh, err := os.Create(out)
		if err != nil {
			return nil, err
		}
		err = jpeg.Encode(fh, img, &jpeg.Options{Quality: 90})
		if cerr := fh.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, fmt.Errorf("encode page %d: %w", n+1, err)
		}
		paths = append(paths, out)
	}
	return paths, nil
}
