package gallery

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	iface "FaceGuard/interface"
	"FaceGuard/logger"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

type Options struct {
	// ExpectDim rejects embeddings of any other length. Zero disables the check.
	ExpectDim int
	// Progress receives the progress bar. Nil discards it.
	Progress io.Writer
	// Read decodes one image. Defaults to gocv.IMRead in color mode.
	Read func(path string) gocv.Mat
}

func readColor(path string) gocv.Mat {
	return gocv.IMRead(path, gocv.IMReadColor)
}

// Build computes one reference embedding per image in dir. Files are taken in
// the order the directory lists them, which decides ties in Match.
// Sub-directories and undecodable files are skipped. A failed inference or
// an empty result aborts the build.
func Build(ctx context.Context, dir string, pre iface.Preprocessor, client iface.InferenceClient, opts Options) (*Matcher, error) {
	names, err := listDir(dir)
	if err != nil {
		return nil, err
	}
	read := opts.Read
	if read == nil {
		read = readColor
	}
	w := opts.Progress
	if w == nil {
		w = io.Discard
	}
	bar := progressbar.NewOptions(len(names),
		progressbar.OptionSetDescription("Building gallery"),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
	)
	defer func() { _ = bar.Finish() }()

	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, ok, err := embedFile(ctx, filepath.Join(dir, name), read, pre, client)
		_ = bar.Add(1)
		if err != nil {
			return nil, fmt.Errorf("gallery image %s: %w", name, err)
		}
		if !ok {
			continue
		}
		if opts.ExpectDim > 0 && len(emb) != opts.ExpectDim {
			return nil, fmt.Errorf("gallery image %s: %w: got %d, want %d", name, ErrLengthMismatch, len(emb), opts.ExpectDim)
		}
		entries = append(entries, Entry{Label: name, Embedding: emb})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no usable images in %s", ErrEmptyGallery, dir)
	}
	logger.Log().Info("gallery built", zap.String("dir", dir), zap.Int("entries", len(entries)))
	return New(entries), nil
}

func embedFile(ctx context.Context, path string, read func(string) gocv.Mat, pre iface.Preprocessor, client iface.InferenceClient) (iface.Embedding, bool, error) {
	img := read(path)
	defer img.Close()
	if img.Empty() {
		logger.Log().Warn("skipping undecodable gallery file", zap.String("path", path))
		return nil, false, nil
	}
	t, err := pre.Preprocess(img)
	if err != nil {
		logger.Log().Warn("skipping gallery file", zap.String("path", path), zap.Error(err))
		return nil, false, nil
	}
	emb, err := client.Infer(ctx, t)
	if err != nil {
		return nil, false, err
	}
	return emb, true, nil
}

// listDir returns regular file names without sorting them.
func listDir(dir string) ([]string, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open gallery dir: %w", err)
	}
	defer f.Close()
	dirents, err := f.ReadDir(-1)
	if err != nil {
		return nil, fmt.Errorf("failed to list gallery dir: %w", err)
	}
	names := make([]string, 0, len(dirents))
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		names = append(names, d.Name())
	}
	return names, nil
}
