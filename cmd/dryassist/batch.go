package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/BaSui01/dryingassistant/drying"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// batchDryer is the part of drying.Dryer the batch tool needs.
type batchDryer interface {
	DryWithFallback(ctx context.Context, img image.Image) (*drying.DryResult, error)
	Fallback(img image.Image) (*image.RGBA, error)
}

type batchOptions struct {
	Input        string
	Output       string
	FallbackOnly bool
	Concurrency  int
}

// batchItem is the outcome for one input file.
type batchItem struct {
	Input  string
	Output string
	Status drying.Status
	Err    error
}

type batchSummary struct {
	Items []batchItem
}

func (s batchSummary) processed() int {
	n := 0
	for _, it := range s.Items {
		if it.Input != "" {
			n++
		}
	}
	return n
}

func (s batchSummary) failed() int {
	n := 0
	for _, it := range s.Items {
		if it.Err != nil {
			n++
		}
	}
	return n
}

// outputName is enhanced_dried_<stem>_<ext>_<YYYYMMDD_HHMMSS>.png. The
// source extension stays in the name so a.png and a.jpg never share an
// output file.
func outputName(input string, now time.Time) string {
	base := filepath.Base(input)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if ext = strings.ToLower(strings.TrimPrefix(ext, ".")); ext != "" {
		stem += "_" + ext
	}
	return fmt.Sprintf("enhanced_dried_%s_%s.png", stem, now.Format("20060102_150405"))
}

// listImages returns the supported images directly under dir, sorted by name.
func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !drying.IsSupportedFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// processBatch dries every image in opts.Input into opts.Output. Failures of
// single files are collected in the summary; only cancellation or an
// unusable directory stop the batch.
func processBatch(ctx context.Context, opts batchOptions, dryer batchDryer, now func() time.Time, logger *zap.Logger) (batchSummary, error) {
	files, err := listImages(opts.Input)
	if err != nil {
		return batchSummary{}, err
	}
	if len(files) == 0 {
		return batchSummary{}, nil
	}
	if err := os.MkdirAll(opts.Output, 0o755); err != nil {
		return batchSummary{}, fmt.Errorf("create output directory: %w", err)
	}

	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	items := make([]batchItem, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			item := dryFile(gctx, file, opts, dryer, now)
			items[i] = item

			if item.Err != nil {
				logger.Warn("image failed", zap.String("input", file), zap.Error(item.Err))
			} else {
				logger.Info("image dried",
					zap.String("input", file),
					zap.String("output", item.Output),
					zap.String("status", string(item.Status)),
				)
			}
			return nil
		})
	}
	err = g.Wait()
	return batchSummary{Items: items}, err
}

func dryFile(ctx context.Context, file string, opts batchOptions, dryer batchDryer, now func() time.Time) batchItem {
	item := batchItem{Input: file}

	img, err := readImageFile(file)
	if err != nil {
		item.Err = err
		return item
	}

	var out image.Image
	if opts.FallbackOnly {
		rgba, err := dryer.Fallback(img)
		if err != nil {
			item.Err = err
			return item
		}
		out, item.Status = rgba, drying.StatusFallbackApplied
	} else {
		result, err := dryer.DryWithFallback(ctx, img)
		if err != nil {
			item.Err = err
			return item
		}
		item.Status = result.Status
		if !result.Succeeded() {
			item.Err = result.Err()
			return item
		}
		out = result.Image
	}

	item.Output = filepath.Join(opts.Output, outputName(file, now()))
	if err := writePNGFile(item.Output, out); err != nil {
		item.Err = err
		item.Output = ""
	}
	return item
}

func readImageFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := drying.DecodeImage(f)
	return img, err
}

func writePNGFile(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return drying.EncodePNG(f, img)
}

// runDry implements "dryassist dry" and returns the process exit code.
func runDry(args []string) int {
	fs := flag.NewFlagSet("dry", flag.ExitOnError)
	cf := addConfigFlags(fs)
	opts := batchOptions{}
	fs.StringVar(&opts.Input, "input", "test_images", "Directory with the images to dry")
	fs.StringVar(&opts.Output, "output", "test_results", "Directory for the dried images")
	fs.BoolVar(&opts.FallbackOnly, "fallback", false, "Apply the local effect only")
	fs.IntVar(&opts.Concurrency, "concurrency", 1, "Images processed in parallel")
	_ = fs.Parse(args)

	cfg, err := cf.load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()
	if !opts.FallbackOnly {
		logCredentialWarnings(cfg, logger)
	}

	dryer, err := newDryer(cfg, nil, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := processBatch(ctx, opts, dryer, time.Now, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "batch stopped: %v\n", err)
	}
	if len(summary.Items) == 0 && err == nil {
		fmt.Printf("No images found in %s\n", opts.Input)
		return 0
	}

	printSummary(summary)
	if err != nil || summary.failed() > 0 {
		return 1
	}
	return 0
}

func printSummary(s batchSummary) {
	fmt.Println("\nSummary")
	for _, it := range s.Items {
		switch {
		case it.Input == "":
			// not reached before cancellation
		case it.Err != nil:
			fmt.Printf("  FAIL %s: %v\n", filepath.Base(it.Input), it.Err)
		default:
			fmt.Printf("  OK   %s -> %s (%s)\n", filepath.Base(it.Input), it.Output, it.Status)
		}
	}
	fmt.Printf("%d processed, %d failed\n", s.processed(), s.failed())
}
