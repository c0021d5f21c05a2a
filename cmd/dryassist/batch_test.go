package main

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/dryingassistant/drying"
	"github.com/BaSui01/dryingassistant/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubBatchDryer struct {
	mu        sync.Mutex
	remote    int
	fallbacks int
	// failOn makes DryWithFallback exhaust for images of this width.
	failOn int
}

func (d *stubBatchDryer) DryWithFallback(_ context.Context, img image.Image) (*drying.DryResult, error) {
	d.mu.Lock()
	d.remote++
	d.mu.Unlock()
	if img.Bounds().Dx() == d.failOn {
		return &drying.DryResult{
			Status:      drying.StatusFallbackFailed,
			FallbackErr: errors.New("fallback broke"),
		}, nil
	}
	return &drying.DryResult{Status: drying.StatusSucceeded, Image: image.NewRGBA(img.Bounds())}, nil
}

func (d *stubBatchDryer) Fallback(img image.Image) (*image.RGBA, error) {
	d.mu.Lock()
	d.fallbacks++
	d.mu.Unlock()
	return image.NewRGBA(img.Bounds()), nil
}

func writeTestPNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{B: 200, A: 255})
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

var fixedNow = func() time.Time { return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC) }

func TestOutputName(t *testing.T) {
	assert.Equal(t, "enhanced_dried_towel_jpg_20260314_092653.png", outputName("in/towel.jpg", fixedNow()))
	assert.Equal(t, "enhanced_dried_my.shirt_webp_20260314_092653.png", outputName("my.shirt.webp", fixedNow()))
	assert.Equal(t, "enhanced_dried_towel_png_20260314_092653.png", outputName("towel.PNG", fixedNow()))
	assert.NotEqual(t, outputName("a.png", fixedNow()), outputName("a.jpg", fixedNow()))
}

func TestListImages(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.PNG", "a.jpg", "notes.txt", "c.webp"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.png"), 0o755))

	files, err := listImages(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.jpg"),
		filepath.Join(dir, "b.PNG"),
		filepath.Join(dir, "c.webp"),
	}, files)

	_, err = listImages(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestProcessBatch(t *testing.T) {
	in, out := t.TempDir(), filepath.Join(t.TempDir(), "results")
	writeTestPNG(t, filepath.Join(in, "good.png"), 8, 8)
	writeTestPNG(t, filepath.Join(in, "bad.png"), 5, 5)
	require.NoError(t, os.WriteFile(filepath.Join(in, "broken.png"), []byte("nope"), 0o644))

	dryer := &stubBatchDryer{failOn: 5}
	summary, err := processBatch(context.Background(), batchOptions{Input: in, Output: out, Concurrency: 2},
		dryer, fixedNow, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.Len(t, summary.Items, 3)
	assert.Equal(t, 3, summary.processed())
	assert.Equal(t, 2, summary.failed())
	assert.Equal(t, 2, dryer.remote)
	assert.Zero(t, dryer.fallbacks)

	byName := map[string]batchItem{}
	for _, it := range summary.Items {
		byName[filepath.Base(it.Input)] = it
	}
	assert.True(t, types.IsErrorCode(byName["broken.png"].Err, types.ErrValidation))
	assert.True(t, types.IsErrorCode(byName["bad.png"].Err, types.ErrExhausted))
	assert.Equal(t, drying.StatusFallbackFailed, byName["bad.png"].Status)

	good := byName["good.png"]
	require.NoError(t, good.Err)
	assert.Equal(t, filepath.Join(out, "enhanced_dried_good_png_20260314_092653.png"), good.Output)
	f, err := os.Open(good.Output)
	require.NoError(t, err)
	defer f.Close()
	decoded, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 8), decoded.Bounds())
}

func TestProcessBatch_FallbackOnly(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeTestPNG(t, filepath.Join(in, "sock.png"), 4, 3)

	dryer := &stubBatchDryer{}
	summary, err := processBatch(context.Background(), batchOptions{Input: in, Output: out, FallbackOnly: true},
		dryer, fixedNow, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.Len(t, summary.Items, 1)
	assert.NoError(t, summary.Items[0].Err)
	assert.Equal(t, drying.StatusFallbackApplied, summary.Items[0].Status)
	assert.Zero(t, dryer.remote)
	assert.Equal(t, 1, dryer.fallbacks)
	assert.FileExists(t, filepath.Join(out, "enhanced_dried_sock_png_20260314_092653.png"))
}

func TestProcessBatch_SameStemDifferentExtension(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeTestPNG(t, filepath.Join(in, "shirt.png"), 4, 4)
	// image.Decode sniffs content, so a PNG under a .jpg name still decodes
	writeTestPNG(t, filepath.Join(in, "shirt.jpg"), 6, 6)

	summary, err := processBatch(context.Background(), batchOptions{Input: in, Output: out, Concurrency: 2},
		&stubBatchDryer{}, fixedNow, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Len(t, summary.Items, 2)
	assert.Zero(t, summary.failed())
	assert.NotEqual(t, summary.Items[0].Output, summary.Items[1].Output)
	assert.FileExists(t, filepath.Join(out, "enhanced_dried_shirt_png_20260314_092653.png"))
	assert.FileExists(t, filepath.Join(out, "enhanced_dried_shirt_jpg_20260314_092653.png"))
}

func TestProcessBatch_EmptyInput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "never")
	summary, err := processBatch(context.Background(), batchOptions{Input: t.TempDir(), Output: out},
		&stubBatchDryer{}, fixedNow, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Empty(t, summary.Items)
	assert.NoDirExists(t, out)
}

func TestProcessBatch_Cancelled(t *testing.T) {
	in := t.TempDir()
	writeTestPNG(t, filepath.Join(in, "a.png"), 4, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dryer := &stubBatchDryer{}
	summary, err := processBatch(ctx, batchOptions{Input: in, Output: t.TempDir()}, dryer, fixedNow, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, summary.processed())
	assert.Zero(t, dryer.remote)
}
