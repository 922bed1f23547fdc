package engine

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bgremover/internal/config"
	"bgremover/internal/domain"
)

// subjectOnBackdrop draws a red square in the middle of a white canvas.
func subjectOnBackdrop(t *testing.T, format imaging.Format) []byte {
	t.Helper()
	img := imaging.New(40, 40, color.White)
	for y := 10; y < 30; y++ {
		for x := 10; x < 30; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 20, B: 20, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, format))
	return buf.Bytes()
}

func decodePNG(t *testing.T, b []byte) image.Image {
	t.Helper()
	img, format, err := image.Decode(bytes.NewReader(b))
	require.NoError(t, err)
	require.Equal(t, "png", format)
	return img
}

func builtinConfig() config.EngineConfig {
	return config.EngineConfig{Backend: config.BackendBuiltin, Model: "border-key", Tolerance: 0.12, Timeout: time.Second}
}

func TestHolder_GetBeforeInitialize(t *testing.T) {
	h := NewHolder()
	s, err := h.Get()
	assert.Nil(t, s)
	assert.ErrorIs(t, err, domain.ErrNotInitialized)
	assert.False(t, h.Ready())
}

func TestHolder_InitializeOnce(t *testing.T) {
	h := NewHolder()
	s, err := h.Initialize(context.Background(), builtinConfig())
	require.NoError(t, err)
	assert.Equal(t, "border-key", s.Model())
	assert.True(t, h.Ready())

	got, err := h.Get()
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = h.Initialize(context.Background(), builtinConfig())
	assert.ErrorIs(t, err, domain.ErrAlreadyInitialized)
	assert.ErrorIs(t, h.Set(NewBorderKey("other", 0)), domain.ErrAlreadyInitialized)
}

func TestHolder_InitializeFailureIsFatalAndFinal(t *testing.T) {
	h := NewHolder()
	cfg := config.EngineConfig{Backend: config.BackendRemote, Model: "u2net", URL: "ftp://nowhere"}

	_, err := h.Initialize(context.Background(), cfg)
	require.ErrorIs(t, err, domain.ErrInitialization)
	assert.False(t, h.Ready())

	_, err = h.Initialize(context.Background(), builtinConfig())
	assert.ErrorIs(t, err, domain.ErrAlreadyInitialized, "no reinitialization path")
}

func TestHolder_SetRejectsNil(t *testing.T) {
	h := NewHolder()
	assert.ErrorIs(t, h.Set(nil), domain.ErrInitialization)
}

type fakeRembg struct {
	calls  atomic.Int32
	status int
	model  atomic.Value
}

func (f *fakeRembg) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	if r.URL.Path != removePath || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.model.Store(r.FormValue("model"))
	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file", http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, _ := io.ReadAll(file)

	if f.status != 0 && f.status != http.StatusOK {
		http.Error(w, "model exploded", f.status)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(data)
}

func TestRemote_InitializeWarmsUpModel(t *testing.T) {
	fake := &fakeRembg{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	h := NewHolder()
	s, err := h.Initialize(context.Background(), config.EngineConfig{
		Backend: config.BackendRemote, Model: "isnet-general-use", URL: srv.URL + "/",
		WarmupTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "isnet-general-use", s.Model())
	assert.Equal(t, int32(1), fake.calls.Load())
	assert.Equal(t, "isnet-general-use", fake.model.Load())
}

func TestRemote_InitializeFailsWhenWarmupFails(t *testing.T) {
	srv := httptest.NewServer(&fakeRembg{status: http.StatusInternalServerError})
	defer srv.Close()

	_, err := NewHolder().Initialize(context.Background(), config.EngineConfig{
		Backend: config.BackendRemote, Model: "u2net", URL: srv.URL,
	})
	require.ErrorIs(t, err, domain.ErrInitialization)
	assert.Contains(t, err.Error(), "500")
}

func TestRemote_RemoveErrors(t *testing.T) {
	srv := httptest.NewServer(&fakeRembg{status: http.StatusUnprocessableEntity})
	defer srv.Close()

	r, err := NewRemote(config.EngineConfig{Model: "u2net", URL: srv.URL})
	require.NoError(t, err)

	_, err = r.Remove(context.Background(), nil)
	assert.Error(t, err)

	_, err = r.Remove(context.Background(), []byte("abc"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Contains(t, err.Error(), "model exploded")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Remove(ctx, []byte("abc"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBorderKey_RemovesPlainBackdrop(t *testing.T) {
	for _, format := range []imaging.Format{imaging.PNG, imaging.JPEG} {
		b := NewBorderKey("border-key", 0.12)
		out, err := b.Remove(context.Background(), subjectOnBackdrop(t, format))
		require.NoError(t, err)

		img := decodePNG(t, out)
		_, _, _, cornerA := img.At(0, 0).RGBA()
		_, _, _, centreA := img.At(20, 20).RGBA()
		assert.Equal(t, uint32(0), cornerA, "backdrop must be transparent")
		assert.Equal(t, uint32(0xffff), centreA, "subject must stay opaque")
	}
}

func TestBorderKey_RejectsNonImage(t *testing.T) {
	_, err := NewBorderKey("border-key", 0.12).Remove(context.Background(), []byte("notanimage"))
	assert.Error(t, err)
}

func TestBorderKey_RejectsOversizedCanvas(t *testing.T) {
	b := NewBorderKey("border-key", 0.12)
	b.maxPixels = 40 * 39
	_, err := b.Remove(context.Background(), subjectOnBackdrop(t, imaging.PNG))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "40x40")

	b.maxPixels = 40 * 40
	_, err = b.Remove(context.Background(), subjectOnBackdrop(t, imaging.PNG))
	assert.NoError(t, err)
}

func TestRemote_RejectsOversizedResponse(t *testing.T) {
	srv := httptest.NewServer(&fakeRembg{})
	defer srv.Close()

	r, err := NewRemote(config.EngineConfig{Model: "u2net", URL: srv.URL})
	require.NoError(t, err)
	r.maxResult = 8

	out, err := r.Remove(context.Background(), []byte("12345678"))
	require.NoError(t, err)
	assert.Equal(t, []byte("12345678"), out)

	_, err = r.Remove(context.Background(), []byte("123456789"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 8 bytes")
}

func TestBorderKey_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewBorderKey("border-key", 0.12).Remove(ctx, subjectOnBackdrop(t, imaging.PNG))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBorderKey_KeepRamp(t *testing.T) {
	b := NewBorderKey("m", 0.1)
	assert.Equal(t, 0.0, b.keep(0.05))
	assert.InDelta(t, 0.5, b.keep(0.15), 1e-9)
	assert.Equal(t, 1.0, b.keep(0.3))

	exact := NewBorderKey("m", 0)
	assert.Equal(t, 0.0, exact.keep(0))
	assert.Equal(t, 1.0, exact.keep(0.01))
}
