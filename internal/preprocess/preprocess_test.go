package preprocess

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/geoextract/constants"
	"github.com/joseph-ayodele/geoextract/internal/common"
	"github.com/joseph-ayodele/geoextract/internal/entity"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		img.Set(x, 10, color.Black)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// pdfBytes builds an n-page PDF by importing the same image n times.
func pdfBytes(t *testing.T, n int) []byte {
	t.Helper()
	dir := t.TempDir()
	img := filepath.Join(dir, "page.png")
	require.NoError(t, os.WriteFile(img, pngBytes(t), 0o600))
	files := make([]string, n)
	for i := range files {
		files[i] = img
	}
	out := filepath.Join(dir, "doc.pdf")
	require.NoError(t, api.ImportImagesFile(files, out, nil, nil))
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	return b
}

// popplerStub writes a png for every page except failPage and serves a text layer.
type popplerStub struct {
	mu       sync.Mutex
	failPage string
	rendered []string
}

func (s *popplerStub) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	page := args[1]
	switch name {
	case "pdftoppm":
		if page == s.failPage {
			return nil, []byte("Syntax Error"), errors.New("exit status 99")
		}
		prefix := args[len(args)-1]
		s.rendered = append(s.rendered, page)
		return nil, nil, os.WriteFile(prefix+".png", []byte("png"), 0o600)
	case "pdftotext":
		return []byte("LAT: 35.47 LON: -117.68 page " + page), nil, nil
	}
	return nil, nil, errors.New("unexpected command " + name)
}

func newDoc() entity.Document {
	return entity.Document{ID: uuid.New(), Filename: "report.pdf"}
}

func TestDetect(t *testing.T) {
	f, err := Detect([]byte("%PDF-1.7\n..."))
	require.NoError(t, err)
	assert.Equal(t, constants.PDF, f)

	f, err = Detect(pngBytes(t))
	require.NoError(t, err)
	assert.Equal(t, constants.IMAGE, f)

	_, err = Detect([]byte("PK\x03\x04 zip archive"))
	assert.ErrorIs(t, err, common.ErrUnsupportedFormat)
}

func TestRasterize_Image(t *testing.T) {
	p := New(Config{ScratchDir: t.TempDir()}, &popplerStub{}, nil)

	scratch, pages, err := p.Rasterize(context.Background(), newDoc(), pngBytes(t), 0)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 0, pages[0].Index)
	assert.Equal(t, constants.DefaultDPI, pages[0].DPI)
	assert.FileExists(t, pages[0].ImagePath)

	scratch.Release()
	assert.NoDirExists(t, scratch.Dir())
	scratch.Release()
}

func TestRasterize_CleanImage(t *testing.T) {
	p := New(Config{ScratchDir: t.TempDir(), Clean: true}, &popplerStub{}, nil)

	scratch, pages, err := p.Rasterize(context.Background(), newDoc(), pngBytes(t), 0)
	require.NoError(t, err)
	defer scratch.Release()
	require.Len(t, pages, 1)
	assert.True(t, strings.HasSuffix(pages[0].ImagePath, ".clean.png"), pages[0].ImagePath)

	f, err := os.Open(pages[0].ImagePath)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	gray, ok := img.(*image.Gray)
	require.True(t, ok, "cleaned page is grayscale")
	for _, v := range gray.Pix {
		assert.Contains(t, []uint8{0, 255}, v)
	}
	assert.Equal(t, uint8(0), gray.GrayAt(5, 10).Y, "the drawn line stays dark")
}

func TestRasterize_CleanFailureKeepsPage(t *testing.T) {
	p := New(Config{ScratchDir: t.TempDir(), Clean: true}, &popplerStub{}, nil)

	// the stub renders placeholder bytes that do not decode
	scratch, pages, err := p.Rasterize(context.Background(), newDoc(), pdfBytes(t, 1), 300)
	require.NoError(t, err)
	defer scratch.Release()
	require.Len(t, pages, 1)
	require.NoError(t, pages[0].Err)
	assert.True(t, strings.HasSuffix(pages[0].ImagePath, "page-0000.png"), pages[0].ImagePath)
}

func TestBinarize_LowContrast(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 20, 20))
	for i := range img.Pix {
		img.Pix[i] = 130
	}
	for x := 2; x < 18; x++ {
		img.SetGray(x, 9, color.Gray{Y: 110})
		img.SetGray(x, 10, color.Gray{Y: 110})
	}

	out := binarize(stretch(img))
	assert.Equal(t, uint8(0), out.GrayAt(5, 9).Y)
	assert.Equal(t, uint8(255), out.GrayAt(5, 2).Y)

	blank := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range blank.Pix {
		blank.Pix[i] = 255
	}
	out = binarize(stretch(blank))
	assert.Equal(t, uint8(255), out.GrayAt(1, 1).Y, "a blank page stays white")
}

func TestRasterize_CorruptImage(t *testing.T) {
	base := t.TempDir()
	p := New(Config{ScratchDir: base}, &popplerStub{}, nil)

	bad := append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, []byte("not really a png")...)
	scratch, _, err := p.Rasterize(context.Background(), newDoc(), bad, 300)
	assert.ErrorIs(t, err, common.ErrCorruptDocument)
	assert.Nil(t, scratch)

	entries, _ := os.ReadDir(base)
	assert.Empty(t, entries, "scratch must be released on failure")
}

func TestRasterize_CorruptPDF(t *testing.T) {
	p := New(Config{ScratchDir: t.TempDir()}, &popplerStub{}, nil)

	_, _, err := p.Rasterize(context.Background(), newDoc(), []byte("%PDF-1.4\ngarbage without objects"), 300)
	assert.ErrorIs(t, err, common.ErrCorruptDocument)
}

func TestRasterize_PDFPageFailureIsPageLevel(t *testing.T) {
	stub := &popplerStub{failPage: "2"}
	p := New(Config{ScratchDir: t.TempDir()}, stub, nil)

	scratch, pages, err := p.Rasterize(context.Background(), newDoc(), pdfBytes(t, 3), 150)
	require.NoError(t, err)
	defer scratch.Release()

	require.Len(t, pages, 3)
	assert.NoError(t, pages[0].Err)
	assert.Error(t, pages[1].Err)
	assert.NoError(t, pages[2].Err)
	assert.Equal(t, 150, pages[2].DPI)
	assert.Contains(t, pages[0].TextLayer, "LAT: 35.47")
	assert.Empty(t, pages[1].TextLayer)
	assert.Equal(t, []string{"1", "3"}, stub.rendered)
}

func TestRasterize_MaxPages(t *testing.T) {
	p := New(Config{ScratchDir: t.TempDir(), MaxPages: 2}, &popplerStub{}, nil)

	scratch, pages, err := p.Rasterize(context.Background(), newDoc(), pdfBytes(t, 4), 150)
	require.NoError(t, err)
	defer scratch.Release()
	assert.Len(t, pages, 2)
}

func TestRasterize_AllPagesFail(t *testing.T) {
	p := New(Config{ScratchDir: t.TempDir()}, &popplerStub{failPage: "1"}, nil)

	_, _, err := p.Rasterize(context.Background(), newDoc(), pdfBytes(t, 1), 150)
	assert.ErrorIs(t, err, common.ErrCorruptDocument)
}
