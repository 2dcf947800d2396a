package crop

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPad(t *testing.T) {
	tests := []struct {
		name string
		in   Region
		p    float64
		want Region
	}{
		{
			name: "Interior box grows on all sides",
			in:   Region{Top: 100, Right: 200, Bottom: 220, Left: 120},
			p:    30,
			want: Region{Top: 70, Right: 230, Bottom: 250, Left: 90},
		},
		{
			name: "Clipped at the top-left corner",
			in:   Region{Top: 10, Right: 60, Bottom: 70, Left: 5},
			p:    30,
			want: Region{Top: 0, Right: 90, Bottom: 100, Left: 0},
		},
		{
			name: "Clipped at the bottom-right corner",
			in:   Region{Top: 260, Right: 390, Bottom: 290, Left: 300},
			p:    50,
			want: Region{Top: 210, Right: 400, Bottom: 300, Left: 250},
		},
		{
			name: "Zero padding is identity",
			in:   Region{Top: 1, Right: 2, Bottom: 3, Left: 0},
			p:    0,
			want: Region{Top: 1, Right: 2, Bottom: 3, Left: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Pad(tt.in, tt.p, 400, 300))
		})
	}
}

func TestFitAspect_Unclipped(t *testing.T) {
	tests := []struct {
		name string
		in   Region
	}{
		{"Too wide grows height", Region{Top: 400, Right: 600, Bottom: 500, Left: 400}},
		{"Too tall grows width", Region{Top: 300, Right: 520, Bottom: 700, Left: 480}},
		{"Already at ratio", Region{Top: 400, Right: 580, Bottom: 500, Left: 500}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := FitAspect(tt.in, 0.8, 2000, 2000)

			assert.InDelta(t, 0.8, out.Width()/out.Height(), 1e-9)
			assert.GreaterOrEqual(t, out.Width(), tt.in.Width(), "width must never shrink")
			assert.GreaterOrEqual(t, out.Height(), tt.in.Height(), "height must never shrink")

			// Growth is symmetric around the original centre
			assert.InDelta(t, (tt.in.Left+tt.in.Right)/2, (out.Left+out.Right)/2, 1e-9)
			assert.InDelta(t, (tt.in.Top+tt.in.Bottom)/2, (out.Top+out.Bottom)/2, 1e-9)
		})
	}
}

func TestFitAspect_OnlyShorterDimensionGrows(t *testing.T) {
	wide := Region{Top: 100, Right: 300, Bottom: 200, Left: 100}
	out := FitAspect(wide, 0.8, 1000, 1000)
	assert.Equal(t, wide.Left, out.Left)
	assert.Equal(t, wide.Right, out.Right)
	assert.Equal(t, 250.0, out.Height()) // 200 / 0.8

	tall := Region{Top: 100, Right: 150, Bottom: 300, Left: 100}
	out = FitAspect(tall, 0.8, 1000, 1000)
	assert.Equal(t, tall.Top, out.Top)
	assert.Equal(t, tall.Bottom, out.Bottom)
	assert.Equal(t, 160.0, out.Width()) // 200 * 0.8
}

func TestFitAspect_ClippedToBounds(t *testing.T) {
	// Needs height 250 but the image is only 180 tall
	r := Region{Top: 20, Right: 300, Bottom: 160, Left: 100}
	out := FitAspect(r, 0.8, 400, 180)

	assert.Equal(t, 0.0, out.Top)
	assert.Equal(t, 180.0, out.Bottom)
	assert.GreaterOrEqual(t, out.Height(), r.Height())
}

func TestFitAspect_Degenerate(t *testing.T) {
	r := Region{Top: 10, Right: 10, Bottom: 20, Left: 10}
	assert.Equal(t, r, FitAspect(r, 0.8, 100, 100))

	tall := Region{Top: 1, Right: 5, Bottom: 9, Left: 1}
	assert.Equal(t, tall, FitAspect(tall, 0, 100, 100), "ratio 0 disables the correction")
}

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 7, A: 255})
		}
	}
	return img
}

func TestNormalize(t *testing.T) {
	img := testImage(200, 160)

	// Padding only (monitor defaults)
	rect := Normalize(img, 40, 120, 100, 60, Options{Padding: 30})
	assert.Equal(t, image.Rect(30, 10, 150, 130), rect)

	// Padding + passport ratio (build defaults), clipped by the image
	rect = Normalize(img, 40, 120, 100, 60, Options{Padding: 50, AspectRatio: 0.8})
	assert.True(t, rect.In(img.Bounds()))
	assert.Equal(t, 0, rect.Min.Y)
	assert.Equal(t, 160, rect.Max.Y)
}

func TestCrop(t *testing.T) {
	img := testImage(50, 40)

	out, err := Crop(img, image.Rect(10, 5, 30, 25))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 20, 20), out.Bounds())
	assert.Equal(t, color.RGBA{R: 10, G: 5, B: 7, A: 255}, out.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{R: 29, G: 24, B: 7, A: 255}, out.RGBAAt(19, 19))

	_, err = Crop(img, image.Rect(60, 60, 70, 70))
	assert.Error(t, err)
}

func TestDecode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage(8, 6)))

	img, err := Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())

	_, err = Decode([]byte("definitely not an image"))
	assert.Error(t, err)
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	img := testImage(16, 12)

	pngPath := filepath.Join(dir, "face.PNG")
	require.NoError(t, Save(pngPath, img))
	data, err := os.ReadFile(pngPath)
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(data))
	assert.NoError(t, err)

	jpgPath := filepath.Join(dir, "face.jpg")
	require.NoError(t, os.WriteFile(jpgPath, []byte("old contents"), 0644))
	require.NoError(t, Save(jpgPath, img), "existing files are overwritten")
	data, err = os.ReadFile(jpgPath)
	require.NoError(t, err)
	decoded, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 16, decoded.Bounds().Dx())

	assert.Error(t, Save(filepath.Join(dir, "face.gif"), img))

	// No temp files left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRegionRectTruncates(t *testing.T) {
	r := Region{Top: 1.9, Right: 10.99, Bottom: 5.5, Left: 0.2}
	assert.Equal(t, image.Rect(0, 1, 10, 5), r.Rect())
}
