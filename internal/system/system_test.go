package system

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultWorkers(t *testing.T) {
	n := DefaultWorkers(1280, 720)
	assert.GreaterOrEqual(t, n, 1)
	assert.GreaterOrEqual(t, DefaultWorkers(0, 0), 1)
}

func TestDefaultQuality(t *testing.T) {
	assert.Equal(t, 75, DefaultQuality("h264_videotoolbox"))
	assert.Equal(t, 28, DefaultQuality("h264_nvenc"))
	assert.Equal(t, 23, DefaultQuality("libx264"))
}

func TestImagePoolReusesBySize(t *testing.T) {
	p := NewImagePool()
	r := image.Rect(0, 0, 8, 4)

	img := p.Get(r)
	assert.Equal(t, r, img.Rect)
	p.Put(img)

	other := p.Get(image.Rect(0, 0, 2, 2))
	assert.Equal(t, image.Rect(0, 0, 2, 2), other.Rect)

	p.Put(nil)
}
