package system

import (
	"image"
	"sync"
)

// ImagePool переиспользует image.RGBA кадры одного размера, чтобы
// параллельная отрисовка сцен не нагружала GC.
type ImagePool struct {
	pools map[image.Rectangle]*sync.Pool
	mu    sync.RWMutex
}

var globalPool = NewImagePool()

func NewImagePool() *ImagePool {
	return &ImagePool{pools: make(map[image.Rectangle]*sync.Pool)}
}

// GetImage returns a pooled frame of the given bounds. Its pixels are
// whatever the last user left; callers paint the full frame.
func GetImage(rect image.Rectangle) *image.RGBA {
	return globalPool.Get(rect)
}

// PutImage hands a frame back to the pool.
func PutImage(img *image.RGBA) {
	globalPool.Put(img)
}

func (p *ImagePool) Get(rect image.Rectangle) *image.RGBA {
	p.mu.RLock()
	pool, exists := p.pools[rect]
	p.mu.RUnlock()

	if !exists {
		p.mu.Lock()
		pool, exists = p.pools[rect]
		if !exists {
			pool = &sync.Pool{
				New: func() any {
					return image.NewRGBA(rect)
				},
			}
			p.pools[rect] = pool
		}
		p.mu.Unlock()
	}

	return pool.Get().(*image.RGBA)
}

func (p *ImagePool) Put(img *image.RGBA) {
	if img == nil {
		return
	}
	p.mu.RLock()
	pool, exists := p.pools[img.Rect]
	p.mu.RUnlock()

	if exists {
		pool.Put(img)
	}
}
