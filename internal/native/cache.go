package native

import "container/list"

// imageCache is a checksum-keyed LRU cache of compiled Images, bounded at
// Backend.MaxCachedImages. Eviction releases the evicted Image's executable
// page.
type imageCache struct {
	max   int
	ll    *list.List
	items map[uint64]*list.Element
}

type cacheEntry struct {
	checksum   uint64
	image      *Image
	translated int
}

func newImageCache(max int) *imageCache {
	if max <= 0 {
		max = 8
	}
	return &imageCache{max: max, ll: list.New(), items: make(map[uint64]*list.Element)}
}

func (c *imageCache) get(checksum uint64) (*cacheEntry, bool) {
	el, ok := c.items[checksum]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*cacheEntry), true
}

func (c *imageCache) put(checksum uint64, img *Image, translated int) {
	if el, ok := c.items[checksum]; ok {
		entry := el.Value.(*cacheEntry)
		entry.image, entry.translated = img, translated
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&cacheEntry{checksum: checksum, image: img, translated: translated})
	c.items[checksum] = el

	for c.ll.Len() > c.max {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		entry := oldest.Value.(*cacheEntry)
		_ = entry.image.Release()
		delete(c.items, entry.checksum)
		c.ll.Remove(oldest)
	}
}
