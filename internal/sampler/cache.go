package sampler

import (
	"context"
	"sync"

	"github.com/Dicklesworthstone/sysmon/internal/model"
)

// InfoSource yields the machine description.
type InfoSource interface {
	StaticInfo(ctx context.Context) (model.StaticInfo, error)
}

// CachedInfo queries its source until the first success and then keeps
// that answer; static info is not expected to change while running.
type CachedInfo struct {
	src InfoSource

	mu   sync.Mutex
	info *model.StaticInfo
}

func NewCachedInfo(src InfoSource) *CachedInfo {
	return &CachedInfo{src: src}
}

func (c *CachedInfo) StaticInfo(ctx context.Context) (model.StaticInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.info != nil {
		return *c.info, nil
	}
	info, err := c.src.StaticInfo(ctx)
	if err != nil {
		return model.StaticInfo{}, err
	}
	c.info = &info
	return info, nil
}
