package resolver

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// DefaultCapacity 默认缓存容量
const DefaultCapacity = 256

// Key 缓存键
// 同名类在不同的类加载上下文中可能解析到不同的底层类,
// 所以键由全限定类名和加载上下文标识共同构成
type Key struct {
	Class  string
	Loader string
}

// LookupFunc 底层解析函数, 由挂钩分发层注入
// 要求快速返回: 解析在持锁状态下执行, 以保证同一个键的解析恰好发生一次
type LookupFunc[H any] func(class, loader string) (H, error)

// ResolutionError 必需类缺失
// 对请求它的那一处挂钩安装是致命的, 安装层捕获后只禁用对应功能, 不影响整个进程
type ResolutionError struct {
	Class  string
	Loader string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("class %s not resolvable in loader context %s", e.Class, e.Loader)
}

// Stats 缓存统计快照
type Stats struct {
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	NotFoundCount uint64 `json:"not_found_count"`
	Size          int    `json:"size"`
	Capacity      int    `json:"capacity"`
	Tombstones    int    `json:"tombstones"`
}

// HitRate 命中率, 无查询时为 0
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type entry[H any] struct {
	key    Key
	handle H
}

// Cache 类解析缓存
// 正向条目按 LRU 有界淘汰; 负向结果(墓碑)单独记录且不占容量,
// 避免对确认缺失的类反复走昂贵的失败路径
// 键表、LRU 顺序和墓碑集合由同一把锁保护, 任何线程都不会观察到半更新状态
type Cache[H any] struct {
	mu         sync.Mutex
	capacity   int
	lookup     LookupFunc[H]
	entries    map[Key]*list.Element
	lru        *list.List // Front 为最近使用
	tombstones map[Key]struct{}
	hits       uint64
	misses     uint64
	notFound   uint64
	logger     *logrus.Logger
}

// New 创建类解析缓存
// capacity <= 0 时使用默认容量
func New[H any](capacity int, lookup LookupFunc[H], logger *logrus.Logger) *Cache[H] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Cache[H]{
		capacity:   capacity,
		lookup:     lookup,
		entries:    make(map[Key]*list.Element),
		lru:        list.New(),
		tombstones: make(map[Key]struct{}),
		logger:     logger,
	}
}

// Resolve 解析类
// 每个键的底层解析至多执行一次: 成功进入 LRU 缓存, 失败落墓碑,
// 后续同键查询直接返回缓存结果, 直到显式 Clear
func (c *Cache[H]) Resolve(class, loader string) (H, bool) {
	key := Key{Class: class, Loader: loader}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.hits++
		c.lru.MoveToFront(elem)
		return elem.Value.(*entry[H]).handle, true
	}

	if _, dead := c.tombstones[key]; dead {
		c.hits++
		var zero H
		return zero, false
	}

	c.misses++

	handle, err := c.lookup(class, loader)
	if err != nil {
		c.tombstones[key] = struct{}{}
		c.notFound++
		c.logger.WithFields(logrus.Fields{
			"class":  class,
			"loader": loader,
		}).WithError(err).Debug("Class lookup failed, tombstoned")
		var zero H
		return zero, false
	}

	c.insertLocked(key, handle)
	return handle, true
}

// RequireResolve 解析类, 缺失时返回 ResolutionError
// 供调用方没有该类就无法继续的挂钩点使用
func (c *Cache[H]) RequireResolve(class, loader string) (H, error) {
	handle, ok := c.Resolve(class, loader)
	if !ok {
		var zero H
		return zero, &ResolutionError{Class: class, Loader: loader}
	}
	return handle, nil
}

// Preload 尽力预热: 逐个解析并返回成功缓存的数量, 从不报错
func (c *Cache[H]) Preload(loader string, classes ...string) int {
	cached := 0
	for _, class := range classes {
		if _, ok := c.Resolve(class, loader); ok {
			cached++
		}
	}

	c.logger.WithFields(logrus.Fields{
		"loader":    loader,
		"requested": len(classes),
		"cached":    cached,
	}).Info("Cache preload completed")

	return cached
}

// Stats 返回当前统计快照
func (c *Cache[H]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Hits:          c.hits,
		Misses:        c.misses,
		NotFoundCount: c.notFound,
		Size:          len(c.entries),
		Capacity:      c.capacity,
		Tombstones:    len(c.tombstones),
	}
}

// Clear 清空全部缓存条目和墓碑, 所有键回到未解析状态
func (c *Cache[H]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[Key]*list.Element)
	c.lru.Init()
	c.tombstones = make(map[Key]struct{})

	c.logger.Info("Resolution cache cleared")
}

// insertLocked 插入新条目, 必要时先淘汰最久未使用的条目
// 调用方必须持有 c.mu
func (c *Cache[H]) insertLocked(key Key, handle H) {
	for len(c.entries) >= c.capacity {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		evicted := oldest.Value.(*entry[H])
		c.lru.Remove(oldest)
		delete(c.entries, evicted.key)

		c.logger.WithFields(logrus.Fields{
			"class":  evicted.key.Class,
			"loader": evicted.key.Loader,
		}).Debug("Evicted least-recently-used cache entry")
	}

	c.entries[key] = c.lru.PushFront(&entry[H]{key: key, handle: handle})
}
