// internal/storage/lock_manager.go
package storage

import (
	"sync"
	"time"
)

// LockManager 按分区键（用户标识）管理读写锁，同一分区的修改串行执行
type LockManager struct {
	locks         map[string]*LockInfo
	globalLock    sync.Mutex
	lockTTL       time.Duration
	cleanupTicker *time.Ticker
	stop          chan struct{}
	stopOnce      sync.Once
}

// LockInfo 包装锁和相关信息
type LockInfo struct {
	Mutex    *sync.RWMutex
	LastUsed time.Time
	refs     int // 正在持有或等待此锁的调用数，大于 0 时不会被清理
}

// NewLockManager 创建锁管理器
func NewLockManager() *LockManager {
	lm := &LockManager{
		locks:   make(map[string]*LockInfo),
		lockTTL: 30 * time.Minute,
		stop:    make(chan struct{}),
	}
	lm.startCleanup(5 * time.Minute)
	return lm
}

// acquire 取得键对应的锁信息并增加引用计数
func (lm *LockManager) acquire(key string) *LockInfo {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	info, exists := lm.locks[key]
	if !exists {
		info = &LockInfo{Mutex: &sync.RWMutex{}}
		lm.locks[key] = info
	}
	info.refs++
	info.LastUsed = time.Now()
	return info
}

func (lm *LockManager) release(info *LockInfo) {
	lm.globalLock.Lock()
	info.refs--
	info.LastUsed = time.Now()
	lm.globalLock.Unlock()
}

// ExecuteWithLock 在分区写锁保护下执行操作
func (lm *LockManager) ExecuteWithLock(key string, fn func() error) error {
	info := lm.acquire(key)
	defer lm.release(info)

	info.Mutex.Lock()
	defer info.Mutex.Unlock()
	return fn()
}

// ExecuteWithReadLock 在分区读锁保护下执行操作
func (lm *LockManager) ExecuteWithReadLock(key string, fn func() error) error {
	info := lm.acquire(key)
	defer lm.release(info)

	info.Mutex.RLock()
	defer info.Mutex.RUnlock()
	return fn()
}

// Len 返回当前登记的锁数量
func (lm *LockManager) Len() int {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()
	return len(lm.locks)
}

// Close 停止后台清理
func (lm *LockManager) Close() {
	lm.stopOnce.Do(func() {
		close(lm.stop)
		lm.cleanupTicker.Stop()
	})
}

// 定期清理未使用的锁
func (lm *LockManager) startCleanup(interval time.Duration) {
	lm.cleanupTicker = time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-lm.cleanupTicker.C:
				lm.cleanupUnusedLocks(time.Now())
			case <-lm.stop:
				return
			}
		}
	}()
}

func (lm *LockManager) cleanupUnusedLocks(now time.Time) {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	for key, info := range lm.locks {
		if info.refs == 0 && now.Sub(info.LastUsed) > lm.lockTTL {
			delete(lm.locks, key)
		}
	}
}
