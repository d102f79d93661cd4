package object

import (
	"fmt"

	"scholar-agent/pkg/config"
)

// NewStore 根据配置创建对象存储（memory | file）
func NewStore(cfg config.DocumentStoreConfig) (Store, error) {
	switch cfg.Store {
	case "", "memory":
		return NewMemoryStore(), nil
	case "file":
		dir := cfg.Dir
		if dir == "" {
			dir = "data/uploads"
		}
		return NewFSStore(dir)
	default:
		return nil, fmt.Errorf("不支持的对象存储类型: %s", cfg.Store)
	}
}
