package metadata

import (
	"fmt"

	"scholar-agent/pkg/config"
)

// NewStore 根据配置创建元数据存储（memory | sqlite）
func NewStore(cfg config.MetadataStoreConfig) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("元数据存储 type=sqlite 需要配置 path")
		}
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("不支持的元数据存储类型: %s", cfg.Type)
	}
}
