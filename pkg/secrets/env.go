// Copyright 2026 fanjia1024
// 环境变量后端

package secrets

import (
	"context"
	"os"
	"sort"
	"strings"

	pkgerrors "scholar-agent/pkg/errors"
)

// envStore 直接读写进程环境变量。模型 API Key（如 QWEN_API_KEY）
// 最常见的注入方式就是环境变量，这也是默认后端。
type envStore struct{}

// NewEnvStore 创建环境变量后端
func NewEnvStore() Store {
	return &envStore{}
}

func (e *envStore) Get(ctx context.Context, key string) (string, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", pkgerrors.Wrapf(pkgerrors.ErrNotFound, "env %s", key)
	}
	return value, nil
}

func (e *envStore) Set(ctx context.Context, key, value string) error {
	return os.Setenv(key, value)
}

func (e *envStore) Delete(ctx context.Context, key string) error {
	return os.Unsetenv(key)
}

func (e *envStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, prefix) {
			keys = append(keys, name)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
