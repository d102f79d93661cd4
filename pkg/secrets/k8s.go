// Copyright 2026 fanjia1024
// Kubernetes 挂载文件后端

package secrets

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	pkgerrors "scholar-agent/pkg/errors"
)

// K8sConfig Kubernetes 后端配置
type K8sConfig struct {
	// ServiceAccountPath service account 挂载目录，
	// 默认 /var/run/secrets/kubernetes.io/serviceaccount
	ServiceAccountPath string `yaml:"service_account_path"`

	// Namespace pod 所在 namespace，默认 default
	Namespace string `yaml:"namespace"`

	// SecretsPath 额外 secret 卷的挂载目录，默认 /etc/secrets
	SecretsPath string `yaml:"secrets_path"`
}

// k8sStore 从 pod 内挂载的 secret 卷按文件名读取。
// 挂载卷在 pod 生命周期内只读，Set/Delete 只作用于内存缓存。
type k8sStore struct {
	searchDirs []string
	mu         sync.RWMutex
	cache      map[string]string
}

// NewK8sStore 创建 Kubernetes 后端。service account 目录不存在视为
// 不在集群内运行，直接报错让配置回退到其它后端。
func NewK8sStore(config K8sConfig) (Store, error) {
	saPath := config.ServiceAccountPath
	if saPath == "" {
		saPath = "/var/run/secrets/kubernetes.io/serviceaccount"
	}
	if _, err := os.Stat(saPath); err != nil {
		return nil, pkgerrors.Wrapf(err, "service account path %s (not running in kubernetes?)", saPath)
	}

	secretsPath := config.SecretsPath
	if secretsPath == "" {
		secretsPath = "/etc/secrets"
	}
	namespace := config.Namespace
	if namespace == "" {
		namespace = "default"
	}

	return &k8sStore{
		searchDirs: []string{
			secretsPath,
			filepath.Join("/run/secrets/kubernetes.io", namespace),
			saPath,
		},
		cache: make(map[string]string),
	}, nil
}

func (k *k8sStore) Get(ctx context.Context, key string) (string, error) {
	k.mu.RLock()
	if value, ok := k.cache[key]; ok {
		k.mu.RUnlock()
		return value, nil
	}
	k.mu.RUnlock()

	for _, dir := range k.searchDirs {
		data, err := os.ReadFile(filepath.Join(dir, key))
		if err != nil {
			continue
		}
		value := strings.TrimSpace(string(data))
		k.mu.Lock()
		k.cache[key] = value
		k.mu.Unlock()
		return value, nil
	}
	return "", pkgerrors.Wrapf(pkgerrors.ErrNotFound, "secret %s", key)
}

func (k *k8sStore) Set(ctx context.Context, key, value string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.cache[key] = value
	return nil
}

func (k *k8sStore) Delete(ctx context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.cache, key)
	return nil
}

func (k *k8sStore) List(ctx context.Context, prefix string) ([]string, error) {
	seen := make(map[string]struct{})
	for _, dir := range k.searchDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
				continue
			}
			seen[e.Name()] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}
