// Copyright 2026 fanjia1024
// HashiCorp Vault 后端

package secrets

import (
	"context"
	"fmt"
	"strings"

	vault "github.com/hashicorp/vault/api"

	pkgerrors "scholar-agent/pkg/errors"
)

// VaultConfig Vault 连接配置
type VaultConfig struct {
	Address    string `yaml:"address"`     // 如 http://vault:8200
	Token      string `yaml:"token"`       // 访问令牌
	PathPrefix string `yaml:"path_prefix"` // 逻辑路径前缀，默认 secret
}

// vaultStore 以 <prefix>/<key> 为逻辑路径，值存在 data["value"] 下。
// 读不到 "value" 键时取第一个字符串值，兼容手工写入的 secret。
type vaultStore struct {
	client     *vault.Client
	pathPrefix string
}

// NewVaultStore 创建 Vault 后端，启动时做一次健康检查提前暴露连接问题
func NewVaultStore(config VaultConfig) (Store, error) {
	if config.Address == "" {
		config.Address = "http://localhost:8200"
	}
	cfg := vault.DefaultConfig()
	cfg.Address = config.Address

	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "create vault client")
	}
	if config.Token != "" {
		client.SetToken(config.Token)
	}
	if _, err := client.Sys().Health(); err != nil {
		return nil, pkgerrors.Wrapf(err, "connect vault %s", config.Address)
	}

	prefix := config.PathPrefix
	if prefix == "" {
		prefix = "secret"
	}
	return &vaultStore{client: client, pathPrefix: prefix}, nil
}

func (v *vaultStore) path(key string) string {
	return v.pathPrefix + "/" + key
}

func (v *vaultStore) Get(ctx context.Context, key string) (string, error) {
	secret, err := v.client.Logical().ReadWithContext(ctx, v.path(key))
	if err != nil {
		return "", pkgerrors.Wrapf(err, "vault read %s", key)
	}
	if secret == nil {
		return "", pkgerrors.Wrapf(pkgerrors.ErrNotFound, "secret %s", key)
	}
	if value, ok := secret.Data["value"].(string); ok {
		return value, nil
	}
	for _, raw := range secret.Data {
		if str, ok := raw.(string); ok {
			return str, nil
		}
	}
	return "", pkgerrors.Wrapf(pkgerrors.ErrNotFound, "secret %s has no string value", key)
}

func (v *vaultStore) Set(ctx context.Context, key, value string) error {
	_, err := v.client.Logical().WriteWithContext(ctx, v.path(key), map[string]interface{}{
		"value": value,
	})
	if err != nil {
		return pkgerrors.Wrapf(err, "vault write %s", key)
	}
	return nil
}

func (v *vaultStore) Delete(ctx context.Context, key string) error {
	if _, err := v.client.Logical().DeleteWithContext(ctx, v.path(key)); err != nil {
		return pkgerrors.Wrapf(err, "vault delete %s", key)
	}
	return nil
}

func (v *vaultStore) List(ctx context.Context, prefix string) ([]string, error) {
	searchPath := v.pathPrefix
	if prefix != "" {
		searchPath = fmt.Sprintf("%s/metadata/%s", v.pathPrefix, prefix)
	}
	secret, err := v.client.Logical().ListWithContext(ctx, searchPath)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "vault list %s", searchPath)
	}
	if secret == nil {
		return nil, nil
	}
	raw, ok := secret.Data["keys"].([]interface{})
	if !ok {
		return nil, nil
	}
	var keys []string
	for _, k := range raw {
		str, ok := k.(string)
		if !ok {
			continue
		}
		if prefix != "" && !strings.HasPrefix(str, prefix) {
			str = prefix + "/" + str
		}
		keys = append(keys, str)
	}
	return keys, nil
}
