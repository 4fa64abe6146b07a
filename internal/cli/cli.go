// Package cli 命令行工具共用的初始化：日志、状态提供者与元数据
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"movefuzz/pkg/analysis"
	"movefuzz/pkg/metadata"
	"movefuzz/pkg/state"
	"movefuzz/pkg/types"

	"github.com/ethereum/go-ethereum/log"
)

// stateCacheSize RPC状态提供者的LRU容量
const stateCacheSize = 4096

// SetupLogging 终端日志，verbose 时输出 debug
func SetupLogging(verbose bool) {
	level := log.LevelInfo
	if verbose {
		level = log.LevelDebug
	}
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, level, true)))
}

// Fatal 记录错误并退出
func Fatal(msg string, ctx ...interface{}) {
	log.Error(msg, ctx...)
	os.Exit(1)
}

// OpenProvider 打开快照文件或连接状态服务，返回提供者与快照中的包列表
func OpenProvider(ctx context.Context, snapshotPath, stateRPC string) (state.Provider, []types.Address, error) {
	switch {
	case snapshotPath != "":
		p, err := state.LoadSnapshot(snapshotPath)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", metadata.ErrStateUnavailable, err)
		}
		log.Info("Loaded state snapshot", "path", snapshotPath, "packages", len(p.Packages()))
		return p, p.Packages(), nil
	case stateRPC != "":
		rp, err := state.DialRPCProvider(ctx, stateRPC, 30*time.Second)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", metadata.ErrStateUnavailable, err)
		}
		cached, err := state.NewCachedProvider(rp, stateCacheSize)
		if err != nil {
			return nil, nil, err
		}
		log.Info("Connected to state service", "url", stateRPC)
		return cached, nil, nil
	}
	return nil, nil, fmt.Errorf("%w: no snapshot path or state RPC configured", metadata.ErrStateUnavailable)
}

// BuildMetadata 构建元数据；packages 为空时使用 fallback
func BuildMetadata(ctx context.Context, p state.Provider, packages, fallback []types.Address, opts metadata.Options) (*metadata.Metadata, error) {
	if len(packages) == 0 {
		packages = fallback
	}
	if len(packages) == 0 {
		return nil, fmt.Errorf("%w: no packages to load", metadata.ErrMalformedABI)
	}
	start := time.Now()
	meta, err := metadata.Build(ctx, p, packages, opts)
	if err != nil {
		return nil, err
	}
	log.Info("Metadata built",
		"packages", len(meta.Packages),
		"modules", len(meta.Modules()),
		"callable", len(meta.Callable()),
		"pool_types", len(meta.PoolTypes()),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return meta, nil
}

// LoadModuleIR 读取反汇编IR，按模块标识索引
func LoadModuleIR(paths []string) ([]*analysis.Module, map[types.ModuleID]*analysis.Module, error) {
	if len(paths) == 0 {
		return nil, nil, nil
	}
	modules, err := analysis.LoadModules(paths...)
	if err != nil {
		return nil, nil, err
	}
	index := make(map[types.ModuleID]*analysis.Module, len(modules))
	for _, m := range modules {
		index[m.ID()] = m
	}
	log.Info("Loaded module IR", "files", len(paths), "modules", len(modules))
	return modules, index, nil
}
