package cli

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"pawbot/internal/cli/defaults"
	"pawbot/internal/config"
	"pawbot/internal/storage"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// InitOptions init 命令选项
type InitOptions struct {
	Force bool
	// ConfigDir overrides ~/.pawbot.
	ConfigDir string
}

// NewInitCmd 创建 init 命令
func NewInitCmd() *cobra.Command {
	opts := &InitOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize pawbot configuration",
		Long:  "Create the configuration directory, a default config file, the database and a sample knowledge base",
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunInit(opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "overwrite existing configuration")
	cmd.Flags().StringVar(&opts.ConfigDir, "dir", "", "configuration directory (default ~/.pawbot)")

	return cmd
}

// RunInit 执行初始化
func RunInit(opts *InitOptions, out io.Writer) error {
	// 获取配置目录
	configDir := opts.ConfigDir
	if configDir == "" {
		var err error
		configDir, err = config.DefaultConfigDir()
		if err != nil {
			return fmt.Errorf("get config dir: %w", err)
		}
	}

	// 检查是否已存在
	configPath := filepath.Join(configDir, "config.yaml")
	if _, err := os.Stat(configPath); err == nil && !opts.Force {
		return fmt.Errorf("configuration already exists at %s (use --force to overwrite)", configPath)
	}

	docsDir := filepath.Join(configDir, "knowledge")
	sessionsDir := filepath.Join(configDir, "sessions")
	dataPath := filepath.Join(configDir, "data.db")

	// 创建目录结构
	dirs := []string{
		configDir,
		filepath.Join(configDir, "logs"),
		docsDir,
		sessionsDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	// 生成默认配置
	defaultConfig := map[string]any{
		"gateway": map[string]any{
			"port": 18790,
			"host": "127.0.0.1",
		},
		"model": map[string]any{
			"endpoint": "https://api.openai.com/v1",
			"name":     "gpt-4o-mini",
		},
		"storage": map[string]any{
			"driver": "sqlite",
			"path":   dataPath,
			"dir":    sessionsDir,
		},
		"knowledge": map[string]any{
			"docs_dir":        docsDir,
			"watch":           true,
			"resync_schedule": "@every 6h",
		},
		"log": map[string]any{
			"level":  "info",
			"format": "console",
		},
	}

	data, err := yaml.Marshal(defaultConfig)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	// 初始化数据库
	db, err := storage.Open(dataPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	db.Close()

	if err := copyDefaultKnowledge(docsDir, opts.Force); err != nil {
		fmt.Fprintf(out, "Warning: failed to copy sample knowledge: %v\n", err)
	}

	fmt.Fprintf(out, "Initialized pawbot at %s\n", configDir)
	fmt.Fprintf(out, "  Config:    %s\n", configPath)
	fmt.Fprintf(out, "  Database:  %s\n", dataPath)
	fmt.Fprintf(out, "  Knowledge: %s\n", docsDir)
	fmt.Fprintln(out, "Next: pawbot config set-key && pawbot ingest")

	return nil
}

// copyDefaultKnowledge copies the embedded sample documents.
func copyDefaultKnowledge(docsDir string, force bool) error {
	defaultsFS := defaults.GetDefaultsFS()

	return fs.WalkDir(defaultsFS, "knowledge", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == "knowledge" {
			return nil
		}

		relPath, err := filepath.Rel("knowledge", path)
		if err != nil {
			return err
		}
		destPath := filepath.Join(docsDir, relPath)

		if d.IsDir() {
			return os.MkdirAll(destPath, 0755)
		}

		// 已存在且未指定 --force 时跳过
		if _, err := os.Stat(destPath); err == nil && !force {
			return nil
		}

		data, err := defaultsFS.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(destPath, data, 0644)
	})
}
