package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"subservient/internal/config"
	"subservient/internal/escalation"
	"subservient/internal/logging"
	"subservient/internal/pipeline"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error

	loggerOnce sync.Once
	logger     *slog.Logger
	logPath    string
	loggerErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) flagConfigPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		path := c.flagConfigPath()
		if err := loadDotEnv(path); err != nil {
			c.configErr = err
			return
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configExists = exists
	})
	return c.config, c.configErr
}

// runLogger returns the process logger: console plus the daily run log.
// Old run logs are pruned the first time it is built.
func (c *commandContext) runLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		level := cfg.Logging.Level
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			level = *c.logLevelFlag
		}
		logger, logPath, err := logging.NewRunLogger(level, cfg.Logging.Format, cfg.Paths.LogDir)
		if err != nil {
			c.loggerErr = fmt.Errorf("init logger: %w", err)
			return
		}
		logging.CleanupOldLogs(logger, cfg.Paths.LogDir, cfg.Logging.RetentionDays, logPath)
		c.logger = logger
		c.logPath = logPath
	})
	return c.logger, c.loggerErr
}

// newRunner builds a pipeline runner for a mutating command. The alignment
// spinner goes to stderr when it is a terminal.
func (c *commandContext) newRunner(cmd *cobra.Command, mode escalation.Mode) (*pipeline.Runner, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.runLogger()
	if err != nil {
		return nil, err
	}
	var opts []pipeline.Option
	if isTerminal(cmd.ErrOrStderr()) {
		opts = append(opts, pipeline.WithProgress(cmd.ErrOrStderr()))
	}
	return pipeline.New(cfg, c.configPath, logger, mode, opts...)
}

// inspectRunner builds a runner for read-only commands; it logs nothing.
func (c *commandContext) inspectRunner() (*pipeline.Runner, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return pipeline.New(cfg, c.configPath, logging.NewNop(), escalation.ModeSync)
}

// loadDotEnv reads .env next to the config file and in the working
// directory. Variables already set in the environment win.
func loadDotEnv(configPath string) error {
	var dirs []string
	if configPath != "" {
		expanded, err := config.ExpandPath(configPath)
		if err != nil {
			return fmt.Errorf("resolve config path: %w", err)
		}
		dirs = append(dirs, filepath.Dir(expanded))
	} else if defaultPath, err := config.DefaultConfigPath(); err == nil {
		dirs = append(dirs, filepath.Dir(defaultPath))
	}
	dirs = append(dirs, ".")

	seen := make(map[string]struct{}, len(dirs))
	for _, dir := range dirs {
		path := filepath.Join(dir, ".env")
		abs, err := filepath.Abs(path)
		if err == nil {
			path = abs
		}
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func isTerminal(stream any) bool {
	file, ok := stream.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
