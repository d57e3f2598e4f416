package main

import (
	"fmt"
	"os"

	"certrag/internal/bootstrap"
	"certrag/internal/cli"
	"certrag/internal/config"
)

func main() {
	config.LoadEnv()
	cli.SetOpener(open)
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

func open(configPath string, interactive bool) (cli.RAGService, func() error, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if configPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(configPath)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := bootstrap.NewLogger(cfg.Log, interactive)
	c, err := bootstrap.New(cfg, log, nil)
	if err != nil {
		_ = log.Sync()
		return nil, nil, err
	}
	return c.Service, c.Close, nil
}
