package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/swaply/exchat/internal/config"
	"github.com/swaply/exchat/internal/daemon"
	"go.uber.org/fx"
)

func main() {
	configFlag := flag.String("config", "", "path to config file (default ~/.exchat/config.toml)")
	flag.Parse()

	path := *configFlag
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		path = filepath.Join(home, ".exchat", "config.toml")
	}

	cfg, err := config.Load(path)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
			os.Exit(1)
		}
		cfg = config.Default()
	}

	app := fx.New(
		daemon.Module(daemon.Params{Config: cfg}),
	)

	app.Run()
}
