package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/subcommands"
	log "github.com/sirupsen/logrus"

	"churn-model-service/internal/bootstrap"
	"churn-model-service/internal/config"
	"churn-model-service/internal/logger"
)

func main() {
	os.Exit(int(run()))
}

func run() subcommands.ExitStatus {
	cfg, err := config.Load()
	if err != nil {
		log.Errorf("load config: %v", err)
		return subcommands.ExitFailure
	}
	cfg.Logger.Format = "text"
	closer := logger.Init(cfg.Logger)
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := bootstrap.Registry(cfg)
	if err != nil {
		log.Errorf("open registry: %v", err)
		return subcommands.ExitFailure
	}
	training, closeRuns, err := bootstrap.TrainingService(ctx, cfg, registry)
	if err != nil {
		log.Errorf("build registry services: %v", err)
		return subcommands.ExitFailure
	}
	defer closeRuns()

	e := &env{registry: registry, training: training, out: os.Stdout, errOut: os.Stderr}
	cmdr := subcommands.NewCommander(flag.CommandLine, "registryctl")
	register(cmdr, e)

	flag.Parse()
	return cmdr.Execute(ctx)
}

func register(cmdr *subcommands.Commander, e *env) {
	cmdr.Register(cmdr.HelpCommand(), "")
	cmdr.Register(cmdr.FlagsCommand(), "")
	cmdr.Register(&listCmd{env: e}, "registry")
	cmdr.Register(&currentCmd{env: e}, "registry")
	cmdr.Register(&promoteCmd{env: e}, "registry")
	cmdr.Register(&runsCmd{env: e}, "history")
}
