// Command reset-sessions deletes every recorded session and its voucher usage.
// Master data is kept. The confirmation phrase must be passed verbatim:
//
//	reset-sessions -confirm "DELETE ALL SESSIONS"
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/garyjia/counsel-settlement/internal/application/service"
	"github.com/garyjia/counsel-settlement/internal/config"
	"github.com/garyjia/counsel-settlement/internal/container"
	"github.com/garyjia/counsel-settlement/internal/domain/settlement"
	"github.com/garyjia/counsel-settlement/pkg/utils"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	confirm := flag.String("confirm", "", fmt.Sprintf("confirmation phrase, must be %q", service.ResetConfirmationPhrase))
	flag.Parse()

	if err := run(*configPath, *confirm); err != nil {
		fmt.Fprintf(os.Stderr, "reset failed: %v\n", err)
		if errors.Is(err, settlement.ErrResetNotConfirmed) {
			fmt.Fprintf(os.Stderr, "pass -confirm %q to proceed\n", service.ResetConfirmationPhrase)
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(configPath, confirm string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: "stderr",
		Format:     cfg.Logger.Format,
		Service:    "reset-sessions",
	})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	c, err := container.NewContainer(cfg.ToContainerConfig(), logger)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer c.Close()

	deleted, err := c.Services().Report.ResetSessions(ctx, confirm)
	if err != nil {
		return err
	}

	logger.Info("Sessions reset", zap.Int64("deleted", deleted))
	fmt.Printf("deleted %d sessions\n", deleted)
	return nil
}
