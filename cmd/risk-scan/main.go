package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/mikey/link-risk-engine/internal/adapters/classifier"
	"github.com/mikey/link-risk-engine/internal/adapters/filter"
	"github.com/mikey/link-risk-engine/internal/di"
	"github.com/mikey/link-risk-engine/internal/factory"
)

func main() {
	flags, err := di.ParseFlags("risk-scan", os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	if flags.URL == "" && !flags.MessageOnly && flags.InputFile == "" {
		fmt.Fprintln(os.Stderr, "one of -url, -message-only or -file is required")
		os.Exit(2)
	}

	// Build the dependency injection container
	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	if err := container.Invoke(run); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}

func run(
	flags *di.CLIFlags,
	logger *zap.Logger,
	cli *filter.CliFilter,
	cls *classifier.Lazy,
	cacheRepo factory.StoppableCache,
) error {
	defer logger.Sync()
	defer cacheRepo.Stop()
	defer func() {
		if err := cls.Close(); err != nil {
			logger.Error("Failed to close classifier", zap.Error(err))
		}
	}()

	ctx := context.Background()

	switch {
	case flags.MessageOnly:
		_, err := cli.AnalyzeText(ctx, flags.Message)
		return err
	case flags.InputFile != "":
		return scanFile(ctx, logger, cli, flags.InputFile)
	default:
		_, err := cli.ScanURL(ctx, flags.URL, flags.Message, flags.SkipIntel)
		return err
	}
}

// scanFile scores the links of an email read from path, or stdin for "-"
func scanFile(ctx context.Context, logger *zap.Logger, cli *filter.CliFilter, path string) error {
	var reader io.Reader
	if path == "-" {
		reader = os.Stdin
		logger.Debug("Reading email from stdin")
	} else {
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open input file: %w", err)
		}
		defer file.Close()
		reader = file
		logger.Debug("Reading email from file", zap.String("file", path))
	}

	msg, err := filter.ReadMessage(bufio.NewReader(reader))
	if msg == nil {
		return err
	}
	if err != nil {
		logger.Warn("Scanning partially decoded email", zap.Error(err))
	}

	_, err = cli.ScanMessage(ctx, msg)
	return err
}
