package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"dogfinder/internal/bridge"
	"dogfinder/internal/camera"
	"dogfinder/internal/config"
	"dogfinder/internal/detector"
	"dogfinder/internal/detector/yolo"
	"dogfinder/internal/logger"
	"dogfinder/internal/reolink"
	"dogfinder/internal/scan"
	"dogfinder/internal/service"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Optional YAML config file")
	maxSteps := flag.Int("max-steps", -1, "Stop after this many pans (0 = until found, default from config)")
	inspectFirst := flag.Bool("inspect-first", false, "Check the current view before the first pan, so a dog first seen in frame N costs N-1 pans (default pans before every capture: N pans)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *maxSteps >= 0 {
		cfg.Scan.MaxSteps = *maxSteps
	}
	if *inspectFirst {
		cfg.Scan.InspectFirst = true
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "scan failed: %v\n", err)
		if errors.Is(err, scan.ErrTargetNotFound) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logs, err := logger.New(cfg.LogDirectory)
	if err != nil {
		return err
	}
	defer logs.Close()

	model, err := yolo.Load(cfg.Detector.ModelPath, cfg.Detector.NMSThreshold, logs)
	if err != nil {
		return err
	}
	defer model.Close()

	det := detector.New(model,
		detector.WithInputSize(cfg.Detector.InputSize),
		detector.WithMinConfidence(cfg.Detector.MinConfidence),
		detector.WithTargetClass(cfg.Detector.TargetClass),
		detector.WithLogger(logs),
	)

	client := reolink.New(reolink.BaseURL(cfg.Camera.Host, cfg.Camera.HTTPS), cfg.Camera.Username, cfg.Camera.Password, cfg.Camera.Timeout)
	b := bridge.New(camera.NewSession(client, cfg.Camera.Channel, logs), logs)
	defer func() {
		if err := b.Close(true); err != nil {
			logs.Warning("Camera logout failed: %v", err)
		}
	}()

	manager := service.NewManager(b, det, cfg.Scan, logs,
		service.WithObserver(printStep),
	)

	out, err := manager.RunScan(ctx, "", "cli")
	if err != nil {
		return err
	}
	fmt.Printf("Dog found after %d step(s), conf %.2f\n", out.Steps, out.Result.BestConfidence)
	return nil
}

func printStep(e scan.Event) {
	if e.Phase == scan.Detecting && e.Result != nil {
		fmt.Printf("step %d: dog? %v conf %.2f\n", e.Step, e.Result.Found, e.Result.BestConfidence)
	}
}
