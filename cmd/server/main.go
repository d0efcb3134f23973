package main

import (
	"flag"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"profile-ml/service/internal/api"
	"profile-ml/service/internal/config"
	"profile-ml/service/internal/logging"
	"profile-ml/service/internal/recognition"
)

var version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "Path to YAML config (defaults to $XDG_CONFIG_HOME/profile-ml/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}

	closeLog, err := logging.Setup(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		Production: cfg.IsProduction(),
	})
	if err != nil {
		logrus.Fatalf("configure logging: %v", err)
	}
	defer func() { _ = closeLog() }()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Source != "" {
		logrus.WithField("path", cfg.Source).Info("loaded config file")
	}

	if !cfg.Audit.Disabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Audit.DBPath), 0o755); err != nil {
			logrus.Fatalf("create data directory: %v", err)
		}
	}

	detector, closeDetector, err := recognition.NewBackend(recognition.BackendOptions{
		HTTP: recognition.HTTPConfig{
			URL:      cfg.Detector.URL,
			APIKey:   cfg.Detector.APIKey,
			Timeout:  cfg.Detector.Timeout,
			CacheTTL: cfg.Detector.CacheTTL,
		},
		MQTT: recognition.MQTTConfig{
			Broker:      cfg.Detector.MQTTBroker,
			Username:    cfg.Detector.MQTTUsername,
			Password:    cfg.Detector.MQTTPassword,
			TopicPrefix: cfg.Detector.MQTTTopic,
		},
		DisableFixture: cfg.Detector.DisableFixture,
	})
	if err != nil {
		logrus.Fatalf("configure detector: %v", err)
	}
	defer closeDetector()

	server, err := api.NewServer(api.Config{
		Version:        version,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		ArchetypesPath: cfg.Scoring.ArchetypesPath,
		WeightsPath:    cfg.Scoring.WeightsPath,
		TaxonomyPath:   cfg.Recognition.TaxonomyPath,
		Recognition: recognition.Config{
			Threshold:       cfg.Recognition.Threshold,
			MaxImageBytes:   cfg.Recognition.MaxImageBytes,
			MinDimension:    cfg.Recognition.MinDimension,
			DetectorTimeout: cfg.Recognition.DetectorTimeout,
			BulkLimit:       cfg.Recognition.BulkLimit,
			BulkConcurrency: cfg.Recognition.BulkConcurrency,
		},
		Detector:     detector,
		DBPath:       cfg.Audit.DBPath,
		DisableAudit: cfg.Audit.Disabled,
		SilentDB:     cfg.IsProduction(),
	})
	if err != nil {
		logrus.Fatalf("create server: %v", err)
	}
	defer func() {
		if cerr := server.Close(); cerr != nil {
			logrus.WithError(cerr).Warn("close database")
		}
	}()

	router, err := server.Router()
	if err != nil {
		logrus.Fatalf("configure router: %v", err)
	}

	port := strconv.Itoa(cfg.Server.Port)
	logrus.WithFields(logrus.Fields{"env": cfg.Env, "version": version}).Infof("starting profile-ml service on :%s", port)
	if err := router.Run(":" + port); err != nil {
		logrus.Fatalf("server exited: %v", err)
	}
}
