package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/fsrs/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldResemble, config.New())
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("FSRS_ADDR", ":8080")
			_ = os.Setenv("FSRS_QUEUE_SIZE", "64")
			_ = os.Setenv("FSRS_WORKER_COUNT", "3")
			_ = os.Setenv("FSRS_DESIRED_RETENTION", "0.85")
			_ = os.Setenv("FSRS_OPTIMIZER_EPOCHS", "9")
			_ = os.Setenv("FSRS_OPTIMIZER_LEARNING_RATE", "0.01")
			_ = os.Setenv("FSRS_LOG_FORMAT", "json")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 64)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 3)
				convey.So(cfg.DesiredRetention, convey.ShouldEqual, 0.85)
				convey.So(cfg.OptimizerEpochs, convey.ShouldEqual, 9)
				convey.So(cfg.OptimizerLearningRate, convey.ShouldEqual, 0.01)
				convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			tmpFile := createTempConfigFile(t, `
# service
addr: ":9090"
queue_size: 300
worker_count: 2
optimizer_batch_size: 256
optimizer_seed: 7
`)
			_ = os.Setenv("FSRS_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file and keep other defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 300)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 2)
				convey.So(cfg.OptimizerBatchSize, convey.ShouldEqual, 256)
				convey.So(cfg.OptimizerSeed, convey.ShouldEqual, 7)
				convey.So(cfg.DedupeSize, convey.ShouldEqual, config.New().DedupeSize)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile(t, "addr: \":9090\"\nqueue_size: 300\n")
			_ = os.Setenv("FSRS_CONFIG", tmpFile)
			_ = os.Setenv("FSRS_QUEUE_SIZE", "500")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 500)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(t, "addr: [unterminated\n")
			_ = os.Setenv("FSRS_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("FSRS_CONFIG", "/nonexistent/fsrs.yaml")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with an invalid numeric environment variable", func() {
			_ = os.Setenv("FSRS_QUEUE_SIZE", "lots")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When loading config with an out-of-range retention", func() {
			_ = os.Setenv("FSRS_DESIRED_RETENTION", "1.5")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("FSRS_ADDR", "")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func clearConfigEnvVars() {
	for _, key := range []string{
		"FSRS_CONFIG", "FSRS_ADDR", "FSRS_QUEUE_SIZE", "FSRS_WORKER_COUNT",
		"FSRS_DESIRED_RETENTION", "FSRS_OPTIMIZER_EPOCHS", "FSRS_OPTIMIZER_LEARNING_RATE",
		"FSRS_LOG_FORMAT",
	} {
		_ = os.Unsetenv(key)
	}
}

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "fsrs-*.yaml")
	if err != nil {
		t.Fatalf("create temp config: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	_ = f.Close()
	return f.Name()
}
