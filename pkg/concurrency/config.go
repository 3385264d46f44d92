package concurrency

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// ExecutorMode selects where processor steps run
type ExecutorMode string

const (
	ExecutorModeInline ExecutorMode = "inline"
	ExecutorModeQueue  ExecutorMode = "queue"
)

// ConfigSource indicates where the configuration came from
type ConfigSource string

const (
	ConfigSourceEnvVar     ConfigSource = "environment_variable"
	ConfigSourceAutoDetect ConfigSource = "auto_detect"
	ConfigSourceDefault    ConfigSource = "default"
)

// Config holds concurrency configuration parameters
type Config struct {
	// MaxConcurrent bounds the number of steps executing at once
	MaxConcurrent int

	// RunnerWorkers is the size of the inline executor pool and of the queue worker
	RunnerWorkers int

	// BatchParallelism bounds how many articles a batch processes at once
	BatchParallelism int

	ExecutorMode  ExecutorMode
	TaskTimeout   time.Duration
	Breaker       BreakerConfig
	Source        ConfigSource
	IsKubernetes  bool
	EffectiveCPUs int
}

// LoadConfig loads concurrency configuration with priority: env vars > auto-detection > defaults
func LoadConfig() *Config {
	config := &Config{}

	config.IsKubernetes = isKubernetes()

	// respects cgroup limits once automaxprocs has run
	config.EffectiveCPUs = runtime.GOMAXPROCS(0)

	if maxConcurrent := getEnvInt("PYTHIA_MAX_CONCURRENT", 0); maxConcurrent > 0 {
		config.MaxConcurrent = maxConcurrent
		config.Source = ConfigSourceEnvVar
	} else if multiplier := getEnvInt("PYTHIA_CONCURRENCY_MULTIPLIER", 0); multiplier > 0 {
		config.MaxConcurrent = config.EffectiveCPUs * multiplier
		config.Source = ConfigSourceEnvVar
	} else {
		config.MaxConcurrent = getDefaultMaxConcurrent(config.IsKubernetes, config.EffectiveCPUs)
		config.Source = ConfigSourceAutoDetect
	}

	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = 1
	}

	if workers := getEnvInt("PYTHIA_RUNNER_WORKERS", 0); workers > 0 {
		config.RunnerWorkers = workers
	} else {
		config.RunnerWorkers = getDefaultRunnerWorkers(config.IsKubernetes, config.EffectiveCPUs)
	}

	if parallelism := getEnvInt("PYTHIA_BATCH_PARALLELISM", 0); parallelism > 0 {
		config.BatchParallelism = parallelism
	} else {
		config.BatchParallelism = max(config.EffectiveCPUs, 2)
	}

	config.ExecutorMode = ExecutorMode(strings.ToLower(getEnv("PYTHIA_EXECUTOR", string(ExecutorModeInline))))
	if config.ExecutorMode != ExecutorModeInline && config.ExecutorMode != ExecutorModeQueue {
		config.ExecutorMode = ExecutorModeInline
	}

	config.TaskTimeout = 60 * time.Second
	if seconds := getEnvInt("PYTHIA_TASK_TIMEOUT_SECONDS", 0); seconds > 0 {
		config.TaskTimeout = time.Duration(seconds) * time.Second
	}

	config.Breaker = DefaultBreakerConfig()
	if threshold := getEnvInt("PYTHIA_BREAKER_THRESHOLD", 0); threshold > 0 {
		config.Breaker.FailureThreshold = int64(threshold)
	}
	if seconds := getEnvInt("PYTHIA_BREAKER_COOLDOWN_SECONDS", 0); seconds > 0 {
		config.Breaker.Cooldown = time.Duration(seconds) * time.Second
	}

	return config
}

// NewStepLimiter builds the limiter executors share to bound concurrent steps
func (c *Config) NewStepLimiter() *Limiter {
	return NewLimiterWithCircuitBreaker(c.MaxConcurrent, NewCircuitBreaker(c.Breaker))
}

// isKubernetes detects if the application is running in Kubernetes
func isKubernetes() bool {
	return os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}

// getDefaultMaxConcurrent returns sensible defaults based on environment
func getDefaultMaxConcurrent(isK8s bool, cpus int) int {
	if isK8s {
		return cpus * 2
	}
	// steps mostly wait on the model server
	return cpus * 4
}

// getDefaultRunnerWorkers returns sensible defaults for the worker pool
func getDefaultRunnerWorkers(isK8s bool, cpus int) int {
	if isK8s {
		return max(cpus, 4)
	}
	return max(cpus*2, 8)
}

// getEnvInt retrieves an integer from environment variable with default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnv retrieves a string from environment variable with default fallback
func getEnv(key string, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// String returns a formatted string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{MaxConcurrent: %d, RunnerWorkers: %d, BatchParallelism: %d, Executor: %s, TaskTimeout: %s, BreakerThreshold: %d, IsK8s: %t, CPUs: %d, Source: %s}",
		c.MaxConcurrent,
		c.RunnerWorkers,
		c.BatchParallelism,
		c.ExecutorMode,
		c.TaskTimeout,
		c.Breaker.FailureThreshold,
		c.IsKubernetes,
		c.EffectiveCPUs,
		c.Source,
	)
}
