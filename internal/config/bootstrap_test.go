package config

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Bootstrap Config", func() {
	var (
		tempDir    string
		configFile string
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "govintel-config-test")
		Expect(err).NotTo(HaveOccurred())
		configFile = filepath.Join(tempDir, "config.yaml")
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
	})

	Describe("Load", func() {
		Context("when config file exists with valid content", func() {
			BeforeEach(func() {
				validConfig := `
server:
  admin_port: "8080"
  metrics_port: "9090"

database:
  host: "db.internal"
  port: 5432
  name: "governance_intel"

providers:
  llm:
    endpoint: "https://api.anthropic.com"
    model: "claude-3-sonnet"
    timeout: "30s"
    retry_count: 3
    provider: "anthropic"
    temperature: 0.2
    max_tokens: 500
  embedding:
    endpoint: "http://localhost:8090"
    model: "text-embed-v1"
    timeout: "20s"
    provider: "local"
    dimension: 1536

paths:
  raw_data_dir: "/var/lib/govintel/raw"
  log_dir: "/var/log/govintel"
  config_dir: "/etc/govintel"

cycle:
  dry_run: false
  max_concurrent: 5
  cooldown_period: "5m"

ingest_filters:
  - name: "low-signal-platforms"
    conditions:
      platform:
        - "forum"
        - "comment-spam"

logging:
  level: "info"
  format: "json"
`
				err := os.WriteFile(configFile, []byte(validConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should load configuration successfully", func() {
				config, err := Load(configFile)
				Expect(err).NotTo(HaveOccurred())
				Expect(config).NotTo(BeNil())

				Expect(config.Server.AdminPort).To(Equal("8080"))
				Expect(config.Server.MetricsPort).To(Equal("9090"))

				Expect(config.Database.Host).To(Equal("db.internal"))
				Expect(config.Database.Name).To(Equal("governance_intel"))

				Expect(config.Providers.LLM.Endpoint).To(Equal("https://api.anthropic.com"))
				Expect(config.Providers.LLM.Model).To(Equal("claude-3-sonnet"))
				Expect(config.Providers.LLM.Timeout).To(Equal(30 * time.Second))
				Expect(config.Providers.LLM.RetryCount).To(Equal(3))
				Expect(config.Providers.LLM.Provider).To(Equal("anthropic"))
				Expect(config.Providers.LLM.Temperature).To(Equal(float32(0.2)))
				Expect(config.Providers.LLM.MaxTokens).To(Equal(500))

				Expect(config.Providers.Embedding.Endpoint).To(Equal("http://localhost:8090"))
				Expect(config.Providers.Embedding.Dimension).To(Equal(1536))

				Expect(config.Paths.RawDataDir).To(Equal("/var/lib/govintel/raw"))
				Expect(config.Paths.LogDir).To(Equal("/var/log/govintel"))
				Expect(config.Paths.ConfigDir).To(Equal("/etc/govintel"))

				Expect(config.Cycle.DryRun).To(BeFalse())
				Expect(config.Cycle.MaxConcurrent).To(Equal(5))
				Expect(config.Cycle.CooldownPeriod).To(Equal(5 * time.Minute))

				Expect(config.IngestFilters).To(HaveLen(1))
				Expect(config.IngestFilters[0].Name).To(Equal("low-signal-platforms"))
				Expect(config.IngestFilters[0].Conditions["platform"]).To(ContainElements("forum", "comment-spam"))

				Expect(config.Logging.Level).To(Equal("info"))
				Expect(config.Logging.Format).To(Equal("json"))
			})
		})

		Context("when config file has minimal content", func() {
			BeforeEach(func() {
				minimalConfig := `
server:
  admin_port: "3000"

providers:
  llm:
    endpoint: "http://localhost:8080"
    model: "test-model"
    provider: "anthropic"
`
				err := os.WriteFile(configFile, []byte(minimalConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should load with defaults for missing values", func() {
				config, err := Load(configFile)
				Expect(err).NotTo(HaveOccurred())

				Expect(config.Server.AdminPort).To(Equal("3000"))
				Expect(config.Providers.LLM.Endpoint).To(Equal("http://localhost:8080"))
				Expect(config.Providers.LLM.Model).To(Equal("test-model"))

				Expect(config.Database.Name).To(Equal("governance_intel"))
				Expect(config.Cycle.MaxConcurrent).To(Equal(5))
				Expect(config.Providers.Embedding.Provider).To(Equal("local"))
			})
		})

		Context("when config file does not exist", func() {
			It("should return an error", func() {
				_, err := Load("/nonexistent/config.yaml")
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to read config file"))
			})
		})

		Context("when config file has invalid YAML", func() {
			BeforeEach(func() {
				invalidConfig := `
server:
  admin_port: "8080"
  invalid_yaml: [
providers:
  llm:
    endpoint: "test"
`
				err := os.WriteFile(configFile, []byte(invalidConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return an error", func() {
				_, err := Load(configFile)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to parse config file"))
			})
		})

		Context("when config has invalid duration formats", func() {
			BeforeEach(func() {
				invalidDurationConfig := `
server:
  admin_port: "8080"

providers:
  llm:
    endpoint: "http://localhost:11434"
    model: "test"
    timeout: "invalid-duration"
    provider: "anthropic"

cycle:
  cooldown_period: "not-a-duration"
`
				err := os.WriteFile(configFile, []byte(invalidDurationConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return an error", func() {
				_, err := Load(configFile)
				Expect(err).To(HaveOccurred())
			})
		})
	})
})
