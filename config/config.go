package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"mbp10/infra/mbpcsv"
)

type Config struct {
	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
		File   struct {
			Path       string `yaml:"path"`
			MaxSizeMB  int    `yaml:"max_size_mb"`
			MaxBackups int    `yaml:"max_backups"`
			MaxAgeDays int    `yaml:"max_age_days"`
			Compress   bool   `yaml:"compress"`
		} `yaml:"file"`
	} `yaml:"logging"`
	Input struct {
		// Source is one of csv, journal or kafka.
		Source string `yaml:"source"`
		Path   string `yaml:"path"`
	} `yaml:"input"`
	Output struct {
		Path         string `yaml:"path"`
		PublisherID  uint32 `yaml:"publisher_id"`
		InstrumentID uint32 `yaml:"instrument_id"`
		Symbol       string `yaml:"symbol"`
		SequenceBase uint64 `yaml:"sequence_base"`
	} `yaml:"output"`
	Journal struct {
		Dir           string `yaml:"dir"`
		SegmentSizeMB int    `yaml:"segment_size_mb"`
		SyncEvery     int    `yaml:"sync_every"`
	} `yaml:"journal"`
	Outbox struct {
		Dir  string `yaml:"dir"`
		Sync bool   `yaml:"sync"`
	} `yaml:"outbox"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		InputTopic   string   `yaml:"input_topic"`
		GroupID      string   `yaml:"group_id"`
		PublishTopic string   `yaml:"publish_topic"`
		BatchSize    int      `yaml:"batch_size"`
		IntervalMs   int      `yaml:"interval_ms"`
		MaxRetries   uint32   `yaml:"max_retries"`
	} `yaml:"kafka"`
	Server struct {
		HTTPAddr string `yaml:"http_addr"`
		GRPCAddr string `yaml:"grpc_addr"`
		// Serve keeps the servers up after the input is exhausted.
		Serve bool `yaml:"serve"`
	} `yaml:"server"`
}

func Default() Config {
	var c Config
	c.Logging.Level = "info"
	c.Logging.File.MaxSizeMB = 100
	c.Logging.File.MaxBackups = 3
	c.Logging.File.MaxAgeDays = 7
	c.Input.Source = "csv"
	c.Input.Path = "mbo.csv"
	c.Output.Path = "output_mbp.csv"
	meta := mbpcsv.DefaultMetadata()
	c.Output.PublisherID = meta.PublisherID
	c.Output.InstrumentID = meta.InstrumentID
	c.Output.Symbol = meta.Symbol
	c.Output.SequenceBase = meta.SequenceBase
	c.Journal.SegmentSizeMB = 64
	c.Kafka.GroupID = "mbp10"
	c.Kafka.BatchSize = 256
	c.Kafka.IntervalMs = 250
	c.Kafka.MaxRetries = 5
	return c
}

// Load applies defaults, then the YAML file named by MBP10_CONFIG, then
// MBP10_* environment overrides. The result is not validated, so callers
// can layer flags on top before calling Validate.
func Load() (Config, error) {
	c := Default()
	if path := os.Getenv("MBP10_CONFIG"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return c, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&c)
	return c, nil
}

func applyEnv(c *Config) {
	if v := os.Getenv("MBP10_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MBP10_LOG_PRETTY"); v == "1" || v == "true" {
		c.Logging.Pretty = true
	}
	if v := os.Getenv("MBP10_LOG_FILE"); v != "" {
		c.Logging.File.Path = v
	}
	if v := os.Getenv("MBP10_SOURCE"); v != "" {
		c.Input.Source = v
	}
	if v := os.Getenv("MBP10_INPUT"); v != "" {
		c.Input.Path = v
	}
	if v := os.Getenv("MBP10_OUTPUT"); v != "" {
		c.Output.Path = v
	}
	if v := os.Getenv("MBP10_SYMBOL"); v != "" {
		c.Output.Symbol = v
	}
	if v := os.Getenv("MBP10_JOURNAL_DIR"); v != "" {
		c.Journal.Dir = v
	}
	if v := os.Getenv("MBP10_OUTBOX_DIR"); v != "" {
		c.Outbox.Dir = v
	}
	if v := os.Getenv("MBP10_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitCSV(v)
	}
	if v := os.Getenv("MBP10_KAFKA_INPUT_TOPIC"); v != "" {
		c.Kafka.InputTopic = v
	}
	if v := os.Getenv("MBP10_KAFKA_PUBLISH_TOPIC"); v != "" {
		c.Kafka.PublishTopic = v
	}
	if v := os.Getenv("MBP10_KAFKA_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Kafka.BatchSize = n
		}
	}
	if v := os.Getenv("MBP10_HTTP_ADDR"); v != "" {
		c.Server.HTTPAddr = v
	}
	if v := os.Getenv("MBP10_GRPC_ADDR"); v != "" {
		c.Server.GRPCAddr = v
	}
	if v := os.Getenv("MBP10_SERVE"); v == "1" || v == "true" {
		c.Server.Serve = true
	}
}

// Validate rejects combinations the pipeline cannot run with.
func (c Config) Validate() error {
	switch c.Input.Source {
	case "csv", "journal":
		if c.Input.Path == "" {
			return fmt.Errorf("input source %s needs a path", c.Input.Source)
		}
	case "kafka":
		if len(c.Kafka.Brokers) == 0 || c.Kafka.InputTopic == "" {
			return fmt.Errorf("kafka source needs brokers and input_topic")
		}
	default:
		return fmt.Errorf("unknown input source %q", c.Input.Source)
	}
	if c.Kafka.PublishTopic != "" {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("publishing needs kafka brokers")
		}
		if c.Outbox.Dir == "" {
			return fmt.Errorf("publishing needs an outbox dir")
		}
	}
	if c.Input.Source == "journal" && c.Journal.Dir != "" && c.Journal.Dir == c.Input.Path {
		return fmt.Errorf("journal dir %s is also the input", c.Journal.Dir)
	}
	return nil
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
