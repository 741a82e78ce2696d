package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	Port       string        `env:"PORT" envDefault:"8080"`
	CORSOrigin string        `env:"CORS_ORIGIN" envDefault:"*"`
	CacheTTL   time.Duration `env:"CACHE_TTL" envDefault:"1s"`
	LogLevel   string        `env:"LOG_LEVEL" envDefault:"info"`

	AllocationWorkers       int  `env:"ALLOCATION_WORKERS" envDefault:"3"`
	AllocationQueueCapacity int  `env:"ALLOCATION_QUEUE_CAPACITY" envDefault:"50"`
	AllocationNonBlocking   bool `env:"ALLOCATION_NON_BLOCKING" envDefault:"false"`
	ErrorBuffer             int  `env:"ERROR_BUFFER" envDefault:"64"`

	// Kafka is optional; without brokers the server only takes HTTP input.
	KafkaBrokers        []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaFillsTopic     string   `env:"KAFKA_FILLS_TOPIC" envDefault:"fills"`
	KafkaSplitsTopic    string   `env:"KAFKA_SPLITS_TOPIC" envDefault:"splits"`
	KafkaPositionsTopic string   `env:"KAFKA_POSITIONS_TOPIC"`
	KafkaGroupID        string   `env:"KAFKA_GROUP_ID" envDefault:"trades-allocator"`

	ReportInterval time.Duration `env:"REPORT_INTERVAL" envDefault:"10s"`

	Simulate         bool          `env:"SIMULATE" envDefault:"false"`
	SimFillProducers int           `env:"SIM_FILL_PRODUCERS" envDefault:"3"`
	SimFillInterval  time.Duration `env:"SIM_FILL_INTERVAL" envDefault:"10s"`
	SimFillJitter    time.Duration `env:"SIM_FILL_JITTER" envDefault:"1s"`
	SimSplitInterval time.Duration `env:"SIM_SPLIT_INTERVAL" envDefault:"30s"`
	SimAccounts      int           `env:"SIM_ACCOUNTS" envDefault:"3"`
}

func Load() (Config, error) {
	var cfg Config
	return cfg, env.Parse(&cfg)
}

// ConsumerGroup returns the consumer group for one input stream, so the fill
// and split readers rebalance independently. An empty KafkaGroupID disables
// group consumption.
func (c Config) ConsumerGroup(stream string) string {
	if c.KafkaGroupID == "" {
		return ""
	}
	return c.KafkaGroupID + "." + stream
}

// Producer configures cmd/producer.
type Producer struct {
	Brokers       []string      `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"kafka:9092"`
	FillsTopic    string        `env:"KAFKA_FILLS_TOPIC" envDefault:"fills"`
	SplitsTopic   string        `env:"KAFKA_SPLITS_TOPIC" envDefault:"splits"`
	FillsPerSec   int           `env:"FILLS_PER_SEC" envDefault:"1"`
	SplitInterval time.Duration `env:"SPLIT_INTERVAL" envDefault:"30s"`
	Accounts      int           `env:"SIM_ACCOUNTS" envDefault:"3"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
	StayAlive     bool          `env:"PRODUCER_STAY_ALIVE" envDefault:"false"`
	TTL           time.Duration `env:"PRODUCER_TTL" envDefault:"2m"`
	EnsureTopic   bool          `env:"PRODUCER_ENSURE_TOPIC" envDefault:"true"`
}

func LoadProducer() (Producer, error) {
	var cfg Producer
	if err := env.Parse(&cfg); err != nil {
		return cfg, err
	}
	if cfg.FillsPerSec <= 0 || cfg.FillsPerSec > 50 {
		cfg.FillsPerSec = 1
	}
	return cfg, nil
}
