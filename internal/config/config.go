package config

import (
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	pkgconfig "github.com/ShedrackAmodu/school-comm-service/pkg/config"
	"github.com/ShedrackAmodu/school-comm-service/pkg/pubsub"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Auth      AuthConfig
	Storage   StorageConfig
	Cassandra CassandraConfig
	Cache     CacheConfig
	Bridge    pubsub.Config
	Directory DirectoryConfig
	Room      RoomConfig
	Notify    NotifyConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
	// InstanceID distinguishes this process on the bridge bus. A random
	// ID is generated when left empty.
	InstanceID string `mapstructure:"instance_id"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendTimeout    time.Duration `mapstructure:"send_timeout"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

type AuthConfig struct {
	PublicKeyPath string `mapstructure:"public_key_path"`
}

// StorageConfig selects the persistence backends. Driver covers rooms,
// notifications and preferences; MessageStore optionally moves message
// history to Cassandra while the rest stays on the relational store.
type StorageConfig struct {
	Driver       string // memory, postgres, mysql, sqlite
	MessageStore string `mapstructure:"message_store"` // "", cassandra
	Database     DatabaseConfig
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string `mapstructure:"db_name"`
	SSLMode         string `mapstructure:"ssl_mode"`
	FilePath        string `mapstructure:"file_path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

type CassandraConfig struct {
	Hosts          []string      `mapstructure:"hosts"`
	Keyspace       string        `mapstructure:"keyspace"`
	Consistency    string        `mapstructure:"consistency"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	Timeout        time.Duration `mapstructure:"timeout"`
	NumConns       int           `mapstructure:"num_conns"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
}

type CacheConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration `mapstructure:"ttl"`
	Prefix   string
}

type DirectoryConfig struct {
	Driver string // static, database
}

type RoomConfig struct {
	HistoryLimit   int           `mapstructure:"history_limit"`
	TypingTTL      time.Duration `mapstructure:"typing_ttl"`
	TypingInterval time.Duration `mapstructure:"typing_sweep_interval"`
}

type NotifyConfig struct {
	ReplayLimit       int           `mapstructure:"replay_limit"`
	SchedulerEnabled  bool          `mapstructure:"scheduler_enabled"`
	SchedulerInterval time.Duration `mapstructure:"scheduler_interval"`
	SchedulerBatch    int           `mapstructure:"scheduler_batch"`
}

type LogConfig struct {
	Level  string
	Pretty bool
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.instance_id", "")
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("websocket.send_timeout", "5s")
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("auth.public_key_path", "./keys/jwt_public.pem")
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.message_store", "")
	v.SetDefault("storage.database.host", "localhost")
	v.SetDefault("storage.database.port", 5432)
	v.SetDefault("storage.database.user", "comm")
	v.SetDefault("storage.database.password", "")
	v.SetDefault("storage.database.db_name", "school_comm")
	v.SetDefault("storage.database.ssl_mode", "disable")
	v.SetDefault("storage.database.file_path", "./comm.db")
	v.SetDefault("storage.database.max_idle_conns", 10)
	v.SetDefault("storage.database.max_open_conns", 100)
	v.SetDefault("storage.database.conn_max_lifetime", 60)
	v.SetDefault("cassandra.hosts", []string{"localhost:9042"})
	v.SetDefault("cassandra.keyspace", "school_comm")
	v.SetDefault("cassandra.consistency", "LOCAL_QUORUM")
	v.SetDefault("cassandra.connect_timeout", "10s")
	v.SetDefault("cassandra.timeout", "5s")
	v.SetDefault("cassandra.num_conns", 2)
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 1)
	v.SetDefault("cache.ttl", "30s")
	v.SetDefault("cache.prefix", "comm:history")
	v.SetDefault("bridge.driver", "local")
	v.SetDefault("bridge.redis.address", "localhost:6379")
	v.SetDefault("bridge.redis.password", "")
	v.SetDefault("bridge.redis.db", 0)
	v.SetDefault("bridge.kafka.brokers", "localhost:9092")
	v.SetDefault("bridge.kafka.group_id", "")
	v.SetDefault("bridge.kafka.partitions", 4)
	v.SetDefault("directory.driver", "static")
	v.SetDefault("room.history_limit", 50)
	v.SetDefault("room.typing_ttl", "5s")
	v.SetDefault("room.typing_sweep_interval", "1s")
	v.SetDefault("notify.replay_limit", 10)
	v.SetDefault("notify.scheduler_enabled", true)
	v.SetDefault("notify.scheduler_interval", "15s")
	v.SetDefault("notify.scheduler_batch", 200)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.instance_id", "INSTANCE_ID")
	v.BindEnv("auth.public_key_path", "JWT_PUBLIC_KEY_PATH")
	v.BindEnv("storage.driver", "STORAGE_DRIVER")
	v.BindEnv("storage.message_store", "MESSAGE_STORE")
	v.BindEnv("storage.database.host", "DB_HOST")
	v.BindEnv("storage.database.port", "DB_PORT")
	v.BindEnv("storage.database.user", "DB_USER")
	v.BindEnv("storage.database.password", "DB_PASSWORD")
	v.BindEnv("storage.database.db_name", "DB_NAME")
	v.BindEnv("cassandra.hosts", "CASSANDRA_HOSTS")
	v.BindEnv("cassandra.keyspace", "CASSANDRA_KEYSPACE")
	v.BindEnv("cache.enabled", "CACHE_ENABLED")
	v.BindEnv("cache.address", "CACHE_REDIS_ADDRESS")
	v.BindEnv("cache.password", "CACHE_REDIS_PASSWORD")
	v.BindEnv("bridge.driver", "BRIDGE_DRIVER")
	v.BindEnv("bridge.redis.address", "REDIS_ADDRESS")
	v.BindEnv("bridge.redis.password", "REDIS_PASSWORD")
	v.BindEnv("bridge.kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("directory.driver", "DIRECTORY_DRIVER")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.WebSocket.SendTimeout = parseDuration(v, "websocket.send_timeout", 5*time.Second)
	cfg.Cassandra.ConnectTimeout = parseDuration(v, "cassandra.connect_timeout", 10*time.Second)
	cfg.Cassandra.Timeout = parseDuration(v, "cassandra.timeout", 5*time.Second)
	cfg.Cache.TTL = parseDuration(v, "cache.ttl", 30*time.Second)
	cfg.Room.TypingTTL = parseDuration(v, "room.typing_ttl", 5*time.Second)
	cfg.Room.TypingInterval = parseDuration(v, "room.typing_sweep_interval", time.Second)
	cfg.Notify.SchedulerInterval = parseDuration(v, "notify.scheduler_interval", 15*time.Second)

	// Env vars deliver host lists as comma-separated strings.
	if hosts := os.Getenv("CASSANDRA_HOSTS"); hosts != "" {
		cfg.Cassandra.Hosts = strings.Split(strings.TrimSpace(hosts), ",")
	}

	if cfg.Server.InstanceID == "" {
		cfg.Server.InstanceID = uuid.New().String()
	}
	if cfg.Bridge.Kafka.GroupID == "" {
		cfg.Bridge.Kafka.GroupID = "comm-bridge-" + cfg.Server.InstanceID
	}

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
