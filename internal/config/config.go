package config

import (
	"github.com/greenchain/ccrs/internal/logger"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Ipfs      IpfsConfig      `mapstructure:"ipfs"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Indexer   IndexerConfig   `mapstructure:"indexer"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ChainConfig 链配置
type ChainConfig struct {
	ChainType     string                    `mapstructure:"chain_type"`    // 链类型 (ethereum, polygon, etc.)
	ChainId       int64                     `mapstructure:"chain_id"`      // 链ID
	RpcUrl        string                    `mapstructure:"rpc_url"`       // RPC节点URL
	PrivateKey    string                    `mapstructure:"private_key"`   // 私钥
	Confirmations int64                     `mapstructure:"confirmations"` // 确认区块数
	Contracts     map[string]ContractConfig `mapstructure:"contracts"`     // 合约配置
}

// ContractConfig 单个合约配置
type ContractConfig struct {
	Address  string `mapstructure:"address"`   // 合约地址
	ABIPath  string `mapstructure:"abi_path"`  // ABI文件路径，为空时使用内置ABI
	Enabled  bool   `mapstructure:"enabled"`   // 是否启用此合约
	BlockNum int64  `mapstructure:"block_num"` // 合约部署区块号
}

// AuthConfig 认证配置
type AuthConfig struct {
	Secret       string `mapstructure:"secret"`         // JWT签名密钥
	TokenTTL     int    `mapstructure:"token_ttl"`      // Token有效期（分钟）
	BcryptRounds int    `mapstructure:"bcrypt_rounds"`  // bcrypt代价因子
}

// RedisConfig 状态缓存配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TTL      int    `mapstructure:"ttl"` // 秒
}

// IpfsConfig 钉存服务配置
type IpfsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
	Timeout  int    `mapstructure:"timeout"` // 秒
}

// ReconcileConfig 对账配置
type ReconcileConfig struct {
	Interval     int `mapstructure:"interval"`      // 对账扫描间隔（秒）
	GracePeriod  int `mapstructure:"grace_period"`  // 在途操作宽限期（秒），超过后才会被扫描处理
	ConfirmWait  int `mapstructure:"confirm_wait"`  // 发起调用后等待确认的上限（秒）
	PollInterval int `mapstructure:"poll_interval"` // 等待确认时的轮询间隔（秒）
	DispatchPool int `mapstructure:"dispatch_pool"` // 异步上链任务的协程池大小
}

// IndexerConfig 事件索引配置
type IndexerConfig struct {
	Enabled   bool  `mapstructure:"enabled"`
	Interval  int   `mapstructure:"interval"`   // 回放间隔（秒）
	BatchSize int64 `mapstructure:"batch_size"` // 单次拉取的区块数
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error, fatal
	Output string `mapstructure:"output"` // 输出目标: stdout, stderr, file
	File   string `mapstructure:"file"`   // 日志文件路径（当output为file时使用）
}

// GetLevel 实现 logger.LogConfig 接口
func (l LogConfig) GetLevel() string {
	return l.Level
}

// GetOutput 实现 logger.LogConfig 接口
func (l LogConfig) GetOutput() string {
	return l.Output
}

// GetFile 实现 logger.LogConfig 接口
func (l LogConfig) GetFile() string {
	return l.File
}

func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/ccrs")

	// 设置默认值
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.dbname", "carbon_registry")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("chain.chain_type", "ethereum")
	viper.SetDefault("chain.confirmations", 12)
	viper.SetDefault("auth.token_ttl", 720)
	viper.SetDefault("auth.bcrypt_rounds", 10)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.ttl", 30)
	viper.SetDefault("ipfs.timeout", 30)
	viper.SetDefault("reconcile.interval", 60)
	viper.SetDefault("reconcile.grace_period", 120)
	viper.SetDefault("reconcile.confirm_wait", 30)
	viper.SetDefault("reconcile.poll_interval", 3)
	viper.SetDefault("reconcile.dispatch_pool", 8)
	viper.SetDefault("indexer.enabled", true)
	viper.SetDefault("indexer.interval", 60)
	viper.SetDefault("indexer.batch_size", 500)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.file", "logs/app.log")

	// 自动读取环境变量
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		logger.Warn("Warning: Could not read config file: %v", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		logger.Fatal("Unable to decode config into struct: %v", err)
	}

	return &config
}
