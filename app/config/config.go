package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Download DownloadConfig `mapstructure:"download"`
	Recovery RecoveryConfig `mapstructure:"recovery"`
	Watch    WatchConfig    `mapstructure:"watch"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Power    PowerConfig    `mapstructure:"power"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`      // json 或 text
	Output     string `mapstructure:"output"`      // stdout 或 file
	Dir        string `mapstructure:"dir"`         // 日志目录
	MaxSize    int    `mapstructure:"max_size"`    // 兆字节
	MaxBackups int    `mapstructure:"max_backups"` // 备份数量
	MaxAge     int    `mapstructure:"max_age"`     // 天数
	Compress   bool   `mapstructure:"compress"`    // 是否压缩旧文件
}

type JWTConfig struct {
	Secret     string `mapstructure:"secret"`      // JWT 密钥
	ExpireTime int    `mapstructure:"expire_time"` // 过期时间（小时）
	Issuer     string `mapstructure:"issuer"`      // 签发者
}

// DownloadConfig 下载相关配置
type DownloadConfig struct {
	Dir              string        `mapstructure:"dir"`               // 下载目录
	DBPath           string        `mapstructure:"db_path"`           // 任务数据库路径
	YtDlpPath        string        `mapstructure:"ytdlp_path"`        // yt-dlp 可执行文件
	Aria2cPath       string        `mapstructure:"aria2c_path"`       // aria2c 可执行文件
	ProgressStep     int           `mapstructure:"progress_step"`     // 进度落库步长（百分比）
	ProgressInterval time.Duration `mapstructure:"progress_interval"` // 界面进度事件最小间隔
	StopGrace        time.Duration `mapstructure:"stop_grace"`        // 取消后等待外部进程退出的时间
	WriteThumbnail   bool          `mapstructure:"write_thumbnail"`   // 是否生成缩略图
	ThumbnailWidth   int           `mapstructure:"thumbnail_width"`   // 缩略图宽度
}

// RecoveryConfig 僵尸任务恢复配置
type RecoveryConfig struct {
	Schedule   string `mapstructure:"schedule"`    // cron 表达式，为空则不定时检查
	AutoResume bool   `mapstructure:"auto_resume"` // 启动时是否自动恢复中断的下载
}

// WatchConfig 种子监控目录配置
type WatchConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// NotifyConfig 通知配置
type NotifyConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"` // 为空则只记录日志
	Timeout    time.Duration `mapstructure:"timeout"`
}

// PowerConfig 防休眠配置
type PowerConfig struct {
	Inhibit       bool   `mapstructure:"inhibit"`        // 下载期间阻止系统休眠
	InhibitorPath string `mapstructure:"inhibitor_path"` // systemd-inhibit 路径
}

func Load() *Config {
	setDefaults()

	// 读取配置
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("未找到配置文件，使用默认配置")
		} else {
			log.Fatalf("读取配置文件出错: %v", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("无法解码配置: %v", err)
	}

	// 验证配置
	if err := validateConfig(&config); err != nil {
		log.Fatalf("配置验证失败: %v", err)
	}

	return &config
}

// setDefaults 设置默认配置
func setDefaults() {
	viper.SetDefault("server.port", "5000")

	// 日志默认配置
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.dir", "data/logs")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)

	// JWT默认配置
	viper.SetDefault("jwt.secret", "your-secret-key-change-in-production")
	viper.SetDefault("jwt.expire_time", 24) // 24小时
	viper.SetDefault("jwt.issuer", "media-grab")

	// 下载默认配置
	viper.SetDefault("download.dir", "data/downloads")
	viper.SetDefault("download.db_path", "data/media-grab.db")
	viper.SetDefault("download.ytdlp_path", "yt-dlp")
	viper.SetDefault("download.aria2c_path", "aria2c")
	viper.SetDefault("download.progress_step", 5)
	viper.SetDefault("download.progress_interval", "500ms")
	viper.SetDefault("download.stop_grace", "5s")
	viper.SetDefault("download.write_thumbnail", true)
	viper.SetDefault("download.thumbnail_width", 320)

	viper.SetDefault("recovery.schedule", "@every 1m")
	viper.SetDefault("recovery.auto_resume", true)

	viper.SetDefault("watch.enabled", false)
	viper.SetDefault("watch.dir", "data/watch")

	viper.SetDefault("notify.timeout", "10s")

	viper.SetDefault("power.inhibit", false)
	viper.SetDefault("power.inhibitor_path", "systemd-inhibit")
}

// validateConfig 验证配置的有效性
func validateConfig(config *Config) error {
	if config.Server.Port == "" {
		return fmt.Errorf("服务器端口未设置")
	}
	if config.JWT.Secret == "" {
		return fmt.Errorf("JWT密钥未设置")
	}
	if config.Download.Dir == "" {
		return fmt.Errorf("下载目录未设置")
	}
	if config.Download.DBPath == "" {
		return fmt.Errorf("数据库路径未设置")
	}
	if config.Download.ProgressStep <= 0 || config.Download.ProgressStep > 100 {
		return fmt.Errorf("进度步长必须在 1-100 之间: %d", config.Download.ProgressStep)
	}
	if config.Download.StopGrace <= 0 {
		return fmt.Errorf("download.stop_grace 必须大于 0: %s", config.Download.StopGrace)
	}
	if config.Watch.Enabled && config.Watch.Dir == "" {
		return fmt.Errorf("已启用监控目录但未设置 watch.dir")
	}
	return nil
}
