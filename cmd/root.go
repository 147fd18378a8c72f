package cmd

import (
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:     "media-grab",
	Short:   "个人媒体下载管理器",
	Long:    "提交链接后交给 aria2c 或 yt-dlp 下载，跟踪进度并保存下载历史",
	Version: "1.0.0",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

// initConfig 读取 .env、配置文件和环境变量
func initConfig() {
	// .env 不存在时忽略
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Println(".env 读取失败:", err)
	}

	viper.AddConfigPath("./data") // 相对于当前工作目录的 data 文件夹
	viper.AddConfigPath(".")      // 当前目录
	viper.SetConfigType("yaml")
	viper.SetConfigName("config")

	// MEDIA_GRAB_DOWNLOAD_DIR -> download.dir
	viper.SetEnvPrefix("media_grab")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}
