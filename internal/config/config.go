package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/z-tavern/chatbot/internal/service/visibility"
	"github.com/zhouzirui/z-tavern/chatbot/internal/store"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Chatbot  ChatbotConfig
	Storage  store.Options
	LogLevel zerolog.Level
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	chatbot, err := loadChatbotConfig()
	if err != nil {
		return nil, err
	}

	level, err := loadLogLevel()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		Chatbot:  chatbot,
		Storage:  loadStorageOptions(),
		LogLevel: level,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr        string
	CORSOrigins []string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	origins := parseListEnv("CHATBOT_CORS_ORIGINS")
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, CORSOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, CORSOrigins: origins}, nil
}

// ChatbotConfig 描述 webhook 聊天机器人配置。
type ChatbotConfig struct {
	WebhookURL      string
	Timeout         time.Duration
	Greeting        string
	Fallback        string
	HiddenPrefixes  []string
	// ConversationTTL 会话空闲超过该时长后被回收
	ConversationTTL time.Duration
}

// Enabled 表示是否配置了 webhook 地址；未配置时聊天功能整体关闭。
func (c ChatbotConfig) Enabled() bool {
	return c.WebhookURL != ""
}

// Visibility 返回页面可见性策略。
func (c ChatbotConfig) Visibility() visibility.Policy {
	return visibility.Policy{HiddenPrefixes: c.HiddenPrefixes}
}

func loadChatbotConfig() (ChatbotConfig, error) {
	timeout, err := parseOptionalIntEnv("CHATBOT_TIMEOUT")
	if err != nil {
		return ChatbotConfig{}, err
	}
	var timeoutDuration time.Duration
	if timeout != nil {
		if *timeout < 0 {
			return ChatbotConfig{}, fmt.Errorf("invalid CHATBOT_TIMEOUT value %d: must not be negative", *timeout)
		}
		timeoutDuration = time.Duration(*timeout) * time.Second
	}

	ttl := 30 * time.Minute
	if ttlMinutes, err := parseOptionalIntEnv("CHATBOT_CONVERSATION_TTL"); err != nil {
		return ChatbotConfig{}, err
	} else if ttlMinutes != nil {
		if *ttlMinutes < 1 {
			return ChatbotConfig{}, fmt.Errorf("invalid CHATBOT_CONVERSATION_TTL value %d: must be at least 1 minute", *ttlMinutes)
		}
		ttl = time.Duration(*ttlMinutes) * time.Minute
	}

	hidden := parseListEnv("CHATBOT_HIDDEN_PREFIXES")
	if len(hidden) == 0 {
		hidden = visibility.DefaultHiddenPrefixes
	}

	return ChatbotConfig{
		WebhookURL:      strings.TrimSpace(os.Getenv("CHATBOT_WEBHOOK_URL")),
		Timeout:         timeoutDuration,
		Greeting:        strings.TrimSpace(os.Getenv("CHATBOT_GREETING")),
		Fallback:        strings.TrimSpace(os.Getenv("CHATBOT_FALLBACK")),
		HiddenPrefixes:  hidden,
		ConversationTTL: ttl,
	}, nil
}

func loadStorageOptions() store.Options {
	return store.Options{
		Backend:   getEnvOrDefault("CHATBOT_STORAGE", store.BackendFile),
		Path:      strings.TrimSpace(os.Getenv("CHATBOT_STORAGE_PATH")),
		RedisAddr: getEnvOrDefault("CHATBOT_REDIS_ADDR", "localhost:6379"),
	}
}

func loadLogLevel() (zerolog.Level, error) {
	raw := getEnvOrDefault("LOG_LEVEL", "info")
	level, err := zerolog.ParseLevel(strings.ToLower(raw))
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("invalid LOG_LEVEL value %q: %w", raw, err)
	}
	return level, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseListEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
