package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
)

type Config struct {
	Port           string
	Environment    string
	AllowedOrigins []string
	JWTSecret      string

	Signaling SignalingConfig
	Redis     RedisConfig
}

type SignalingConfig struct {
	Enabled        bool
	DefaultRooms   []string
	RoomMaxPeers   int
	PeerTimeout    time.Duration
	SignalTTL      time.Duration
	SweepInterval  time.Duration
	PollTimeout    time.Duration
	MaxPollTimeout time.Duration

	STUNServers []string
	TURNServers []string
	TURNUser    string
	TURNPass    string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173"),
		JWTSecret:      getEnv("JWT_SECRET", "change-me-in-production"),
		Signaling: SignalingConfig{
			Enabled:        getEnvBool("SIGNALING_ENABLED", true),
			DefaultRooms:   getEnvList("DEFAULT_ROOMS", "global"),
			RoomMaxPeers:   getEnvInt("ROOM_MAX_PEERS", 10),
			PeerTimeout:    time.Duration(getEnvInt("PEER_TIMEOUT_SECONDS", 90)) * time.Second,
			SignalTTL:      time.Duration(getEnvInt("SIGNAL_TTL_SECONDS", 60)) * time.Second,
			SweepInterval:  time.Duration(getEnvInt("SWEEP_INTERVAL_SECONDS", 30)) * time.Second,
			PollTimeout:    time.Duration(getEnvInt("POLL_TIMEOUT_MS", 25000)) * time.Millisecond,
			MaxPollTimeout: time.Duration(getEnvInt("POLL_MAX_TIMEOUT_MS", 60000)) * time.Millisecond,
			STUNServers:    getEnvList("STUN_SERVERS", "stun:stun.l.google.com:19302"),
			TURNServers:    getEnvList("TURN_SERVERS", ""),
			TURNUser:       getEnv("TURN_USERNAME", ""),
			TURNPass:       getEnv("TURN_PASSWORD", ""),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       0,
		},
	}
}

// ICEServers assembles the STUN/TURN list handed to joining peers.
func (c *Config) ICEServers() []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if len(c.Signaling.STUNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: c.Signaling.STUNServers})
	}
	if len(c.Signaling.TURNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs:       c.Signaling.TURNServers,
			Username:   c.Signaling.TURNUser,
			Credential: c.Signaling.TURNPass,
		})
	}
	return servers
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty entries.
func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
