package main

import (
	"os"
	"strconv"
	"time"

	"github.com/mrcode/glucose-calculator/internal/history"
	"github.com/mrcode/glucose-calculator/internal/models"
)

// Config is the bridge configuration, read from the environment
type Config struct {
	Settings *models.Settings

	HTTPAddr  string
	LogLevel  string
	LogFormat string

	// Redis mirror of the latest reading; empty address disables it
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	RedisTTL      time.Duration

	// InfluxDB history; empty URL disables it
	Influx history.Config

	// Topic for recommendation events; empty disables publishing
	PublishTopic string
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func envFloat(k string, d float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return d
}

func envBool(k string, d bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return d
}

func loadConfig() (Config, error) {
	s := models.DefaultSettings()

	s.FeedSource = envStr("FEED_SOURCE", s.FeedSource)
	s.NightscoutURL = envStr("NIGHTSCOUT_URL", s.NightscoutURL)
	s.APISecret = envStr("NIGHTSCOUT_API_SECRET", s.APISecret)
	s.APIToken = envStr("NIGHTSCOUT_TOKEN", s.APIToken)
	s.UseToken = s.APIToken != ""
	s.MQTTBroker = envStr("MQTT_BROKER", s.MQTTBroker)
	s.MQTTUsername = envStr("MQTT_USER", s.MQTTUsername)
	s.MQTTPassword = envStr("MQTT_PASS", s.MQTTPassword)
	s.MQTTTopic = envStr("MQTT_TOPIC", s.MQTTTopic)

	s.TargetGlucose = envFloat("TARGET_GLUCOSE", s.TargetGlucose)
	s.BodyWeight = envFloat("BODY_WEIGHT", s.BodyWeight)
	s.AutoRecommend = envBool("AUTO_RECOMMEND", s.AutoRecommend)
	s.Unit = envStr("GLUCOSE_UNIT", s.Unit)
	s.RefreshInterval = envInt("REFRESH_INTERVAL", s.RefreshInterval)
	s.StaleMinutes = envInt("STALE_MINUTES", s.StaleMinutes)
	s.TargetLow = envInt("TARGET_LOW", s.TargetLow)
	s.UrgentLow = envInt("URGENT_LOW", s.UrgentLow)

	// no desktop to notify
	s.EnableLowAlert = false
	s.EnableUrgentLowAlert = false
	s.EnableRecommendAlerts = false
	s.EnableSoundAlerts = false

	cfg := Config{
		Settings:  s,
		HTTPAddr:  envStr("HTTP_ADDR", ":8080"),
		LogLevel:  envStr("LOG_LEVEL", "info"),
		LogFormat: envStr("LOG_FORMAT", "json"),

		RedisAddr:     envStr("REDIS_ADDR", ""),
		RedisPassword: envStr("REDIS_PASSWORD", ""),
		RedisDB:       envInt("REDIS_DB", 0),
		RedisPrefix:   envStr("REDIS_PREFIX", "glucose"),
		RedisTTL:      time.Duration(envInt("REDIS_TTL_MINUTES", 60)) * time.Minute,

		Influx: history.Config{
			URL:    envStr("INFLUX_URL", ""),
			Token:  envStr("INFLUX_TOKEN", ""),
			Org:    envStr("INFLUX_ORG", "glucose"),
			Bucket: envStr("INFLUX_BUCKET", "recommendations"),
		},

		PublishTopic: envStr("RECOMMENDATION_TOPIC", ""),
	}
	return cfg, s.Validate()
}
