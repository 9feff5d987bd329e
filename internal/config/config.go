package config

import "os"

// Config holds server-level configuration read from the environment
type Config struct {
	MongoURI      string
	MongoDatabase string
	RedisAddr     string
	AMQPURL       string
	AMQPExchange  string
	Port          string
}

// Load reads server configuration from environment variables
func Load() *Config {
	return &Config{
		MongoURI:      getEnvOrDefault("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnvOrDefault("MONGO_DATABASE", "chatsurvey"),
		RedisAddr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		AMQPURL:       os.Getenv("AMQP_URI"),
		AMQPExchange:  getEnvOrDefault("AMQP_EXCHANGE", "chatsurvey.events"),
		Port:          getEnvOrDefault("PORT", "8080"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
