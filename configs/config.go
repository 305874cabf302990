package config

import (
	"os"
	"strconv"
)

// Config holds the application configuration
type Config struct {
	Port              string
	Environment       string
	APIKey            string
	LLMProvider       string
	LLMModel          string
	LLMBaseURL        string
	GeminiAPIKey      string
	OpenAIAPIKey      string
	AnthropicAPIKey   string
	MLServiceURL      string
	OpenWeatherAPIKey string
	WeatherLatitude   float64
	WeatherLongitude  float64
	QdrantURL         string
	QdrantAPIKey      string
	DBPath            string
	AdminUsername     string
	AdminPassword     string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Port:              getEnv("PORT", "8080"),
		Environment:       getEnv("ENVIRONMENT", "development"),
		APIKey:            getEnv("API_KEY", ""),
		LLMProvider:       getEnv("LLM_PROVIDER", ""),
		LLMModel:          getEnv("LLM_MODEL", ""),
		LLMBaseURL:        getEnv("LLM_BASE_URL", ""),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey:   getEnv("ANTHROPIC_API_KEY", ""),
		MLServiceURL:      getEnv("ML_SERVICE_URL", ""),
		OpenWeatherAPIKey: getEnv("OPENWEATHER_API_KEY", ""),
		WeatherLatitude:   getEnvFloat("WEATHER_LAT", 40.4168),
		WeatherLongitude:  getEnvFloat("WEATHER_LON", -3.7038),
		QdrantURL:         getEnv("QDRANT_URL", ""),
		QdrantAPIKey:      getEnv("QDRANT_API_KEY", ""),
		DBPath:            getEnv("DB_PATH", "negentropy.db"),
		AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:     getEnv("ADMIN_PASSWORD", ""),
	}
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvFloat gets a float environment variable with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
