package config

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"strconv"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     int
	RedisPassword string

	// JWT
	JWTSecret      string
	JWTExpireHours int

	// API
	APIPort int

	// RADIUS
	RadiusAuthPort  int
	RadiusAcctPort  int
	RadiusCoAPort   int
	MetricsPort     int
	RadiusStatusURL string

	// Logging
	LogLevel  string
	LogPretty bool

	// Session archive
	ArchiveRetentionDays int
	ArchiveDir           string
	ArchiveFTPHost       string
	ArchiveFTPPort       int
	ArchiveFTPUser       string
	ArchiveFTPPassword   string
	ArchiveFTPPath       string

	// Minutes without an interim update before a live session is
	// considered dead and closed by the janitor
	StaleSessionMinutes int
}

// generateSecureSecret generates a cryptographically secure random secret
func generateSecureSecret(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a hostname-based value if crypto/rand fails
		return hex.EncodeToString([]byte(os.Getenv("HOSTNAME") + string(rune(length))))
	}
	return hex.EncodeToString(bytes)
}

func Load() *Config {
	// JWT Secret - generate random if not provided
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = generateSecureSecret(32) // 64 character hex string
		log.Println("WARNING: JWT_SECRET not set - generated random secret. Sessions will not persist across restarts.")
	}

	// Database password - warn if using default
	dbPassword := getEnv("DB_PASSWORD", "")
	if dbPassword == "" {
		log.Println("WARNING: DB_PASSWORD not set - this is insecure for production!")
		dbPassword = "changeme"
	}

	// Redis password - warn if using default
	redisPassword := getEnv("REDIS_PASSWORD", "")
	if redisPassword == "" {
		log.Println("WARNING: REDIS_PASSWORD not set - Redis is not secured!")
	}

	return &Config{
		// Database
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnvInt("DB_PORT", 5432),
		DBUser:     getEnv("DB_USER", "jazanet"),
		DBPassword: dbPassword,
		DBName:     getEnv("DB_NAME", "jazanet"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		// Redis
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnvInt("REDIS_PORT", 6379),
		RedisPassword: redisPassword,

		// JWT
		JWTSecret:      jwtSecret,
		JWTExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 168), // 7 days default

		// API
		APIPort: getEnvInt("API_PORT", 8080),

		// RADIUS. The CoA port is the default outbound destination used
		// when a NAS row does not carry its own; nothing listens on it.
		RadiusAuthPort:  getEnvInt("RADIUS_PORT", 1812),
		RadiusAcctPort:  getEnvInt("RADIUS_ACCT_PORT", 1813),
		RadiusCoAPort:   getEnvInt("RADIUS_COA_PORT", 3799),
		MetricsPort:     getEnvInt("METRICS_PORT", 0),
		RadiusStatusURL: getEnv("RADIUS_STATUS_URL", ""),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvBool("LOG_PRETTY", false),

		// Session archive
		ArchiveRetentionDays: getEnvInt("ARCHIVE_RETENTION_DAYS", 90),
		ArchiveDir:           getEnv("ARCHIVE_DIR", "/var/lib/jazanet/archive"),
		ArchiveFTPHost:       getEnv("ARCHIVE_FTP_HOST", ""),
		ArchiveFTPPort:       getEnvInt("ARCHIVE_FTP_PORT", 21),
		ArchiveFTPUser:       getEnv("ARCHIVE_FTP_USER", ""),
		ArchiveFTPPassword:   getEnv("ARCHIVE_FTP_PASSWORD", ""),
		ArchiveFTPPath:       getEnv("ARCHIVE_FTP_PATH", "/"),

		StaleSessionMinutes: getEnvInt("STALE_SESSION_MINUTES", 30),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
