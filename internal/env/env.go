package env

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

const (
	AWSRegion        = "AWS_REGION"
	AWSID            = "AWS_ID"
	AWSSecret        = "AWS_SECRET"
	AWSToken         = "AWS_TOKEN"
	DynamoDBEndpoint = "DYNAMODB_ENDPOINT"
	CustomerSecret   = "CUSTOMER_SECRET"
	AdminSecret      = "ADMIN_SECRET"
	ChatTokenSecret  = "CHAT_TOKEN_SECRET"
	AuthRedisURL     = "AUTH_REDIS_URL"
	AuthRedisPass    = "AUTH_REDIS_PASS"
	WebURL           = "WEB_URL"
	StorefrontAddr   = "STOREFRONT_ADDR"
	AdminAddr        = "ADMIN_ADDR"
)

// Load reads an optional .env file and verifies the variables the servers
// cannot start without. Called from main, not package init, so tests run
// without any environment.
func Load() error {
	_ = godotenv.Load()

	required := []string{
		AWSRegion,
		CustomerSecret,
		AdminSecret,
		ChatTokenSecret,
		AuthRedisURL,
		WebURL,
	}
	for _, key := range required {
		if os.Getenv(key) == "" {
			return fmt.Errorf("env: required environment variable not set: %s", key)
		}
	}
	return nil
}

func Get(key string) string {
	return os.Getenv(key)
}

func GetOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}
