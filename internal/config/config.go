package config

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort string
	Env      string
	LogLevel string

	DBFile string

	JWTSecret string

	TURNPort  int
	TURNRealm string

	// CORSOrigins allows the verification portal frontend(s).
	CORSOrigins []string

	// PublicURL is the externally visible base URL used in meeting links.
	PublicURL string

	// SessionTTL ends sessions that idle in notified/ongoing for too long.
	SessionTTL time.Duration

	VAPIDKeys *VAPIDKeys
}

type VAPIDKeys struct {
	PublicKey  string
	PrivateKey string
	Subject    string
}

// Load reads configuration from the environment (.env is optional).
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPPort:    getEnv("HTTP_PORT", "9090"),
		Env:         getEnv("ENVIRONMENT", "dev"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DBFile:      getEnv("DATABASE_FILE", "vericall.db"),
		TURNPort:    getEnvInt("TURN_PORT", 3478),
		TURNRealm:   getEnv("TURN_REALM", "vericall"),
		PublicURL:   getEnv("PUBLIC_URL", "http://localhost:9090"),
		SessionTTL:  getEnvDuration("SESSION_TTL", 30*time.Minute),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:5173")),
	}

	cfg.JWTSecret = loadOrGenerateJWTSecret()
	cfg.VAPIDKeys = loadOrGenerateVAPIDKeys()

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func generateRandomSecret() string {
	bytes := make([]byte, 32)
	rand.Read(bytes)
	return base64.URLEncoding.EncodeToString(bytes)
}

// loadOrGenerateJWTSecret resolves the JWT secret: env first, then the keys
// directory, otherwise a fresh secret is generated and persisted so agent
// tokens survive restarts.
func loadOrGenerateJWTSecret() string {
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		return secret
	}

	keysDir := keysDirectory()
	secretFile := filepath.Join(keysDir, "jwt-secret.key")

	if secretData, err := os.ReadFile(secretFile); err == nil {
		if secret := strings.TrimSpace(string(secretData)); secret != "" {
			return secret
		}
	}

	secret := generateRandomSecret()
	if err := os.MkdirAll(keysDir, 0700); err == nil {
		if err := os.WriteFile(secretFile, []byte(secret), 0600); err != nil {
			fmt.Printf("Warning: failed to save JWT secret: %v\n", err)
		}
	}
	return secret
}

// loadOrGenerateVAPIDKeys resolves web-push VAPID keys: env first, then the
// keys directory, otherwise a fresh P-256 pair is generated. The private key
// is stored as the raw 32 bytes the webpush library expects, base64url
// encoded without padding.
func loadOrGenerateVAPIDKeys() *VAPIDKeys {
	subject := getEnv("VAPID_SUBJECT", "mailto:admin@vericall.app")

	publicKey := os.Getenv("VAPID_PUBLIC_KEY")
	privateKey := os.Getenv("VAPID_PRIVATE_KEY")
	if publicKey != "" && privateKey != "" {
		return &VAPIDKeys{PublicKey: publicKey, PrivateKey: privateKey, Subject: subject}
	}

	keysDir := keysDirectory()
	publicKeyFile := filepath.Join(keysDir, "vapid-public.key")
	privateKeyFile := filepath.Join(keysDir, "vapid-private.key")

	if publicData, err := os.ReadFile(publicKeyFile); err == nil {
		if privateData, err := os.ReadFile(privateKeyFile); err == nil {
			priv := strings.TrimSpace(string(privateData))
			if decoded, err := base64.RawURLEncoding.DecodeString(priv); err == nil && len(decoded) == 32 {
				return &VAPIDKeys{
					PublicKey:  strings.TrimSpace(string(publicData)),
					PrivateKey: priv,
					Subject:    subject,
				}
			}
			// Unexpected key format, regenerate below.
			os.Remove(publicKeyFile)
			os.Remove(privateKeyFile)
		}
	}

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic("failed to generate VAPID keys: " + err.Error())
	}

	// Browsers want the uncompressed 65-byte public point.
	publicKeyBytes := make([]byte, 65)
	publicKeyBytes[0] = 0x04
	priv.PublicKey.X.FillBytes(publicKeyBytes[1:33])
	priv.PublicKey.Y.FillBytes(publicKeyBytes[33:65])
	encodedPublic := base64.RawURLEncoding.EncodeToString(publicKeyBytes)

	privateKeyBytes := make([]byte, 32)
	priv.D.FillBytes(privateKeyBytes)
	encodedPrivate := base64.RawURLEncoding.EncodeToString(privateKeyBytes)

	if err := os.MkdirAll(keysDir, 0700); err == nil {
		_ = os.WriteFile(publicKeyFile, []byte(encodedPublic), 0600)
		_ = os.WriteFile(privateKeyFile, []byte(encodedPrivate), 0600)
	}

	return &VAPIDKeys{PublicKey: encodedPublic, PrivateKey: encodedPrivate, Subject: subject}
}

func keysDirectory() string {
	execPath, err := os.Executable()
	if err != nil {
		return "keys"
	}
	return filepath.Join(filepath.Dir(execPath), "keys")
}
