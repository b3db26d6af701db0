package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GenerateSecret generates a cryptographically secure random secret
func GenerateSecret(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// DeploymentSecrets are the locally generated secrets of one environment
type DeploymentSecrets struct {
	JWTSecret     string
	RedisPassword string
}

// GenerateDeploymentSecrets generates a 256-bit JWT secret and a Redis password
func GenerateDeploymentSecrets() (*DeploymentSecrets, error) {
	jwtSecret, err := GenerateSecret(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
	}

	redisPassword, err := GenerateSecret(24)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Redis password: %w", err)
	}

	return &DeploymentSecrets{JWTSecret: jwtSecret, RedisPassword: redisPassword}, nil
}
