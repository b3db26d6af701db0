package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/travelcraft/booking-backend/internal/middleware"
	"github.com/travelcraft/booking-backend/internal/utils"
	"github.com/travelcraft/booking-backend/pkg/jwt"
)

func main() {
	adminEmail := flag.String("admin-email", "", "also mint a development admin access token for this email")
	issuer := flag.String("issuer", "travelcraft-identity", "issuer embedded in the development token")
	flag.Parse()

	fmt.Println("===========================================")
	fmt.Println("Secret Generator for TravelCraft")
	fmt.Println("===========================================")
	fmt.Println()

	secrets, err := utils.GenerateDeploymentSecrets()
	if err != nil {
		log.Fatalf("Failed to generate secrets: %v", err)
	}

	fmt.Println("✅ Secrets generated successfully!")
	fmt.Println()
	fmt.Println("Add these to your .env file or deployment secrets:")
	fmt.Println()
	fmt.Printf("JWT_SECRET=%s\n", secrets.JWTSecret)
	fmt.Printf("REDIS_PASSWORD=%s\n", secrets.RedisPassword)
	fmt.Println()

	if *adminEmail != "" {
		service := jwt.NewService(secrets.JWTSecret, *issuer, 24*time.Hour)
		token, err := service.GenerateAccessToken(uuid.New(), *adminEmail, []string{middleware.RoleAdmin})
		if err != nil {
			log.Fatalf("Failed to mint admin token: %v", err)
		}
		fmt.Println("Development admin token (valid 24h, signed with the JWT_SECRET above):")
		fmt.Println(token)
		fmt.Println()
	}

	fmt.Println("⚠️  IMPORTANT: Keep these secrets safe and never commit them to version control!")
	fmt.Println("===========================================")
}
