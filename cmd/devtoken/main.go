// Command devtoken mints a bearer token for local testing against the API,
// signed with the same JWT_SECRET the server validates with.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/chachabrian/evvalet-backend/internal/config"
	"github.com/chachabrian/evvalet-backend/internal/models"
	"github.com/chachabrian/evvalet-backend/pkg/utils"
)

func main() {
	userID := flag.String("user", "", "user id to put in the token subject")
	role := flag.String("role", string(models.RoleClient), "client, driver or admin")
	flag.Parse()

	if *userID == "" {
		flag.Usage()
		os.Exit(2)
	}
	if !models.Role(*role).Valid() {
		logrus.Fatalf("Unknown role %q", *role)
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}
	token, err := utils.GenerateToken(cfg.JWTSecret, *userID, *role)
	if err != nil {
		logrus.Fatalf("Failed to sign token: %v", err)
	}
	fmt.Println(token)
}
