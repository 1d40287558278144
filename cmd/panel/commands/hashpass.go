package commands

import (
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/crypto/bcrypt"
)

func HashPass(args []string, logger *slog.Logger) {
	fs := flag.NewFlagSet("hashpass", flag.ExitOnError)
	token := fs.String("token", "", "API token to hash (generated when empty)")
	fs.Parse(args)

	t := *token
	if t == "" {
		var buf [24]byte
		if _, err := rand.Read(buf[:]); err != nil {
			logger.Error("failed to generate random token", "err", err)
			os.Exit(1)
		}
		t = base64.RawURLEncoding.EncodeToString(buf[:])
		fmt.Printf("Token: %s\n", t)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(t), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("failed to hash token", "err", err)
		os.Exit(1)
	}

	fmt.Printf("Hash:  %s\n", hash)
	fmt.Println()
	fmt.Println("Put the hash in api_token_hash in the config file.")
}
