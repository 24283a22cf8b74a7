package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
)

// secretNames are the environment variables the server reads its shared secrets from
var secretNames = []string{
	"MASTER_ENCRYPTION_SECRET",
	"JWT_SECRET",
	"WEBHOOK_SECRET",
	"SETTLEMENT_SIGNING_SECRET",
}

func main() {
	hexLen := flag.Int("hex-len", 64, "random hex length per secret (must be even)")
	flag.Parse()

	if err := validateInputs(*hexLen); err != nil {
		log.Fatal(err)
	}

	lines, err := buildSecrets(*hexLen)
	if err != nil {
		log.Fatalf("failed to generate secrets: %v", err)
	}

	fmt.Println("Generated secrets (paste into .env)")
	for _, line := range lines {
		fmt.Println(line)
	}
}

func validateInputs(hexLen int) error {
	if hexLen < 32 || hexLen%2 != 0 {
		return fmt.Errorf("invalid hex-len: %d (must be even and at least 32)", hexLen)
	}
	return nil
}

func buildSecrets(hexLen int) ([]string, error) {
	lines := make([]string, 0, len(secretNames))
	for _, name := range secretNames {
		v, err := generateRandomHex(hexLen)
		if err != nil {
			return nil, err
		}
		lines = append(lines, fmt.Sprintf("%s=%s", name, v))
	}
	return lines, nil
}

func generateRandomHex(n int) (string, error) {
	b := make([]byte, n/2)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
