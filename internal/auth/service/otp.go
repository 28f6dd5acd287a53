package service

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strconv"
)

const (
	otpMin = 100000
	otpMax = 999999
)

// CryptoOTPGenerator draws six-digit codes uniformly from [100000, 999999].
type CryptoOTPGenerator struct {
	random io.Reader
}

func NewOTPGenerator() *CryptoOTPGenerator {
	return &CryptoOTPGenerator{random: rand.Reader}
}

func (g *CryptoOTPGenerator) Generate() (string, error) {
	n, err := rand.Int(g.random, big.NewInt(otpMax-otpMin+1))
	if err != nil {
		return "", fmt.Errorf("failed to read random source: %w", err)
	}
	return strconv.FormatInt(n.Int64()+otpMin, 10), nil
}
