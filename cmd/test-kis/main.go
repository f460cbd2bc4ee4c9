// Package main - KIS 연결 확인
// 토큰 발급과 현재가 조회만 수행하며 주문은 넣지 않는다.
//
// 사용법:
//
//	go run ./cmd/test-kis 005930 000660
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wonny/aegis-strategy/internal/infra/kis"
	"github.com/wonny/aegis-strategy/internal/pkg/config"
	"github.com/wonny/aegis-strategy/internal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := logger.Init(logger.Config{Level: "info", Format: "pretty", ServiceName: "test-kis"}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	kisCfg := kis.ConfigFrom(cfg.KIS)
	if err := kisCfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("KIS not configured")
	}
	client := kis.NewClient(kisCfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Println("========================================")
	fmt.Printf("Test 1: Get Access Token (paper=%v)\n", kisCfg.IsPaper)
	fmt.Println("========================================")
	token, err := client.Auth.GetAccessToken(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get access token")
	}
	fmt.Printf("✅ Access token obtained: %s...\n\n", token[:min(20, len(token))])

	codes := os.Args[1:]
	if len(codes) == 0 {
		codes = []string{"005930"} // 삼성전자
	}

	fmt.Println("========================================")
	fmt.Println("Test 2: Get Current Price")
	fmt.Println("========================================")
	for _, code := range codes {
		q, err := client.REST.GetQuote(ctx, code)
		if err != nil {
			fmt.Printf("❌ %s: %v\n", code, err)
			continue
		}
		fmt.Printf("%s  %d원  %+.2f%%  vol=%d\n", q.Code, q.Price, q.ChangeRate, q.Volume)
	}

	fmt.Println("\n✅ KIS 연결 확인 완료")
}
