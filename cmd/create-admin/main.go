package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"okitegami/backend/internal/auth"
	"okitegami/backend/internal/config"
	"okitegami/backend/internal/domain"
	"okitegami/backend/internal/storage/postgres"
)

// 在 SQL 存储中直接创建账号。管理员身份由 OKITEGAMI_AUTH_ADMIN_EMAILS 白名单决定，
// 这里只负责建号，并提示邮箱是否已在白名单中。
func main() {
	email := flag.String("email", "", "登录邮箱")
	password := flag.String("password", "", "登录密码")
	nickname := flag.String("nickname", "", "昵称")
	flag.Parse()

	if *email == "" || *password == "" || *nickname == "" {
		fmt.Println("用法: create-admin -email=admin@example.com -password=... -nickname=admin")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("错误: 加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if cfg.Database.Type == "" || cfg.Database.Type == "memory" {
		fmt.Println("错误: 需要配置 OKITEGAMI_DATABASE_TYPE 与 OKITEGAMI_DATABASE_DSN，内存存储无法持久化账号")
		os.Exit(1)
	}

	normalized := strings.ToLower(strings.TrimSpace(*email))
	name := strings.TrimSpace(*nickname)
	for _, check := range []func() error{
		func() error { return domain.ValidateEmail(normalized) },
		func() error { return domain.ValidatePassword(*password) },
		func() error { return domain.ValidateNickname(name) },
	} {
		if err := check(); err != nil {
			fmt.Printf("错误: %v\n", err)
			os.Exit(1)
		}
	}

	store, err := postgres.NewStore(cfg.Database)
	if err != nil {
		fmt.Printf("错误: 无法连接数据库: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	hash, err := auth.HashPassword(*password)
	if err != nil {
		fmt.Printf("错误: 密码哈希失败: %v\n", err)
		os.Exit(1)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        normalized,
		Nickname:     name,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.CreateUser(ctx, user); err != nil {
		fmt.Printf("错误: 创建账号失败: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✓ 账号已创建")
	fmt.Printf("  ID:       %s\n", user.ID)
	fmt.Printf("  Email:    %s\n", user.Email)
	fmt.Printf("  Nickname: %s\n", user.Nickname)
	if cfg.IsAdminEmail(user.Email) {
		fmt.Println("  Admin:    是")
	} else {
		fmt.Println("  Admin:    否（将邮箱加入 OKITEGAMI_AUTH_ADMIN_EMAILS 后生效）")
	}
}
