// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// scholar 命令行客户端：交互式对话走 TUI，其余管理操作是普通子命令。
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"scholar-agent/internal/client"
	"scholar-agent/internal/docs"
	"scholar-agent/internal/stream"
	"scholar-agent/internal/tui"
	"scholar-agent/pkg/config"
	"scholar-agent/pkg/log"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}
	cmd := os.Args[1]
	args := os.Args[2:]
	switch cmd {
	case "version":
		fmt.Printf("scholar cli %s\n", version)
	case "register":
		runRegister(args)
	case "login":
		runLogin(args)
	case "chat":
		runChat(args)
	case "sessions":
		runSessions(args)
	case "docs":
		runDocs(args)
	case "folders":
		runFolders(args)
	case "profile":
		runProfile(args)
	case "recharge":
		runRecharge(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "未知子命令: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`scholar - 科研助手命令行

用法:
  scholar chat [session_id] [--mode agent|normal]   交互式对话
  scholar register <username>                       注册并登录
  scholar login <username>                          登录
  scholar sessions list                             列出会话
  scholar sessions rm <id>                          删除会话
  scholar docs upload <file> [folder_id]            上传文档
  scholar docs list [folder_id]                     列出文档
  scholar docs rm <id>                              删除文档
  scholar folders list                              列出文件夹
  scholar folders new <name> [parent_id]            创建文件夹
  scholar profile [--mode free|paid]                查看/切换模式
  scholar recharge <amount>                         充值
  scholar version                                   版本
`)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "错误: %v\n", err)
	os.Exit(1)
}

// reqCtx 管理类请求的统一超时
func reqCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// setup 加载配置并创建带已存 token 的 REST 客户端
func setup() (*client.Client, *config.Config) {
	cfg, err := config.Load()
	if err != nil {
		fatal(err)
	}
	timeout, _ := time.ParseDuration(cfg.Client.Timeout)
	token, _ := loadToken(tokenPath(cfg))
	c := client.New(client.Options{
		BaseURL:    cfg.Client.BaseURL,
		Timeout:    timeout,
		RetryCount: cfg.Client.RetryCount,
		Token:      token,
	})
	return c, cfg
}

// tokenPath 登录凭证文件位置，配置缺省时落在 ~/.scholar/token
func tokenPath(cfg *config.Config) string {
	if cfg != nil && cfg.Client.TokenFile != "" {
		return cfg.Client.TokenFile
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".scholar-token"
	}
	return filepath.Join(home, ".scholar", "token")
}

func loadToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func saveToken(path, token string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(token+"\n"), 0o600)
}

// readPassword 从终端免回显读密码，非终端（管道）时按行读
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	if term.IsTerminal(int(syscall.Stdin)) {
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
	var line string
	if _, err := fmt.Scanln(&line); err != nil {
		return "", err
	}
	return line, nil
}

func runRegister(args []string) {
	if len(args) < 1 {
		fatal(fmt.Errorf("用法: scholar register <username>"))
	}
	c, cfg := setup()
	password, err := readPassword("密码: ")
	if err != nil {
		fatal(err)
	}
	confirm, err := readPassword("确认密码: ")
	if err != nil {
		fatal(err)
	}
	ctx, cancel := reqCtx()
	defer cancel()
	token, err := c.Register(ctx, args[0], password, confirm)
	if err != nil {
		fatal(err)
	}
	if token != "" {
		if err := saveToken(tokenPath(cfg), token); err != nil {
			fatal(err)
		}
	}
	fmt.Println("注册成功")
}

func runLogin(args []string) {
	if len(args) < 1 {
		fatal(fmt.Errorf("用法: scholar login <username>"))
	}
	c, cfg := setup()
	password, err := readPassword("密码: ")
	if err != nil {
		fatal(err)
	}
	ctx, cancel := reqCtx()
	defer cancel()
	token, err := c.Login(ctx, args[0], password)
	if err != nil {
		fatal(err)
	}
	if err := saveToken(tokenPath(cfg), token); err != nil {
		fatal(err)
	}
	fmt.Println("登录成功")
}

// parseChatArgs 拆出可选的会话 id 与 --mode 取值
func parseChatArgs(args []string) (sessionID, mode string, err error) {
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--mode":
			if i+1 >= len(args) {
				return "", "", fmt.Errorf("--mode 需要取值 agent 或 normal")
			}
			i++
			mode = args[i]
		case strings.HasPrefix(args[i], "--mode="):
			mode = strings.TrimPrefix(args[i], "--mode=")
		case strings.HasPrefix(args[i], "--"):
			return "", "", fmt.Errorf("未知选项: %s", args[i])
		default:
			sessionID = args[i]
		}
	}
	if mode != "" && mode != "agent" && mode != "normal" {
		return "", "", fmt.Errorf("mode 只能是 agent 或 normal，收到 %q", mode)
	}
	return sessionID, mode, nil
}

func runChat(args []string) {
	sessionID, mode, err := parseChatArgs(args)
	if err != nil {
		fatal(err)
	}
	c, cfg := setup()
	lg := log.Discard() // TUI 占满终端，日志只能丢弃或落文件
	if cfg.Log.File != "" {
		if fl, err := log.NewLogger(&log.Config{
			Level:  cfg.Log.Level,
			Format: cfg.Log.Format,
			File:   cfg.Log.File,
		}); err == nil {
			lg = fl
		}
	}
	tr := stream.NewTransport(cfg.Client.BaseURL, lg)
	if token, err := loadToken(tokenPath(cfg)); err == nil && token != "" {
		tr.SetToken(token)
	}
	if err := tui.Run(tui.Options{
		Client:    c,
		Transport: tr,
		SessionID: sessionID,
		Mode:      mode,
		Log:       lg,
	}); err != nil {
		fatal(err)
	}
}

func runSessions(args []string) {
	if len(args) < 1 {
		fatal(fmt.Errorf("用法: scholar sessions list|rm"))
	}
	c, _ := setup()
	ctx, cancel := reqCtx()
	defer cancel()
	switch args[0] {
	case "list":
		list, err := c.ListSessions(ctx)
		if err != nil {
			fatal(err)
		}
		if len(list) == 0 {
			fmt.Println("暂无会话")
			return
		}
		for _, s := range list {
			fmt.Println(formatSession(s.ID, s.Title, s.UpdatedAt))
		}
	case "rm":
		if len(args) < 2 {
			fatal(fmt.Errorf("用法: scholar sessions rm <id>"))
		}
		if err := c.DeleteSession(ctx, args[1]); err != nil {
			fatal(err)
		}
		fmt.Println("已删除")
	default:
		fatal(fmt.Errorf("未知操作: sessions %s", args[0]))
	}
}

func runDocs(args []string) {
	if len(args) < 1 {
		fatal(fmt.Errorf("用法: scholar docs upload|list|rm"))
	}
	c, _ := setup()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	switch args[0] {
	case "upload":
		if len(args) < 2 {
			fatal(fmt.Errorf("用法: scholar docs upload <file> [folder_id]"))
		}
		folderID := ""
		if len(args) > 2 {
			folderID = args[2]
		}
		data, err := os.ReadFile(args[1])
		if err != nil {
			fatal(err)
		}
		name := filepath.Base(args[1])
		// 本地先探一次 PDF，页数仅提示用，解析失败不拦上传
		if info, err := docs.Probe(name, data); err == nil && info.PageCount > 0 {
			fmt.Printf("PDF 共 %d 页\n", info.PageCount)
		}
		doc, err := c.UploadDocument(ctx, name, strings.NewReader(string(data)), folderID)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("已上传: %s (%s)\n", doc.OriginalName, doc.ID)
	case "list":
		folderID := ""
		if len(args) > 1 {
			folderID = args[1]
		}
		list, err := c.ListDocuments(ctx, folderID, "")
		if err != nil {
			fatal(err)
		}
		if len(list) == 0 {
			fmt.Println("暂无文档")
			return
		}
		for _, d := range list {
			fmt.Println(formatDocument(d.ID, d.OriginalName, d.FileType, d.FileSize))
		}
	case "rm":
		if len(args) < 2 {
			fatal(fmt.Errorf("用法: scholar docs rm <id>"))
		}
		if err := c.DeleteDocument(ctx, args[1]); err != nil {
			fatal(err)
		}
		fmt.Println("已删除")
	default:
		fatal(fmt.Errorf("未知操作: docs %s", args[0]))
	}
}

func runFolders(args []string) {
	if len(args) < 1 {
		fatal(fmt.Errorf("用法: scholar folders list|new"))
	}
	c, _ := setup()
	ctx, cancel := reqCtx()
	defer cancel()
	switch args[0] {
	case "list":
		list, err := c.ListFolders(ctx)
		if err != nil {
			fatal(err)
		}
		if len(list) == 0 {
			fmt.Println("暂无文件夹")
			return
		}
		for _, f := range list {
			fmt.Printf("%s  %s (%d 份文档)\n", shortID(f.ID), f.Name, f.DocumentCount)
		}
	case "new":
		if len(args) < 2 {
			fatal(fmt.Errorf("用法: scholar folders new <name> [parent_id]"))
		}
		parentID := ""
		if len(args) > 2 {
			parentID = args[2]
		}
		f, err := c.CreateFolder(ctx, args[1], parentID)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("已创建: %s (%s)\n", f.Name, f.ID)
	default:
		fatal(fmt.Errorf("未知操作: folders %s", args[0]))
	}
}

func runProfile(args []string) {
	c, _ := setup()
	ctx, cancel := reqCtx()
	defer cancel()
	for i := 0; i < len(args); i++ {
		mode := ""
		if args[i] == "--mode" && i+1 < len(args) {
			mode = args[i+1]
			i++
		} else if strings.HasPrefix(args[i], "--mode=") {
			mode = strings.TrimPrefix(args[i], "--mode=")
		}
		if mode != "" {
			if _, err := c.UpdateProfile(ctx, profileModeUpdate(mode)); err != nil {
				fatal(err)
			}
		}
	}
	p, err := c.Profile(ctx)
	if err != nil {
		fatal(err)
	}
	fmt.Print(formatProfile(p.UserID, p.DisplayName, p.ModelMode, p.Balance, p.FreeQuotaToday))
}

func runRecharge(args []string) {
	if len(args) < 1 {
		fatal(fmt.Errorf("用法: scholar recharge <amount>"))
	}
	amount, err := strconv.ParseFloat(args[0], 64)
	if err != nil || amount <= 0 {
		fatal(fmt.Errorf("金额必须是正数: %s", args[0]))
	}
	c, _ := setup()
	ctx, cancel := reqCtx()
	defer cancel()
	p, err := c.Recharge(ctx, amount)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("充值成功，当前余额 %.2f\n", p.Balance)
}
