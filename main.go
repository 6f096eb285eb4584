package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	beego "github.com/beego/beego/v2/server/web"

	"casino-server/common/logger"
	"casino-server/internal/config"
	"casino-server/internal/controller/api"
	infmysql "casino-server/internal/infra/mysql"
	infrds "casino-server/internal/infra/redis"
	infmq "casino-server/internal/infra/rocketmq"
	"casino-server/internal/model"
	"casino-server/internal/sched"
	"casino-server/internal/service"
	"casino-server/internal/settle"
	"casino-server/internal/worker"
	"casino-server/routers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("[Boot] 配置加载失败: %v\n", err)
		os.Exit(1)
	}
	config.Set(cfg)

	logger.InitLogger()
	defer logger.Sync()

	infmysql.Init(cfg.Database.DSN, cfg.Database.MaxIdleConns, cfg.Database.MaxOpenConns)
	infrds.Init(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)

	db := infmysql.DB()
	rounds := &model.RoundRepo{DB: db}
	bets := &model.BetRepo{DB: db}
	logs := &model.LogRepo{DB: db}
	wallet := &model.WalletRepo{DB: db}

	engine := settle.NewEngine(rounds, bets, logs, wallet, infmq.PublisherInstance())
	source := service.NewOutcomeSource(bets)

	interval := time.Second
	if cfg.Game.SchedulerIntervalMs > 0 {
		interval = time.Duration(cfg.Game.SchedulerIntervalMs) * time.Millisecond
	}
	scheduler := sched.NewScheduler(rounds, source, engine, interval)
	api.Wire(scheduler, engine)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	go scheduler.Run(ctx)
	worker.StartOutboxDispatcher(ctx, &wg)
	worker.StartMarketConsumer(ctx, &wg)

	// 优雅退出：先停调度器与后台任务，再退出进程
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		fmt.Println("[Boot] 收到退出信号，停止后台任务")
		cancel()
		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			fmt.Println("[Boot] 后台任务退出超时，强制退出")
		}
		logger.Sync()
		os.Exit(0)
	}()

	if cfg.Server.Port > 0 {
		beego.BConfig.Listen.HTTPPort = cfg.Server.Port
	}
	beego.BConfig.CopyRequestBody = true
	routers.Setup()

	fmt.Printf("[Boot] casino-server 启动: port=%d\n", beego.BConfig.Listen.HTTPPort)
	beego.Run()
}
