package worker

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	rmq "github.com/apache/rocketmq-clients/golang/v5"
	"github.com/apache/rocketmq-clients/golang/v5/credentials"
	"go.uber.org/zap"

	"casino-server/common/logger"
	"casino-server/internal/cache"
	"casino-server/internal/config"
	infmysql "casino-server/internal/infra/mysql"
	"casino-server/internal/model"
	"casino-server/internal/settle"
)

// marketMessage 外部市场开奖消息
// 例：{"round_id":"roulette-12-ab3f","outcome":{"game_type":"roulette","number":17}}
type marketMessage struct {
	RoundID string          `json:"round_id"`
	Outcome *settle.Outcome `json:"outcome"`
}

// StartMarketConsumer 订阅外部市场开奖主题，把结果写入外部结果缓存。
// 调度器轮询该缓存完成开奖；消息按 message_id+topic 去重入 inbox 表。
// 未配置 market_topic 或消费组时不启动。
func StartMarketConsumer(ctx context.Context, wg *sync.WaitGroup) {
	rmq.ResetLogger()

	cfg := config.Get()
	if cfg == nil {
		return
	}
	endpoint := strings.TrimSpace(cfg.RocketMQ.Endpoint)
	topic := strings.TrimSpace(cfg.RocketMQ.MarketTopic)
	group := strings.TrimSpace(cfg.RocketMQ.ConsumerGroup)
	if endpoint == "" || topic == "" {
		return
	}
	if group == "" {
		logger.Warn("[mq] market consumer not started: empty consumer_group")
		return
	}
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "http://"), "https://")
	if idx := strings.IndexAny(endpoint, ",;"); idx > 0 {
		endpoint = strings.TrimSpace(endpoint[:idx])
	}
	ak := strings.TrimSpace(cfg.RocketMQ.AccessKey)
	sk := strings.TrimSpace(cfg.RocketMQ.SecretKey)
	if ak == "" || sk == "" {
		logger.Warn("[mq] market consumer not started: missing access/secret key")
		return
	}

	rc := &rmq.Config{Endpoint: endpoint, ConsumerGroup: group}
	rc.Credentials = &credentials.SessionCredentials{AccessKey: ak, AccessSecret: sk}

	subs := map[string]*rmq.FilterExpression{
		strings.ReplaceAll(topic, ".", "_"): rmq.SUB_ALL,
	}

	awaitDuration := 5 * time.Second
	maxMessageNum := int32(16)
	invisibleDuration := 20 * time.Second

	// 容器刚启动时 MQ 可能未就绪，带重试
	var sc rmq.SimpleConsumer
	var err error
	for i := 0; i < 6; i++ {
		sc, err = rmq.NewSimpleConsumer(rc,
			rmq.WithAwaitDuration(awaitDuration),
			rmq.WithSubscriptionExpressions(subs),
		)
		if err == nil {
			if e := sc.Start(); e == nil {
				break
			} else {
				err = e
			}
		}
		logger.Warn("[mq] market consumer start retry", zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(3 * time.Second)
	}
	if err != nil {
		logger.Error("[mq] start market consumer failed", zap.Error(err))
		return
	}
	logger.Info("[mq] market consumer started", zap.String("group", group), zap.String("topic", topic))

	ttl := 10 * time.Minute
	if cfg.Game.OutcomeCacheTTLSec > 0 {
		ttl = time.Duration(cfg.Game.OutcomeCacheTTLSec) * time.Second
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer sc.GracefulStop()
		for {
			select {
			case <-ctx.Done():
				return
			default:
				mvs, err := sc.Receive(ctx, maxMessageNum, invisibleDuration)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					logger.Warn("[mq] market receive error", zap.Error(err))
					continue
				}
				for _, mv := range mvs {
					id := mv.GetMessageId()
					body := mv.GetBody()
					if err := model.UpsertInbox(ctx, infmysql.DB(), id, mv.GetTopic(), string(body), time.Now().UnixMilli()); err != nil {
						logger.Warn("[mq] upsert inbox failed", zap.String("id", id), zap.Error(err))
						continue
					}
					handleMarketMessage(ctx, body, ttl)
					if err := sc.Ack(ctx, mv); err != nil {
						logger.Warn("[mq] ack failed", zap.String("id", id), zap.Error(err))
					}
				}
			}
		}
	}()
}

// handleMarketMessage 坏消息只告警并继续消费，不卡队列
func handleMarketMessage(ctx context.Context, body []byte, ttl time.Duration) {
	var msg marketMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		logger.Warn("[mq] bad market payload", zap.Error(err))
		return
	}
	if msg.RoundID == "" || msg.Outcome == nil || msg.Outcome.GameType == "" {
		logger.Warn("[mq] incomplete market payload", zap.String("round_id", msg.RoundID))
		return
	}
	msg.Outcome.Source = "external"
	if err := cache.PutExternal(ctx, msg.RoundID, msg.Outcome, ttl); err != nil {
		logger.Error("[mq] store external outcome failed",
			zap.String("round_id", msg.RoundID), zap.Error(err))
		return
	}
	logger.Info("[mq] external outcome received",
		zap.String("round_id", msg.RoundID), zap.String("game", msg.Outcome.GameType))
}
