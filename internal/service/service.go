package service

import (
	"fmt"

	"github.com/bwmarrin/snowflake"

	"speedtest/config"
	"speedtest/internal/eventbus"
	"speedtest/internal/probe"
	"speedtest/internal/repository"
)

// Services 所有服务的集合
type Services struct {
	ResultService ResultService
	Authenticator Authenticator
	Payload       *probe.Payload
	EventBus      eventbus.EventBus
}

// NewServices 初始化所有服务，results 的生命周期由调用方管理
func NewServices(cfg *config.Config, results repository.ResultRepository, bus eventbus.EventBus) (*Services, error) {
	// 创建ID生成器
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("create id generator: %w", err)
	}

	if bus == nil {
		bus = eventbus.NewEventBus()
	}

	return &Services{
		ResultService: NewResultService(results, node, WithEventBus(bus)),
		Authenticator: NewStaticAuthenticator(cfg.Admin),
		Payload:       probe.NewPayload(cfg.Probe.DownloadSize),
		EventBus:      bus,
	}, nil
}
