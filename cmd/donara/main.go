package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/donara/internal/clock"
	"github.com/smallbiznis/donara/internal/config"
	"github.com/smallbiznis/donara/internal/metricsexport"
	"github.com/smallbiznis/donara/internal/migration"
	"github.com/smallbiznis/donara/internal/observability"
	"github.com/smallbiznis/donara/internal/scheduler"
	"github.com/smallbiznis/donara/internal/server"
	"github.com/smallbiznis/donara/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		server.Module,
		scheduler.Module,
		metricsexport.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
