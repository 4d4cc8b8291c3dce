package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clinova/internal/migration"
	"github.com/smallbiznis/clinova/internal/server"
	"github.com/smallbiznis/clinova/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
