package main

import (
	"github.com/rovelink/rovelink/internal/api"
	"github.com/rovelink/rovelink/internal/api/ws"
	"github.com/rovelink/rovelink/internal/app"
	"github.com/rovelink/rovelink/internal/operator"
	"github.com/rovelink/rovelink/internal/robot"
	"github.com/rovelink/rovelink/pkg/shell"
)

func main() {
	app.Init() // init config and logs

	api.Init() // init HTTP API server
	ws.Init()  // init WS API endpoint

	robot.Init()    // robot side: /offer endpoint, video, telemetry
	operator.Init() // operator side: session API for UI

	sig := shell.RunUntilSignal()
	app.Logger.Info().Str("signal", sig.String()).Msg("exit")

	operator.Close()
	robot.Close()
}
