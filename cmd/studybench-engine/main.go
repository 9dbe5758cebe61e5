package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"studybench/engine/internal/appdirs"
	"studybench/engine/internal/engine"
	"studybench/engine/internal/envfile"
	"studybench/engine/internal/errinfo"
	"studybench/engine/internal/logging"
	"studybench/engine/internal/rpc"
)

func main() {
	envResult := envfile.Load()
	debug := envfile.Bool("STUDYBENCH_DEBUG")
	dataDir, err := appdirs.DataDir()
	if err != nil {
		log.Fatalf("engine init failed: %v", err)
	}
	logSetup, logErr := logging.NewFileLogger(dataDir, debug)
	logger := logSetup.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.With("component", "engine")
	if logSetup.Enabled {
		logger.Info("engine.logging_enabled", "path", logSetup.Path)
	}
	if envResult.Loaded {
		logger.Debug("engine.env_loaded", "path", envResult.Path, "keys", envResult.Keys)
	}
	if envResult.Err != nil {
		logger.Warn("engine.env_load_failed", "path", envResult.Path, "error", envResult.Err.Error())
	}
	if logErr != nil {
		logger.Warn("engine.log_setup_failed", "error", logErr.Error())
	}
	if logSetup.Close != nil {
		defer logSetup.Close()
	}

	eng, err := engine.New(engine.WithLogger(logger))
	if err != nil {
		logger.Error("engine.init_failed", "error", err.Error())
		log.Fatalf("engine init failed: %v", err)
	}
	defer eng.Close()
	server := rpc.NewServer(engine.APIVersion, os.Stdin, os.Stdout, logger)
	eng.SetNotifier(server.Notify)

	register := func(method string, fn func(context.Context, json.RawMessage) (any, *errinfo.ErrorInfo)) {
		server.Register(method, func(ctx context.Context, params json.RawMessage) (any, *rpc.Error) {
			result, errInfo := fn(ctx, params)
			if errInfo != nil {
				msg := errInfo.ErrorCode
				if errInfo.Detail != "" {
					msg = errInfo.Detail
				}
				return nil, &rpc.Error{Message: msg, Data: errInfo}
			}
			return result, nil
		})
	}

	register("EngineGetInfo", eng.EngineGetInfo)

	register("ProvidersGetConfig", eng.ProvidersGetConfig)
	register("ProvidersSetConfig", eng.ProvidersSetConfig)
	register("ProvidersSetApiKey", eng.ProvidersSetApiKey)
	register("ProvidersClearApiKey", eng.ProvidersClearApiKey)
	register("ProvidersValidate", eng.ProvidersValidate)
	register("ProvidersTestConnection", eng.ProvidersTestConnection)

	register("DecksCreate", eng.DecksCreate)
	register("DecksList", eng.DecksList)
	register("DecksRename", eng.DecksRename)
	register("DecksDelete", eng.DecksDelete)
	register("CardsCreate", eng.CardsCreate)
	register("CardsList", eng.CardsList)
	register("CardsGet", eng.CardsGet)
	register("CardsUpdate", eng.CardsUpdate)
	register("CardsDelete", eng.CardsDelete)
	register("CardsListDue", eng.CardsListDue)
	register("CardsGetHistory", eng.CardsGetHistory)
	register("StatsGet", eng.StatsGet)

	register("ReviewsSubmit", eng.ReviewsSubmit)

	register("AssistantSendMessage", eng.AssistantSendMessage)
	register("AssistantCancelRun", eng.AssistantCancelRun)
	register("AssistantConfirmProposal", eng.AssistantConfirmProposal)
	register("AssistantDismissProposal", eng.AssistantDismissProposal)
	register("AssistGenerateAnswer", eng.AssistGenerateAnswer)
	register("AssistGenerateQuestion", eng.AssistGenerateQuestion)
	register("AssistGenerateTitle", eng.AssistGenerateTitle)
	register("AssistAssessDifficulty", eng.AssistAssessDifficulty)

	register("EditorOpened", eng.EditorOpened)
	register("EditorClosed", eng.EditorClosed)
	register("EditorSync", eng.EditorSync)

	if err := server.Serve(context.Background()); err != nil {
		logger.Error("rpc.server_error", "error", err.Error())
		log.Fatalf("rpc server error: %v", err)
	}
}
