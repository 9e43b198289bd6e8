package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/go-go-golems/jiminy/pkg/inference"
	"github.com/go-go-golems/jiminy/pkg/server"
	"github.com/go-go-golems/jiminy/pkg/store"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	cmd.Flags().String("addr", ":5000", "HTTP listen address")
	cmd.Flags().String("model", "meta-llama/Meta-Llama-3-8B-Instruct", "Model identifier")
	cmd.Flags().String("openai-base-url", "", "OpenAI-compatible endpoint base URL (empty for the default)")
	cmd.Flags().Int("max-response-tokens", inference.DefaultMaxResponseTokens, "Maximum reply length in tokens")
	cmd.Flags().String("mongo-uri", "mongodb://localhost:27017", "MongoDB connection URI")
	cmd.Flags().String("mongo-database", "jiminy", "MongoDB database name")
	cmd.Flags().Bool("in-memory-store", false, "Keep conversations in process memory instead of MongoDB")
	cmd.Flags().Bool("legacy-per-turn", false, "Write a new conversation record per turn instead of keying by conversation id")

	_ = viper.BindPFlags(cmd.Flags())
	_ = viper.BindEnv("openai-api-key", "JIMINY_OPENAI_API_KEY", "OPENAI_API_KEY")

	return cmd
}

func runServe(ctx context.Context) error {
	// Missing inference credential is fatal before we serve anything.
	apiKey := viper.GetString("openai-api-key")
	if apiKey == "" {
		return errors.New("OPENAI_API_KEY is not set in the environment")
	}

	gateway, err := inference.NewOpenAIGateway(inference.Settings{
		APIKey:            apiKey,
		BaseURL:           viper.GetString("openai-base-url"),
		Model:             viper.GetString("model"),
		MaxResponseTokens: viper.GetInt("max-response-tokens"),
	})
	if err != nil {
		return errors.Wrap(err, "build inference gateway")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var conversationStore store.Store
	if viper.GetBool("in-memory-store") {
		log.Warn().Msg("using in-memory store, conversations will not survive a restart")
		conversationStore = store.NewInMemoryStore()
	} else {
		mongoClient, err := connectMongo(ctx, viper.GetString("mongo-uri"))
		if err != nil {
			return err
		}
		defer func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mongoClient.Disconnect(disconnectCtx); err != nil {
				log.Warn().Err(err).Msg("failed to disconnect from mongodb")
			}
		}()
		conversationStore = store.NewMongoStore(mongoClient, viper.GetString("mongo-database"))
	}

	var turnOptions []server.TurnServiceOption
	if viper.GetBool("legacy-per-turn") {
		log.Info().Msg("legacy per-turn persistence enabled")
		turnOptions = append(turnOptions, server.WithLegacyPerTurnPersistence())
	}

	turnService := server.NewTurnService(gateway, conversationStore, turnOptions...)
	srv := server.NewServer(viper.GetString("addr"), turnService, conversationStore)

	return srv.Run(ctx)
}

func connectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connect to mongodb")
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		return nil, errors.Wrap(err, "ping mongodb")
	}

	log.Info().Str("uri", uri).Msg("connected to mongodb")
	return client, nil
}
