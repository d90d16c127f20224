package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"djmaow/applemusic"
	"djmaow/audio"
	appConfig "djmaow/config"
	"djmaow/controller"
	"djmaow/database"
	"djmaow/discord"
	"djmaow/handlers"
	appSentry "djmaow/sentry"
	"djmaow/spotify"
	"djmaow/youtube"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warnf("Error loading .env file: %v", err)
	}
	config := appConfig.NewConfig()
	setupLogging(config.Options.LogLevel)

	if missing := config.Missing(); len(missing) > 0 {
		log.Fatalf("Missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if err := appSentry.Init(config.Sentry); err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}
	defer appSentry.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config); err != nil {
		log.Fatal(err)
	}
}

func setupLogging(level string) {
	log.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		FieldsOrder:     []string{"module", "component"},
		TimestampFormat: time.RFC3339,
	})
	parsed, err := log.ParseLevel(level)
	if err != nil {
		log.Warnf("Unknown LOG_LEVEL %q, using info", level)
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)
}

func run(ctx context.Context, config *appConfig.ConfigStruct) error {
	var db *database.Database
	if config.Cache.IsEnabled() {
		var err error
		db, err = database.New(config.Cache.DBPath)
		if err != nil {
			return errors.Wrap(err, "opening database")
		}
		defer db.Close()
		if count, err := db.CachedSongs(ctx); err == nil {
			log.Infof("Song cache ready with %d songs", count)
		}
	} else {
		log.Info("Song cache disabled")
	}

	streams := youtube.NewStreamResolver(audio.NewLoader())
	resolverOptions := youtube.ResolverOptions{Metadata: streams}

	var expander controller.Expander
	if config.Youtube.HasAPIKey() {
		api, err := youtube.NewAPIClient(ctx, youtube.ClientOptions{
			APIKey:            config.Youtube.APIKey,
			SearchMaxResults:  config.Youtube.SearchMaxResults,
			PageSize:          config.Youtube.PageSize,
			RequestsPerSecond: config.Youtube.RequestsPerSecond,
		})
		if err != nil {
			return errors.Wrap(err, "creating YouTube client")
		}
		resolverOptions.Searcher = api
		resolverOptions.Metadata = api
		expander = youtube.NewPlaylistExpander(api)
	} else {
		log.Warn("YOUTUBE_API_KEY not set, searching without the API. Playlists are disabled")
		resolverOptions.Searcher = youtube.NewScrapeClient(config.Youtube.SearchMaxResults)
	}
	if db != nil {
		resolverOptions.Cache = db
	}

	if config.Spotify.IsEnabled() {
		client, err := spotify.NewClient(ctx, config.Spotify.ClientID, config.Spotify.ClientSecret)
		if err != nil {
			log.Errorf("Spotify links disabled: %v", err)
		} else {
			resolverOptions.Translators = append(resolverOptions.Translators, client)
		}
	}
	if config.AppleMusic.Enabled {
		resolverOptions.Translators = append(resolverOptions.Translators, applemusic.NewClient())
	}

	resolver := youtube.NewResolver(resolverOptions)
	defer resolver.Wait()

	player, err := audio.NewPlayer(config.Options.AudioBitrate)
	if err != nil {
		return errors.Wrap(err, "creating audio player")
	}

	discordSession, err := discord.NewSession(config.Discord.BotToken)
	if err != nil {
		return err
	}
	defer discordSession.Close()

	if err := discord.RegisterCommands(discordSession, config.Discord.AppID, config.Discord.GuildID); err != nil {
		log.Errorf("Failed to register commands: %v", err)
	}

	sessionConfig := controller.Config{
		Resolver:    resolver,
		Expander:    expander,
		Connector:   discord.NewVoiceConnector(discordSession),
		Streams:     streams,
		Sink:        player,
		IdleTimeout: time.Duration(config.Options.IdleTimeoutSeconds) * time.Second,
	}
	if db != nil {
		sessionConfig.History = db
	}
	session := controller.NewSession(sessionConfig)
	defer session.Close()

	managerOptions := handlers.Options{
		PublicKey: config.Discord.PublicKey,
		Player:    session,
		Messenger: discord.NewWebhookMessenger(discordSession),
		VoiceChannel: func(guildID, userID string) string {
			return discord.UserVoiceChannel(discordSession, guildID, userID)
		},
		EnforceVoiceChannel: config.Options.EnforceVoiceChannelEnabled(),
	}
	if db != nil {
		managerOptions.Store = db
	}
	manager, err := handlers.NewManager(managerOptions)
	if err != nil {
		return err
	}

	router := gin.Default()
	router.Use(appSentry.Gin())
	manager.Register(router)

	port := config.Options.Port
	if port == "" {
		port = "8080"
	}
	server := &http.Server{Addr: ":" + port, Handler: router}

	serveErr := make(chan error, 1)
	go func() {
		log.Infof("Starting server on :%s", port)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnf("Server shutdown: %v", err)
	}
	manager.Wait()
	session.Stop()
	return nil
}
