package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"

	"github.com/snowpity/postingcache/internal/coalescer"
	"github.com/snowpity/postingcache/internal/config"
	"github.com/snowpity/postingcache/internal/httpclient"
	"github.com/snowpity/postingcache/internal/inline"
	"github.com/snowpity/postingcache/internal/logging"
	"github.com/snowpity/postingcache/internal/mediacache"
	"github.com/snowpity/postingcache/internal/posting/derpibooru"
	"github.com/snowpity/postingcache/internal/posting/deviantart"
	"github.com/snowpity/postingcache/internal/posting/model"
	"github.com/snowpity/postingcache/internal/posting/platform"
	"github.com/snowpity/postingcache/internal/posting/twitter"
	"github.com/snowpity/postingcache/internal/telegram"
	"github.com/snowpity/postingcache/internal/tgupload"
	"github.com/snowpity/postingcache/internal/transcode"
)

var verbose bool

// Execute runs the root command.
func Execute() error {
	return newRootCommand().Execute()
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "postingcached",
		Short:         "Cache posting-site media into a Telegram channel and serve inline queries",
		Long:          "postingcached resolves links to Derpibooru-family boorus, Twitter/X, and DeviantArt into media already uploaded to a Telegram cache channel, answering inline queries with the cached file instead of re-uploading on every request.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "V", false, "Enable verbose logging")
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newResolveCommand())

	return cmd
}

// deps bundles everything built from config that the serve/resolve
// subcommands both need.
type deps struct {
	store     *mediacache.Store
	registry  *platform.Registry
	coalescer *coalescer.Coalescer
	bot       *telegram.Bot
}

func buildDeps(ctx context.Context, needBot bool) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	httpClient := httpclient.New(httpclient.Options{
		MinRetryWait: cfg.HTTPRetry.MinRetryWait,
		MaxRetryWait: cfg.HTTPRetry.MaxRetryWait,
		TotalBudget:  cfg.HTTPRetry.TotalBudget,
	})

	store, err := mediacache.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open blob cache store: %w", err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate blob cache store: %w", err)
	}

	registry := platform.NewRegistry(
		derpibooru.New(derpibooru.DerpibooruSite, httpClient, store),
		derpibooru.New(derpibooru.PonerpicsSite, httpClient, store),
		derpibooru.New(derpibooru.TwibooruSite, httpClient, store),
		twitter.New(httpClient, cfg.Twitter.BearerToken, store),
		deviantart.New(httpClient, store),
	)

	var bot *telegram.Bot
	var sender tgupload.Sender
	if needBot {
		bot, err = telegram.New(cfg.Telegram.BotToken)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("log into telegram: %w", err)
		}
		sender = bot
	}

	engine := &tgupload.Engine{
		HTTP:      httpClient,
		Sender:    sender,
		ChatID:    cfg.Telegram.CacheChatID,
		Transcode: transcode.Options{FfmpegPath: cfg.Transcode.FfmpegPath},
	}

	c := coalescer.New(registry, engine)
	c.Start(ctx)

	return &deps{store: store, registry: registry, coalescer: c, bot: bot}, nil
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the long-poll inline query server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.SetVerbose(verbose)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			d, err := buildDeps(ctx, true)
			if err != nil {
				return err
			}
			defer d.store.Close()
			// Stop blocks until the coalescer's in-flight resolves (and
			// their cache writes) have finished draining, so the store
			// above is only closed once nothing is still using it.
			defer d.coalescer.Stop()

			logging.Infof("logged in as @%s", d.bot.Self())

			svc := inline.New(d.registry, d.coalescer, d.bot)

			updates := d.bot.Updates(0)
			for {
				select {
				case update, ok := <-updates:
					if !ok {
						return nil
					}
					handleUpdate(ctx, svc, update)
				case <-ctx.Done():
					logging.Infof("shutting down")
					return nil
				}
			}
		},
	}
}

func handleUpdate(ctx context.Context, svc *inline.Service, update tgbotapi.Update) {
	if update.InlineQuery != nil {
		if err := svc.HandleQuery(ctx, *update.InlineQuery); err != nil {
			logging.Errorf("handling inline query %q failed: %v", update.InlineQuery.ID, err)
		}
		return
	}
	if update.ChosenInlineResult != nil {
		svc.HandleChosenResult(*update.ChosenInlineResult)
	}
}

func newResolveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <url>",
		Short: "Resolve a single link without serving inline queries, printing the cached file handles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.SetVerbose(verbose)

			ctx := cmd.Context()

			d, err := buildDeps(ctx, true)
			if err != nil {
				return err
			}
			defer d.store.Close()

			id, matchedPlatform, ok := d.registry.ParseQuery(args[0])
			if !ok {
				return fmt.Errorf("no adapter recognizes %q", args[0])
			}
			logging.Infof("matched platform %s", matchedPlatform)

			post, err := d.coalescer.CachePost(ctx, model.ResolveRequest{Request: id})
			if err != nil {
				return fmt.Errorf("resolve: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "post: %s (nsfw=%v)\n", post.Base.WebURL, post.Base.Rating.NSFW)
			for _, blob := range post.Blobs {
				fmt.Fprintf(out, "  blob %s -> tg %s (%s)\n", blob.BlobID.Value, blob.TgFile.Handle, blob.TgFile.Kind)
			}
			return nil
		},
	}
}
