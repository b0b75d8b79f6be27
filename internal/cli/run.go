package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/memohai/streambind/internal/binder"
	"github.com/memohai/streambind/internal/binder/local"
	"github.com/memohai/streambind/internal/binder/ws"
	"github.com/memohai/streambind/internal/binding"
	"github.com/memohai/streambind/internal/channel"
	"github.com/memohai/streambind/internal/config"
	"github.com/memohai/streambind/internal/converter"
	"github.com/memohai/streambind/internal/dispatch"
	"github.com/memohai/streambind/internal/logger"
)

// newRunCmd starts the relay runtime: it materializes the configured
// slots, binds them to the selected transport, and echoes every message
// from the "input" slot to the "output" slot, uppercasing text payloads.
func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the echo relay over the configured binder",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger.Init(cfg.Log.Level, cfg.Log.Format)
			log := logger.Component("runtime")

			decls, err := cfg.Binding.Declarations()
			if err != nil {
				return err
			}
			if len(decls) == 0 {
				decls = []binding.Declaration{
					binding.Input("input", channel.Push, ""),
					binding.Output("output", channel.Push, ""),
				}
			}

			registry := converter.NewRegistry(logger.L)
			factory := binding.NewFactory(decls, binding.Options{
				Namespace:     cfg.Binding.Namespace,
				PollInterval:  cfg.Binding.PollInterval(),
				QueueCapacity: cfg.Binding.QueueCapacity,
				Converters:    registry,
				Logger:        logger.L,
			})
			set, err := factory.BindingSet()
			if err != nil {
				return err
			}
			defer set.Close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			transport, closeTransport, err := newTransport(runCtx, cfg.Binder)
			if err != nil {
				return err
			}
			defer closeTransport()

			d := dispatch.New(registry, logger.L)
			err = d.Register(dispatch.Registration{
				Input:     "input",
				Params:    []dispatch.Param{dispatch.Payload()},
				ReturnsTo: "output",
				Handler: func(_ context.Context, args []any) (any, error) {
					if s, ok := args[0].(string); ok {
						return strings.ToUpper(s), nil
					}
					return args[0], nil
				},
			})
			if err != nil {
				return err
			}
			if err := d.Attach(runCtx, set); err != nil {
				return err
			}
			defer d.Close()

			if err := set.Bind(runCtx, transport); err != nil {
				return err
			}
			log.Info("relay running",
				slog.String("binder", cfg.Binder.Kind),
				slog.Any("inputs", set.InputNames()),
				slog.Any("outputs", set.OutputNames()))

			<-runCtx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := set.Unbind(shutdownCtx, transport); err != nil {
				return err
			}
			log.Info("relay stopped")
			return nil
		},
	}
}

func newTransport(ctx context.Context, cfg config.BinderConfig) (binder.Binder, func(), error) {
	switch cfg.Kind {
	case "", "local":
		b := local.New(nil, logger.L)
		return b, b.Close, nil
	case "ws":
		b, err := ws.Dial(ctx, cfg.BrokerURL, logger.L)
		if err != nil {
			return nil, nil, err
		}
		return b, func() { b.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown binder kind %q", cfg.Kind)
	}
}
