// Package vigil supervises the lifecycle of a single long-polling
// messaging-bot connection: it retries failures with a classified linear
// backoff policy and guarantees clean startup and shutdown of the
// handler-registration and polling phases.
//
// # Quick Start
//
//	client, err := botclient.New(botclient.Config{Token: token})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sup, err := vigil.New(client, registry,
//	    vigil.WithMaxRetries(10),
//	    vigil.WithBaseDelay(10*time.Second),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//	os.Exit(sup.Run(ctx).ExitCode())
//
// # Failure handling
//
// Failures captured while connecting or polling are classified by keyword:
// authorization rejections terminate the run immediately (retrying would
// hammer the API with credentials it has already rejected), everything else
// is assumed transient and retried under a linear capped backoff, bounded by
// the retry budget. The caller only ever observes the terminal Outcome; raw
// collaborator errors never escape Run.
//
// # Collaborators
//
// The supervisor does not implement the wire protocol or command logic. It
// drives a BotClient (connect, poll, close) and a HandlerRegistry (register
// command handlers on a dispatch.Mux). The botclient subpackage provides a
// reference BotClient for the Telegram Bot API with circuit breaking, rate
// limiting and token redaction built in.
package vigil
