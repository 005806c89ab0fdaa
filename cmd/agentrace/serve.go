package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/vinayprograms/agentkit/logging"
	"golang.org/x/sync/errgroup"

	"github.com/vinayprograms/agentrace/internal/config"
	"github.com/vinayprograms/agentrace/internal/eventlog"
	"github.com/vinayprograms/agentrace/internal/ingest"
	"github.com/vinayprograms/agentrace/internal/orchestrator"
	"github.com/vinayprograms/agentrace/internal/sink"
	"github.com/vinayprograms/agentrace/internal/telemetry"
	"github.com/vinayprograms/agentrace/internal/trace"
)

// Run starts the service: remote lifecycle events are fed into one engine,
// resolved spans fan out to the sinks, and orchestrator requests are answered
// over NATS request/reply. The orchestrator is rebuilt when the config file
// changes.
func (c *ServeCmd) Run(cli *CLI) error {
	rt, err := loadRuntime(cli)
	if err != nil {
		return err
	}
	defer rt.close()
	logger := logging.New().WithComponent("serve")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	url := firstNonEmpty(c.NATS, rt.cfg.NATS.URL)
	nc, err := nats.Connect(url,
		nats.Name("agentrace"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", map[string]interface{}{"error": err.Error()})
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	defer nc.Close()

	engine, handler, err := c.pipeline(ctx, rt, nc)
	if err != nil {
		return err
	}
	if _, err := telemetry.ObserveEngine(telemetry.Meter("agentrace"), engine.Stats); err != nil {
		return err
	}

	holder, err := orchestrator.NewHolder(rt.factory(), rt.cfg)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ingest.NewSubscriber(handler).Run(gctx, nc, rt.cfg.NATS.EventSubject, rt.cfg.NATS.QueueGroup)
	})
	g.Go(func() error {
		return serveRequests(gctx, nc, rt.cfg.NATS, holder, handler, logger)
	})
	if !c.NoWatch && rt.configPath != "" {
		g.Go(func() error {
			return config.Watch(gctx, rt.configPath, func(cfg *config.Config) {
				if err := holder.Rebuild(cfg); err != nil {
					logger.Warn("keeping previous orchestrator", map[string]interface{}{"error": err.Error()})
				}
			})
		})
	}

	logger.Info("serving", map[string]interface{}{
		"nats":     url,
		"events":   rt.cfg.NATS.EventSubject,
		"spans":    rt.cfg.NATS.SpanPrefix,
		"requests": rt.cfg.NATS.RequestSubject,
	})
	err = g.Wait()
	st := engine.Stats()
	logger.Info("stopped", map[string]interface{}{
		"opened":   st.Opened,
		"closed":   st.Closed,
		"orphaned": st.Orphaned,
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// pipeline builds the engine with its sinks and the handler events enter
// through.
func (c *ServeCmd) pipeline(ctx context.Context, rt *runtime, nc *nats.Conn) (*trace.Engine, trace.Handler, error) {
	engineOpts, err := rt.engineOptions()
	if err != nil {
		return nil, nil, err
	}
	engineOpts = append(engineOpts, trace.WithSink(sink.NewNATS(nc, rt.cfg.NATS.SpanPrefix)))

	otelSink, err := rt.startTelemetry(ctx)
	if err != nil {
		return nil, nil, err
	}
	if otelSink != nil {
		engineOpts = append(engineOpts, trace.WithSink(otelSink))
	}
	spanLog, err := rt.spanLog(rt.cfg.Trace.SpanLog)
	if err != nil {
		return nil, nil, err
	}
	if spanLog != nil {
		engineOpts = append(engineOpts, trace.WithSink(spanLog))
	}

	engine := trace.NewEngine(engineOpts...)
	var handler trace.Handler = engine
	if rt.cfg.Trace.EventLog != "" {
		rec, err := eventlog.Create(rt.cfg.Trace.EventLog, "agentrace", engine)
		if err != nil {
			return nil, nil, err
		}
		rt.closers = append(rt.closers, rec.Close)
		handler = rec
	}
	return engine, handler, nil
}

// serveRequests answers each request message with the JSON result of one
// turn run by the current orchestrator.
func serveRequests(ctx context.Context, nc *nats.Conn, subjects config.NATSConfig, holder *orchestrator.Holder, h trace.Handler, logger *logging.Logger) error {
	sub, err := nc.QueueSubscribe(subjects.RequestSubject, subjects.QueueGroup, func(msg *nats.Msg) {
		go func() {
			respond(logger, msg.Subject, msg.Respond, answer(ctx, holder, h, msg.Data))
		}()
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subjects.RequestSubject, err)
	}
	<-ctx.Done()
	return sub.Drain()
}

// respond sends a turn's reply and logs it when it cannot be delivered.
func respond(logger *logging.Logger, subject string, send func([]byte) error, data []byte) error {
	err := send(data)
	if err != nil {
		logger.Warn("failed to send reply", map[string]interface{}{
			"subject": subject,
			"error":   err.Error(),
		})
	}
	return err
}

// turnRequest is the body of a request message. A body that is not a JSON
// object is taken as the input text.
type turnRequest struct {
	Input     string           `json:"input"`
	Overrides config.Overrides `json:"overrides"`
}

func answer(ctx context.Context, holder *orchestrator.Holder, h trace.Handler, body []byte) []byte {
	var req turnRequest
	if err := json.Unmarshal(body, &req); err != nil {
		req = turnRequest{Input: string(body)}
	}

	orch, err := holder.ForTurn(req.Overrides)
	if err != nil {
		data, _ := json.Marshal(resultView{Status: string(orchestrator.StatusFailed), Error: err.Error()})
		return data
	}

	res := orch.Run(ctx, orchestrator.Request{Input: req.Input, Handler: h})
	data, err := json.Marshal(newResultView(res))
	if err != nil {
		data, _ = json.Marshal(resultView{Status: string(res.Status), Error: err.Error()})
	}
	return data
}
