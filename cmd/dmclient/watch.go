package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/douyudm/dmclient/internal/client"
	"github.com/douyudm/dmclient/internal/core/event"
	"github.com/douyudm/dmclient/internal/danmaku"
	"github.com/douyudm/dmclient/internal/metrics"
	"github.com/douyudm/dmclient/internal/relay"
	"github.com/douyudm/dmclient/internal/scripting"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type watchFlags struct {
	json bool
	all  bool
}

func watchCmd(g *globalFlags) *cobra.Command {
	f := &watchFlags{}
	cmd := &cobra.Command{
		Use:   "watch <room>",
		Short: "Connect to a room and print its messages",
		Long: `Connect to a room by numeric id or by name and print decoded messages
until interrupted. A room name goes through the static room table, the
room-id cache and the room API in that order.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), g, f, args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().BoolVar(&f.json, "json", false, "print one JSON document per message")
	cmd.Flags().BoolVar(&f.all, "all", false, "also print unrecognized messages")
	return cmd
}

func runWatch(ctx context.Context, g *globalFlags, f *watchFlags, room string, out, status io.Writer) error {
	cfg, log, err := g.setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	printSection(status, "初始化")
	r, closeResolver, err := newResolver(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeResolver()

	bus := event.NewBus()

	var engine *scripting.Engine
	if cfg.Scripting.Dir != "" {
		engine, err = scripting.NewEngine(cfg.Scripting.Dir, log)
		if err != nil {
			return fmt.Errorf("init scripting: %w", err)
		}
		defer engine.Close()
		printOK(status, "Lua 腳本已載入")
	}

	var collector *metrics.Collector
	if addr := cfg.Metrics.BindAddress; addr != "" {
		collector = metrics.NewCollector()
		collector.Attach(bus)
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		stop := serveHTTP(addr, mux, log)
		defer stop()
		printOK(status, "metrics 監聽於 "+addr)
	}

	if addr := cfg.Relay.BindAddress; addr != "" {
		hub := relay.NewHub(log)
		hub.Attach(bus)
		defer hub.Close()
		mux := http.NewServeMux()
		mux.Handle(cfg.Relay.Path, hub)
		stop := serveHTTP(addr, mux, log)
		defer stop()
		printOK(status, "relay 監聽於 "+addr+cfg.Relay.Path)
	}

	cl := client.New(cfg.Server, cfg.Client,
		client.WithLogger(log),
		client.WithBus(bus),
		client.WithResolver(r),
	)

	p := &printer{out: out, json: f.json, all: f.all, engine: engine, log: log}
	cl.OnMessage(p.print)
	cl.OnParseError(func(raw string, err error) {
		log.Debug("略過無法解析的訊息", zap.String("raw", raw), zap.Error(err))
	})

	lost := make(chan error, 1)
	cl.OnDisconnected(func(err error) {
		select {
		case lost <- err:
		default:
		}
	})

	printSection(status, "連線")
	if err := cl.ConnectByName(ctx, room); err != nil {
		return fmt.Errorf("connect %s: %w", room, err)
	}
	printReady(status, fmt.Sprintf("已進入房間 %d", cl.RoomID()))

	select {
	case <-ctx.Done():
		cl.Disconnect()
		if collector != nil {
			collector.Disconnected()
		}
		log.Info("收到關閉信號")
		return nil
	case err := <-lost:
		return fmt.Errorf("connection lost: %w", err)
	}
}

// printer writes one line per event. It runs on the client's receive
// goroutine, so output order is wire order.
type printer struct {
	out    io.Writer
	json   bool
	all    bool
	engine *scripting.Engine
	log    *zap.Logger
}

func (p *printer) print(ev danmaku.Event) {
	if _, ok := ev.(*danmaku.Unrecognized); ok && !p.all {
		return
	}
	if p.json {
		b, err := json.Marshal(struct {
			Type  string        `json:"type"`
			Event danmaku.Event `json:"event"`
		}{ev.Type().String(), ev})
		if err != nil {
			p.log.Error("事件序列化失敗", zap.Error(err))
			return
		}
		fmt.Fprintln(p.out, string(b))
		return
	}

	var line string
	if p.engine != nil {
		switch res := p.engine.Format(ev); res.Verdict {
		case scripting.Drop:
			return
		case scripting.Replace:
			line = res.Line
		}
	}
	if line == "" {
		line = formatEvent(ev)
	}
	if line == "" && p.all {
		if u, ok := ev.(*danmaku.Unrecognized); ok {
			line = fmt.Sprintf("\033[90m%s %s\033[0m", u.Name, u.Raw)
		}
	}
	if line != "" {
		fmt.Fprintln(p.out, line)
	}
}

// serveHTTP runs handler on addr in the background. The returned function
// shuts the server down.
func serveHTTP(addr string, handler http.Handler, log *zap.Logger) (stop func()) {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP 服務失敗", zap.String("addr", addr), zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
