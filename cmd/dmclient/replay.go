package main

import (
	"context"
	"fmt"
	"time"

	"github.com/douyudm/dmclient/internal/data"
	dmnet "github.com/douyudm/dmclient/internal/net"
	"github.com/douyudm/dmclient/internal/net/packet"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func replayCmd(g *globalFlags) *cobra.Command {
	var bind string
	cmd := &cobra.Command{
		Use:   "replay [script.yaml]",
		Short: "Serve a scripted room to local clients",
		Long: `Listen like a danmaku server and play a YAML script of messages to every
client that completes the login handshake. Point [server] at the bind
address to exercise watch without a network.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := g.setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			path := cfg.Replay.File
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("no replay script: pass a file or set replay.file")
			}
			script, err := data.LoadReplayScript(path)
			if err != nil {
				return err
			}
			if script.Interval <= 0 {
				script.Interval = cfg.Replay.Interval
			}
			if bind == "" {
				bind = cfg.Replay.BindAddress
			}

			srv, err := dmnet.NewServer(bind, cfg.Client.MaxFrameSize, log)
			if err != nil {
				return err
			}
			go srv.AcceptLoop()
			defer srv.Shutdown()

			status := cmd.ErrOrStderr()
			printSection(status, "重播")
			printReady(status, fmt.Sprintf("監聽於 %s，共 %d 則訊息", srv.Addr(), len(script.Steps)))

			ctx := cmd.Context()
			for {
				select {
				case <-ctx.Done():
					return nil
				case p := <-srv.Peers():
					go playTo(ctx, p, script, log)
				}
			}
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "listen address (default replay.bind_address)")
	return cmd
}

// playTo waits for the client to join a group, then streams the script.
func playTo(ctx context.Context, p *dmnet.Peer, script *data.ReplayScript, log *zap.Logger) {
	defer p.Close()
	log = log.With(zap.Uint64("session", p.ID))

	joined := make(chan int, 1)
	go func() {
		for f := range p.Frames() {
			msg := packet.Deserialize(f.Text())
			r := packet.NewReader(msg)
			switch msg.Type() {
			case "loginreq":
				roomID, _, err := r.Int("roomid")
				if err != nil {
					log.Debug("房號格式錯誤", zap.String("raw", r.Raw()), zap.Error(err))
				}
				log.Info("客戶端登入", zap.Int("room", roomID))
			case "joingroup":
				rid, _, err := r.Int("rid")
				if err != nil {
					log.Debug("房號格式錯誤", zap.String("raw", r.Raw()), zap.Error(err))
				}
				select {
				case joined <- rid:
				default:
				}
			case "logout":
				log.Info("客戶端登出")
			default:
				log.Debug("收到客戶端訊息", zap.String("type", msg.Type()))
			}
		}
	}()

	var room int
	select {
	case room = <-joined:
	case <-p.Done():
		return
	case <-ctx.Done():
		return
	}
	log.Info("開始重播", zap.Int("room", room))

	for {
		for i := range script.Steps {
			st := &script.Steps[i]
			for n := 0; n < st.Repeat; n++ {
				if err := p.SendText(st.Text()); err != nil {
					log.Debug("重播中斷", zap.Error(err))
					return
				}
				if !sleep(ctx, p, script.DelayAfter(st)) {
					return
				}
			}
		}
		if !script.Loop || len(script.Steps) == 0 {
			break
		}
	}
	// Keep the session open until the client leaves.
	select {
	case <-p.Done():
	case <-ctx.Done():
	}
}

func sleep(ctx context.Context, p *dmnet.Peer, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-p.Done():
		return false
	case <-ctx.Done():
		return false
	}
}
