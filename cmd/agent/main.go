package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/campuslive/lecturecast/internal/chat"
	"github.com/campuslive/lecturecast/internal/config"
	"github.com/campuslive/lecturecast/internal/core"
	"github.com/campuslive/lecturecast/internal/viewer"
)

func main() {
	app := &cli.App{
		Name:  "lecturecast-agent",
		Usage: "Headless lecture viewer, watches a live session over the websocket bridge",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "server",
				Usage:    "Server host, e.g. lectures.campus.example",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "session",
				Usage:    "Session id to watch",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "token",
				Usage:    "X-Auth bearer token",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "name",
				Value: "agent",
				Usage: "Display name shown to other participants",
			},
			&cli.StringFlag{
				Name:  "config",
				Value: "",
				Usage: "Path to a yaml config file",
			},
		},
		Action: watch,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}
}

func watch(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	rtcConf, err := config.NewWebRTCConfig(cfg)
	if err != nil {
		return err
	}

	sessionID := core.SessionID(c.String("session"))
	viewerID := core.ParticipantID(uuid.NewString())

	dialer := &websocket.Dialer{HandshakeTimeout: 45 * time.Second}
	header := http.Header{}
	header.Set("X-Auth", c.String("token"))

	wsURL := fmt.Sprintf("wss://%s/api/v1/sessions/%s/ws", c.String("server"), sessionID)
	conn, resp, err := dialer.Dial(wsURL, header)
	if err != nil {
		return err
	}
	if resp != nil {
		resp.Body.Close()
	}

	channel := newWsChannel(conn, sessionID, viewerID)
	identity := core.Identity{ID: viewerID, DisplayName: c.String("name")}

	relay := chat.NewRelay(channel, identity)
	relay.OnMessage = func(msg chat.Message) {
		log.Info().
			Str("service", "agent").
			Str("author", msg.AuthorName).
			Str("text", msg.Text).
			Msg("chat")
	}

	agent := viewer.NewAgent(viewer.AgentOptions{
		Channel:       channel,
		Identity:      identity,
		EnabledCodecs: cfg.Peer.EnabledCodecs,
		WebRTC:        rtcConf,
		PingInterval:  cfg.Signaling.PresenceInterval,
		OnTrack:       drainTrack,
	})

	<-channel.Start()

	ctx := context.Background()
	if err := agent.Join(ctx); err != nil {
		channel.Close()
		return err
	}

	log.Info().
		Str("service", "agent").
		Str("session_id", string(sessionID)).
		Str("viewer_id", string(viewerID)).
		Msg("joined, waiting for media")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case <-quit:
	case <-channel.Done():
	}

	agent.Leave(ctx)
	return channel.Close()
}

// drainTrack consumes a remote track and reports its throughput.
func drainTrack(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	log.Info().
		Str("service", "agent").
		Str("kind", track.Kind().String()).
		Str("codec", track.Codec().MimeType).
		Msg("track started")

	go func() {
		var packets uint64
		report := time.NewTicker(10 * time.Second)
		defer report.Stop()

		for {
			select {
			case <-report.C:
				log.Info().
					Str("service", "agent").
					Str("kind", track.Kind().String()).
					Uint64("packets", packets).
					Msg("receiving")
			default:
			}

			if _, _, err := track.ReadRTP(); err != nil {
				log.Info().
					Str("service", "agent").
					Str("kind", track.Kind().String()).
					Msg("track ended")
				return
			}
			packets++
		}
	}()
}
