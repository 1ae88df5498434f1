// cmd/event-tap/main.go
// event-tap assina os tópicos do safetynet no broker e imprime o que
// chega. Útil para depurar a bridge MQTT sem abrir o dashboard.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sua-org/safetynet/internal/config"
	"github.com/sua-org/safetynet/internal/mqttclient"
	"github.com/sua-org/safetynet/internal/supervisor"
)

var (
	configPath = flag.String("config", "safetynet.yaml", "YAML config file (optional)")
	topicFlag  = flag.String("topic", "", "topic filter (default <base_topic>/#)")
	rawFlag    = flag.Bool("raw", false, "print the full JSON payload")
)

func main() {
	flag.Parse()
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config inválida")
	}
	cfg.SetupLogging()

	topic := *topicFlag
	if topic == "" {
		topic = cfg.MQTT.BaseTopic + "/#"
	}

	mc := cfg.MQTT.Config
	mc.ClientID = mc.ClientID + "-tap"
	cli, err := mqttclient.NewClient(mc)
	if err != nil {
		log.Fatal().Err(err).Msg("erro ao conectar no MQTT")
	}
	defer cli.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Subscribe(topic, 1, func(t string, payload []byte) {
		fmt.Println(describe(t, payload, *rawFlag))
	}); err != nil {
		log.Fatal().Err(err).Str("topic", topic).Msg("erro ao assinar tópico")
	}
	log.Info().Str("topic", topic).Msg("aguardando mensagens")

	<-ctx.Done()
	log.Info().Msg("sinal recebido, encerrando")
}

// describe resume uma mensagem numa linha; payloads que não são
// notificações saem como JSON.
func describe(topic string, payload []byte, raw bool) string {
	var n supervisor.Notification
	if err := json.Unmarshal(payload, &n); err != nil || n.Kind == "" {
		return fmt.Sprintf("%s %s", topic, compact(payload))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s]", topic, n.Kind)
	if n.Camera != "" {
		fmt.Fprintf(&b, " camera=%s", n.Camera)
	}
	switch n.Kind {
	case supervisor.KindConnectionState:
		fmt.Fprintf(&b, " state=%s", n.State)
		if n.Reason != "" {
			fmt.Fprintf(&b, " reason=%q", n.Reason)
		}
	case supervisor.KindLogAppended:
		if n.Entry != nil {
			fmt.Fprintf(&b, " %s %s %q", n.Entry.Timestamp, n.Entry.Function, n.Entry.Event)
		}
	case supervisor.KindLogsMerged:
		fmt.Fprintf(&b, " entries=%d", len(n.Entries))
	case supervisor.KindEscalation:
		fmt.Fprintf(&b, " streak=%d", n.Streak)
	case supervisor.KindCommandAck, supervisor.KindCommandRejected:
		fmt.Fprintf(&b, " request_id=%s mode=%s", n.RequestID, n.Mode)
		if n.Message != "" {
			fmt.Fprintf(&b, " message=%q", n.Message)
		}
	case supervisor.KindHealthStatus:
		if n.Health != nil {
			fmt.Fprintf(&b, " temp=%.1f light=%.0f buzzer=%t led=%t",
				n.Health.Temperature, n.Health.LightLevel, n.Health.BuzzerOn, n.Health.LEDOn)
		}
	case supervisor.KindSnapshotArchived:
		fmt.Fprintf(&b, " url=%s", n.ArchivedURL)
	}
	if raw {
		b.WriteString("\n")
		b.WriteString(indent(payload))
	}
	return b.String()
}

func compact(payload []byte) string {
	var v interface{}
	if err := json.Unmarshal(payload, &v); err != nil {
		return string(payload)
	}
	out, _ := json.Marshal(v)
	return string(out)
}

func indent(payload []byte) string {
	var v interface{}
	if err := json.Unmarshal(payload, &v); err != nil {
		return string(payload)
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	return string(out)
}
