package notifier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/common"
	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/notifier"
)

const commandSubject = "vcp.command"

// Executor runs one admin command against the live connection. Implemented
// by admin.Bridge.
type Executor interface {
	Execute(ctx context.Context, cmd common.Command) common.Response
}

// NatsNotifier publishes charge point events to NATS topics and serves admin
// commands over the NATS request/reply pattern, as a second front door next
// to the WebSocket admin channel.
type NatsNotifier struct {
	notification chan notifier.Notification
	connection   *nats.Conn
	executor     Executor
	url          string
	timeout      time.Duration
}

func New(url string, executor Executor) *NatsNotifier {
	if url == "" {
		url = nats.DefaultURL
	}
	return &NatsNotifier{
		executor: executor,
		url:      url,
		timeout:  30 * time.Second,
	}
}

func (n *NatsNotifier) SetTimeout(timeout time.Duration) {
	n.timeout = timeout
}

func (n *NatsNotifier) Timeout() time.Duration {
	return n.timeout
}

func (n *NatsNotifier) SetChannel(notification chan notifier.Notification) {
	n.notification = notification
}

func (n *NatsNotifier) publishLoop() {
	for event := range n.notification {
		bt, err := json.Marshal(event.Data)
		if err != nil {
			log.Error(err)
			continue
		}
		if err := n.connection.Publish(event.Topic, bt); err != nil {
			log.WithError(err).Errorf("cannot publish %v", event.Topic)
		}
	}
}

func (n *NatsNotifier) commandHandler() {
	_, err := n.connection.Subscribe(commandSubject, func(m *nats.Msg) {
		var command common.Command
		if err := json.Unmarshal(m.Data, &command); err != nil {
			n.respond(m, common.Response{Err: &common.Error{
				Code:    common.ErrCodeInvalidCommand,
				Message: "command is not valid JSON",
			}})
			return
		}
		log.Printf("admin command via nats: %v", string(m.Data))

		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		n.respond(m, n.executor.Execute(ctx, command))
	})
	if err != nil {
		log.WithError(err).Errorf("cannot subscribe to %v", commandSubject)
	}
}

func (n *NatsNotifier) respond(m *nats.Msg, response common.Response) {
	bt, _ := json.Marshal(response)
	if response.Err != nil {
		log.Errorf("%v", string(bt))
	}
	if err := m.Respond(bt); err != nil {
		log.WithError(err).Error("cannot respond to nats command")
	}
}

func (n *NatsNotifier) Start() error {
	nc, err := nats.Connect(n.url)
	if err != nil {
		return err
	}
	n.connection = nc
	if n.notification != nil {
		go n.publishLoop()
	}
	n.commandHandler()
	log.Infof("nats notifier connected to %v", n.url)
	return nil
}

func (n *NatsNotifier) Stop() {
	if n.connection != nil {
		n.connection.Close()
		log.Info("nats notifier stopped")
	}
}
