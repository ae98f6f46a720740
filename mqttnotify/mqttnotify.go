// Package mqttnotify announces calendar changes on MQTT so that displays and
// downstream automations can react without polling.
package mqttnotify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"go.uber.org/zap"

	"github.com/calmerge/calmerge-server/errors"
	"github.com/calmerge/calmerge-server/model"
	"github.com/calmerge/calmerge-server/query"
)

const mqttClientID = "calmerge-server"
const baseTopic = "calmerge/calendars"
const mqttKeepAlive = 8

const mqttQOS = 0

const publishTimeout = 10 * time.Second

// noticeBuffer is the size of the outgoing notice queue. Notices beyond that
// are dropped instead of blocking the ingest pipeline.
const noticeBuffer = 64

// Config is the config for the Notifier.
type Config struct {
	// MQTTAddr is the address where the MQTT-server is found.
	MQTTAddr string
}

// changeNotice is the payload published on a calendar's topic.
type changeNotice struct {
	Calendar     string    `json:"calendar"`
	Version      int       `json:"version"`
	AddedCount   int       `json:"added_count"`
	RemovedCount int       `json:"removed_count"`
	ChangedCount int       `json:"changed_count"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Notifier publishes calendar change notices to
// "calmerge/calendars/<name>". Run it with Notifier.Run; notices queued while
// the broker is unreachable are dropped once the queue runs full.
type Notifier struct {
	logger *zap.Logger
	config Config
	// brokerURL is the URL of the MQTT broker.
	brokerURL *url.URL
	// queue holds pending notices for the publish loop.
	queue chan changeNotice
}

// NewNotifier creates a Notifier with the given Config. Open the connection
// with Notifier.Run.
func NewNotifier(logger *zap.Logger, config Config) (*Notifier, error) {
	brokerURL, err := url.Parse(config.MQTTAddr)
	if err != nil {
		return nil, errors.FromErr("invalid mqtt addr", errors.ErrInternal, errors.KindUnexpected, err,
			errors.Details{"was": config.MQTTAddr})
	}
	return &Notifier{
		logger:    logger,
		config:    config,
		brokerURL: brokerURL,
		queue:     make(chan changeNotice, noticeBuffer),
	}, nil
}

// NotifyCalendarChanged queues a change notice for publishing. It never
// blocks.
func (n *Notifier) NotifyCalendarChanged(name string, metadata model.CalendarMetadata,
	diff query.DiffResult) {
	notice := changeNotice{
		Calendar:     name,
		Version:      metadata.Version,
		AddedCount:   len(diff.Added),
		RemovedCount: len(diff.Removed),
		ChangedCount: len(diff.Changed),
		OccurredAt:   metadata.LastUpdated,
	}
	select {
	case n.queue <- notice:
	default:
		n.logger.Warn("dropping change notice due to full queue",
			zap.String("calendar", name))
	}
}

// Run connects to the MQTT server and publishes queued notices until the
// given context.Context is done.
func (n *Notifier) Run(ctx context.Context) error {
	conn, err := autopaho.NewConnection(ctx, n.genClientConfig())
	if err != nil {
		return errors.FromErr("create mqtt server connection failed", errors.ErrInternal,
			errors.KindUnexpected, err, nil)
	}
	for {
		select {
		case <-ctx.Done():
			// Shutdown MQTT connection.
			disconnectTimeout, cancelDisconnectTimeout := context.WithTimeout(context.Background(), 3*time.Second)
			err = conn.Disconnect(disconnectTimeout)
			cancelDisconnectTimeout()
			if err != nil {
				n.logger.Debug("disconnect from mqtt server failed", zap.Error(err))
			}
			return nil
		case notice := <-n.queue:
			n.publish(ctx, conn, notice)
		}
	}
}

// publish sends one notice. Failures are logged and the notice dropped; the
// next change will carry the fresh state anyway.
func (n *Notifier) publish(ctx context.Context, conn *autopaho.ConnectionManager, notice changeNotice) {
	payload, err := json.Marshal(notice)
	if err != nil {
		errors.Log(n.logger, errors.FromErr("marshal change notice", errors.ErrInternal,
			errors.KindEncodeJSON, err, errors.Details{"calendar": notice.Calendar}))
		return
	}
	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := conn.AwaitConnection(publishCtx); err != nil {
		n.logger.Warn("dropping change notice, mqtt server not reachable",
			zap.String("calendar", notice.Calendar), zap.Error(err))
		return
	}
	// Retained so late subscribers see the latest state right away.
	_, err = conn.Publish(publishCtx, &paho.Publish{
		QoS:     mqttQOS,
		Topic:   fmt.Sprintf("%s/%s", baseTopic, notice.Calendar),
		Retain:  true,
		Payload: payload,
	})
	if err != nil {
		errors.Log(n.logger, errors.FromErr("publish change notice", errors.ErrInternal,
			errors.KindUnexpected, err, errors.Details{"calendar": notice.Calendar}))
	}
}

// genClientConfig generates the autopaho.ClientConfig that is ready to
// launch.
func (n *Notifier) genClientConfig() autopaho.ClientConfig {
	return autopaho.ClientConfig{
		BrokerUrls: []*url.URL{n.brokerURL},
		KeepAlive:  mqttKeepAlive,
		OnConnectionUp: func(_ *autopaho.ConnectionManager, _ *paho.Connack) {
			n.logger.Info("mqtt server connection established")
		},
		OnConnectError: func(err error) {
			errors.Log(n.logger, errors.FromErr("mqtt server connection failed",
				errors.ErrInternal, errors.KindUnexpected, err, nil))
		},
		ClientConfig: paho.ClientConfig{
			ClientID: mqttClientID,
			OnServerDisconnect: func(disconnect *paho.Disconnect) {
				reason := string(disconnect.ReasonCode)
				if disconnect.Properties != nil {
					reason = disconnect.Properties.ReasonString
				}
				errors.Log(n.logger, errors.FromErr(
					fmt.Sprintf("mqtt server requested disconnect: %s", reason),
					errors.ErrInternal, errors.KindUnexpected, nil, nil))
			},
			OnClientError: func(err error) {
				errors.Log(n.logger, errors.FromErr("mqtt server connection client error",
					errors.ErrInternal, errors.KindUnexpected, err, nil))
			},
		},
	}
}
