// Package mqtt backs the node's three logical queues (incoming,
// outgoing, not-sent) with an MQTT broker using Eclipse Paho.
package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/usef/infra/logger"
)

// Queue names shared by all role nodes.
const (
	QueueIncoming = "incoming"
	QueueOutgoing = "outgoing"
	QueueNotSent  = "not-sent"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker      string          `json:"broker"`
	ClientID    string          `json:"client_id"`
	Username    string          `json:"username"`
	Password    string          `json:"password"`
	TopicPrefix string          `json:"topic_prefix"`
	UseTLS      bool            `json:"use_tls"`
	ClientCert  string          `json:"client_cert"`
	ClientKey   string          `json:"client_key"`
	CABundle    string          `json:"ca_bundle"`
	QoS         map[string]byte `json:"qos"`
	MaxRetries  int             `json:"max_retries"`
	BackoffMS   int             `json:"backoff_ms"`
	TLSConfig   *tls.Config     `json:"-"`
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// QueueClient multiplexes the node's queues over one broker connection.
type QueueClient struct {
	cli        pahoClient
	prefix     string
	qos        map[string]byte
	maxRetries int
	backoff    time.Duration
	log        logger.Logger
}

// NewQueueClient connects to the broker.
func NewQueueClient(cfg Config) (*QueueClient, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.New("mqtt_queue")
	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "usef"
	}
	qc := &QueueClient{
		prefix:     prefix,
		qos:        cfg.QoS,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
		log:        log,
	}
	if qc.maxRetries <= 0 {
		qc.maxRetries = 3
	}
	if qc.backoff <= 0 {
		qc.backoff = 100 * time.Millisecond
	}
	opts.OnConnect = func(paho.Client) { log.Infof("MQTT connected") }
	opts.OnConnectionLost = func(_ paho.Client, err error) { log.Errorf("connection lost: %v", err) }
	opts.OnReconnecting = func(paho.Client, *paho.ClientOptions) { log.Warnf("reconnecting to MQTT broker") }
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	qc.cli = c
	return qc, nil
}

// NewClientOptions builds paho client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

func (q *QueueClient) topic(queue string) string {
	return q.prefix + "/queue/" + queue
}

func (q *QueueClient) queueQoS(queue string) byte {
	if v, ok := q.qos[queue]; ok {
		return v
	}
	return 1
}

// Queue returns a publisher bound to the named queue.
func (q *QueueClient) Queue(name string) *QueuePublisher {
	return &QueuePublisher{client: q, name: name}
}

// Subscribe consumes the named queue, invoking fn for every payload in
// receipt order.
func (q *QueueClient) Subscribe(name string, fn func(payload []byte)) error {
	token := q.cli.Subscribe(q.topic(name), q.queueQoS(name), func(_ paho.Client, msg paho.Message) {
		fn(msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", name, token.Error())
	}
	return nil
}

// Close disconnects from the broker.
func (q *QueueClient) Close() {
	q.cli.Disconnect(250)
}

// QueuePublisher implements exchange.Queue on one MQTT topic with
// bounded retry.
type QueuePublisher struct {
	client *QueueClient
	name   string
}

func (p *QueuePublisher) Publish(payload []byte) error {
	q := p.client
	topic := q.topic(p.name)
	var publishErr error
	for attempt := 0; attempt <= q.maxRetries; attempt++ {
		token := q.cli.Publish(topic, q.queueQoS(p.name), false, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			return nil
		}
		q.log.Warnf("publish to %s failed (attempt %d/%d): %v", topic, attempt+1, q.maxRetries+1, publishErr)
		time.Sleep(q.backoff)
	}
	return fmt.Errorf("publish to %s: %w", topic, publishErr)
}
