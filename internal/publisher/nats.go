package publisher

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"nextbus/internal/countdown"
)

type conn interface {
	Publish(subject string, data []byte) error
}

type NATSPublisher struct {
	nc          *nats.Conn
	pub         conn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
	logger      *slog.Logger
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, logSubjects bool, m PublisherMetrics, logger *slog.Logger) (*NATSPublisher, error) {
	logger = logger.With("component", "nats_publisher")
	nc, err := nats.Connect(url,
		nats.Name("nextbus"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	p := newPublisher(nc, prefix, logSubjects, m, logger)
	p.nc = nc
	return p, nil
}

func newPublisher(c conn, prefix string, logSubjects bool, m PublisherMetrics, logger *slog.Logger) *NATSPublisher {
	return &NATSPublisher{pub: c, prefix: prefix, logSubjects: logSubjects, metrics: m, logger: logger}
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			p.logger.Warn("nats drain failed", "error", err)
		}
		p.nc.Close()
	}
}

// Subject returns <prefix>.<route>.<direction>.<stop> for sel.
func (p *NATSPublisher) Subject(sel countdown.Selection) string {
	tokens := []string{
		subjectToken(sel.RouteID),
		subjectToken(string(sel.Direction)),
		strconv.Itoa(sel.StopIndex),
	}
	if prefix := strings.Trim(p.prefix, ". "); prefix != "" {
		tokens = append([]string{prefix}, tokens...)
	}
	return strings.Join(tokens, ".")
}

// PublishUpdate implements countdown.Sink.
func (p *NATSPublisher) PublishUpdate(u countdown.Update) error {
	subject := p.Subject(u.Selection)
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	if p.logSubjects {
		p.logger.Debug("nats publish", "subject", subject)
	}
	start := time.Now()
	err = p.pub.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
