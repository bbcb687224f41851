package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/praxis/acapy-mcp-gateway/internal/acapy"
	"github.com/praxis/acapy-mcp-gateway/internal/logger"
	"github.com/praxis/acapy-mcp-gateway/internal/metrics"
	"github.com/praxis/acapy-mcp-gateway/internal/tools"
)

// State is a stage in the life of one tool call.
type State string

const (
	StateReceived   State = "received"
	StateValidating State = "validating"
	StateExecuting  State = "executing"
	StateResponding State = "responding"
)

// unknownToolLabel keeps arbitrary caller input out of metric labels.
const unknownToolLabel = "unknown"

// Result is the text returned to the caller plus whether it reports a failure.
type Result struct {
	Text   string
	Failed bool
}

// Gateway dispatches tool calls to the catalog and renders every outcome as
// text.
type Gateway struct {
	catalog *tools.Catalog
	metrics *metrics.Collector
	logger  *logrus.Logger
}

// New creates a gateway. collector may be nil.
func New(catalog *tools.Catalog, collector *metrics.Collector, log *logrus.Logger) *Gateway {
	if log == nil {
		log = logrus.New()
	}
	return &Gateway{
		catalog: catalog,
		metrics: collector,
		logger:  log,
	}
}

// Catalog returns the tools served by the gateway.
func (g *Gateway) Catalog() *tools.Catalog {
	return g.catalog
}

// Invoke runs the named tool and returns its text. Failures come back as
// "Error: ..." text; Invoke never panics.
func (g *Gateway) Invoke(ctx context.Context, name string, args map[string]interface{}) string {
	return g.Call(ctx, name, args).Text
}

// Call is Invoke with the failure flag kept.
func (g *Gateway) Call(ctx context.Context, name string, args map[string]interface{}) (res Result) {
	requestID := uuid.NewString()
	log := logger.NewContextualLogger(g.logger, name, requestID)
	start := time.Now()
	label := name

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Tool call panicked: %v", r)
			res = Result{Text: fmt.Sprintf("Error: internal error: %v", r), Failed: true}
		}
		elapsed := time.Since(start)
		if g.metrics != nil {
			g.metrics.ObserveTool(label, res.Failed, elapsed)
		}
		log.Entry().WithFields(logrus.Fields{
			"state":    StateResponding,
			"failed":   res.Failed,
			"duration": elapsed,
		}).Debug("Tool call finished")
	}()

	log.Entry().WithField("state", StateReceived).Debug("Tool call received")

	log.Entry().WithField("state", StateValidating).Debug("Validating tool call")
	if _, ok := g.catalog.Lookup(name); !ok {
		label = unknownToolLabel
		log.Warnf("Unknown tool requested")
		return Result{Text: fmt.Sprintf("Error: unknown tool %q", name), Failed: true}
	}

	log.Entry().WithField("state", StateExecuting).Debug("Executing tool call")
	text, err := g.catalog.Call(ctx, name, tools.Args(args))
	if err != nil {
		log.Entry().WithField("kind", errorKind(err)).Info("Tool call failed")
		return Result{Text: acapy.TextOf(err), Failed: true}
	}

	log.Infof("Tool call succeeded")
	return Result{Text: text}
}

func errorKind(err error) string {
	if e, ok := acapy.AsError(err); ok {
		return e.Kind.String()
	}
	return "internal"
}
