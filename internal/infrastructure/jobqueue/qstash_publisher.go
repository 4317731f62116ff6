package jobqueue

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/valyala/bytebufferpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/House-of-Events/Annabeth/internal/domain/notification"
	"github.com/House-of-Events/Annabeth/internal/platform/logging"
)

type QStashPublisherConfig struct {
	BaseURL   string
	Token     string
	TargetURL string
	Retries   int
	Timeout   time.Duration
}

// QStashPublisher forwards each message to an HTTP consumer through Upstash QStash.
type QStashPublisher struct {
	client    *http.Client
	baseURL   string
	token     string
	targetURL string
	retries   int
	logger    *logging.Logger
}

func NewQStashPublisher(cfg QStashPublisherConfig, logger *logging.Logger) (*QStashPublisher, error) {
	baseURL, err := validateHTTPBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, crerr.Wrap(err, "invalid QSTASH_BASE_URL")
	}
	targetURL, err := validateHTTPBaseURL(cfg.TargetURL)
	if err != nil {
		return nil, crerr.Wrap(err, "invalid QSTASH_TARGET_URL")
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, crerr.New("qstash token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &QStashPublisher{
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL:   baseURL,
		token:     strings.TrimSpace(cfg.Token),
		targetURL: targetURL,
		retries:   cfg.Retries,
		logger:    logger,
	}, nil
}

func (p *QStashPublisher) Publish(ctx context.Context, msg notification.Message) (notification.Receipt, error) {
	body, err := encodeMessage(msg)
	if err != nil {
		return notification.Receipt{}, err
	}

	publishURL := p.baseURL + "/v2/publish/" + p.targetURL
	dedupID := msg.DedupKey()
	bodyText := truncateForLog(string(body), maxLoggedBodyBytes)

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(
			attribute.String("qstash.publish_url", publishURL),
			attribute.String("qstash.deduplication_id", dedupID),
			attribute.Int64("fixture.id", msg.FixtureID),
		)
	}
	p.logger.DebugContext(ctx, "qstash publish request",
		"fixture_id", msg.FixtureID,
		"curl_preview", buildQStashCurlPreview(publishURL, p.retries, dedupID, bodyText),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, publishURL, bytes.NewReader(body))
	if err != nil {
		return notification.Receipt{}, crerr.Wrap(err, "create qstash request")
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Upstash-Method", http.MethodPost)
	req.Header.Set("Upstash-Deduplication-Id", dedupID)
	req.Header.Set("Upstash-Forward-X-Sport-Type", msg.SportType)
	if p.retries > 0 {
		req.Header.Set("Upstash-Retries", strconv.Itoa(p.retries))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return notification.Receipt{}, markTransient(crerr.Wrapf(err, "publish qstash message fixture_id=%d", msg.FixtureID))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBodyBytes))
	if resp.StatusCode/100 != 2 {
		callErr := crerr.Newf("publish qstash message status=%d fixture_id=%d body=%s",
			resp.StatusCode, msg.FixtureID, strings.TrimSpace(string(raw)))
		if isQStashRetryableStatus(resp.StatusCode) {
			return notification.Receipt{}, markTransient(callErr)
		}
		return notification.Receipt{}, callErr
	}

	var out struct {
		MessageID string `json:"messageId"`
	}
	if err := decodeJSON(raw, &out); err != nil {
		p.logger.WarnContext(ctx, "qstash response not decodable", "fixture_id", msg.FixtureID, "error", err)
	}
	return notification.Receipt{MessageID: out.MessageID}, nil
}

func (p *QStashPublisher) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

func validateHTTPBaseURL(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return "", crerr.New("value is empty")
	}

	parsed, err := url.Parse(candidate)
	if err != nil {
		return "", crerr.Wrapf(err, "parse %q", candidate)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", crerr.Newf("%q uses unsupported scheme=%q; expected http or https", candidate, parsed.Scheme)
	}
	if strings.TrimSpace(parsed.Host) == "" {
		return "", crerr.Newf("%q has empty host", candidate)
	}

	return strings.TrimRight(candidate, "/"), nil
}

// buildQStashCurlPreview renders a replayable request with the token masked.
func buildQStashCurlPreview(publishURL string, retries int, dedupID, body string) string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	appendPart := func(part string) {
		if buf.Len() > 0 {
			_ = buf.WriteByte(' ')
		}
		_, _ = buf.WriteString(part)
	}
	appendHeader := func(value string) {
		appendPart("-H")
		appendPart(shellQuote(value))
	}

	appendPart("curl -X POST")
	appendPart(shellQuote(publishURL))
	appendHeader("Authorization: Bearer ***")
	appendHeader("Content-Type: application/json")
	appendHeader("Upstash-Deduplication-Id: " + dedupID)
	if retries > 0 {
		appendHeader("Upstash-Retries: " + strconv.Itoa(retries))
	}
	appendPart("-d")
	appendPart(shellQuote(body))

	return buf.String()
}

func shellQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "'\"'\"'") + "'"
}

func isQStashRetryableStatus(statusCode int) bool {
	return statusCode == http.StatusRequestTimeout ||
		statusCode == http.StatusTooManyRequests ||
		statusCode >= http.StatusInternalServerError
}
